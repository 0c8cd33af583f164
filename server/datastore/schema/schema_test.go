package schema

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/VividCortex/mysqlerr"
	"github.com/WatchBeam/clock"
	"github.com/go-sql-driver/mysql"
	"github.com/joaoariedi/money-balancer/server/goose"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type column string

func (c column) Name() string { return string(c) }

const (
	colCreatedAt column = "created_at"
	colUpdatedAt column = "updated_at"
)

var widgets = Table("group")

type recordingExecer struct {
	stmts  []string
	failOn string
}

func (r *recordingExecer) Exec(query string, args ...any) (sql.Result, error) {
	r.stmts = append(r.stmts, query)
	if query == r.failOn {
		return nil, errors.New("exec failed")
	}
	return nil, nil
}

func timestampChanges(d Dialect, def Default) []Change {
	return []Change{
		AddColumnChange(d, widgets, ColumnDef{Column: colCreatedAt, Type: Integer, NotNull: true, Default: def}),
		AddColumnChange(d, widgets, ColumnDef{Column: colUpdatedAt, Type: Integer, NotNull: true, Default: def}),
	}
}

func TestStatementsMySQL(t *testing.T) {
	d := goose.MySqlDialect{}

	assert.Equal(t,
		"ALTER TABLE `group` ADD COLUMN `created_at` INTEGER NOT NULL DEFAULT 1725868800",
		AddColumn(d, widgets, ColumnDef{Column: colCreatedAt, Type: Integer, NotNull: true, Default: FixedEpoch(1725868800)}),
	)
	assert.Equal(t, "ALTER TABLE `group` DROP COLUMN `updated_at`", DropColumn(d, widgets, colUpdatedAt))
	assert.Equal(t,
		"CREATE TABLE `group` (`id` INT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY, `name` VARCHAR(255) NOT NULL)",
		CreateTable(d, widgets,
			ColumnDef{Column: column("id"), AutoIncrement: true},
			ColumnDef{Column: column("name"), Type: String, NotNull: true},
		),
	)
	assert.Equal(t, "DROP TABLE `group`", DropTable(d, widgets))
}

func TestStatementsSqlite(t *testing.T) {
	d := goose.Sqlite3Dialect{}

	assert.Equal(t,
		`ALTER TABLE "group" ADD COLUMN "updated_at" INTEGER DEFAULT 0`,
		AddColumn(d, widgets, ColumnDef{Column: colUpdatedAt, Type: Integer, Default: FixedEpoch(0)}),
	)
	assert.Equal(t,
		`CREATE TABLE "group" ("id" INTEGER PRIMARY KEY AUTOINCREMENT)`,
		CreateTable(d, widgets, ColumnDef{Column: column("id"), AutoIncrement: true}),
	)
}

func TestStatementsPostgres(t *testing.T) {
	d, err := goose.DialectByName("postgres")
	require.NoError(t, err)
	require.IsType(t, goose.PostgresDialect{}, d)

	assert.Equal(t,
		`ALTER TABLE "group" ADD COLUMN "created_at" INTEGER NOT NULL DEFAULT 1725868800`,
		AddColumn(d, widgets, ColumnDef{Column: colCreatedAt, Type: Integer, NotNull: true, Default: FixedEpoch(1725868800)}),
	)
	assert.Equal(t, `ALTER TABLE "group" DROP COLUMN "created_at"`, DropColumn(d, widgets, colCreatedAt))
	assert.Equal(t,
		`CREATE TABLE "group" ("id" SERIAL PRIMARY KEY, "name" VARCHAR(255) NOT NULL)`,
		CreateTable(d, widgets,
			ColumnDef{Column: column("id"), AutoIncrement: true},
			ColumnDef{Column: column("name"), Type: String, NotNull: true},
		),
	)
	assert.Equal(t, `CREATE TABLE "a""b" ("id" SERIAL PRIMARY KEY)`,
		CreateTable(d, Table(`a"b`), ColumnDef{Column: column("id"), AutoIncrement: true}))

	_, err = goose.DialectByName("oracle")
	require.Error(t, err)
}

func TestClockEpochIsEvaluatedWhenBuilt(t *testing.T) {
	mockClock := clock.NewMockClock(time.Date(2024, 9, 9, 0, 0, 0, 0, time.UTC))
	def := ClockEpoch{Clock: mockClock}

	assert.Equal(t, "1725840000", def.Literal())

	mockClock.AddTime(time.Hour)
	changes := timestampChanges(goose.MySqlDialect{}, def)
	assert.Equal(t, "ALTER TABLE `group` ADD COLUMN `created_at` INTEGER NOT NULL DEFAULT 1725843600", changes[0].Up)
}

func TestClockEpochBackfillsExistingRows(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	defer db.Close()

	d := goose.Sqlite3Dialect{}
	create := CreateTableChange(d, widgets,
		ColumnDef{Column: column("id"), AutoIncrement: true},
		ColumnDef{Column: column("name"), Type: String, NotNull: true},
	)
	require.NoError(t, Apply(db, []Change{create}))
	_, err = db.Exec(`INSERT INTO "group" (name) VALUES ('flatmates'), ('trip')`)
	require.NoError(t, err)

	t0 := time.Date(2025, 9, 9, 12, 30, 0, 0, time.UTC)
	require.NoError(t, Apply(db, timestampChanges(d, ClockEpoch{Clock: clock.NewMockClock(t0)})))

	rows, err := db.Query(`SELECT created_at, updated_at FROM "group" ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var n int
	for rows.Next() {
		var createdAt, updatedAt int64
		require.NoError(t, rows.Scan(&createdAt, &updatedAt))
		assert.Equal(t, t0.Unix(), createdAt)
		assert.Equal(t, t0.Unix(), updatedAt)
		n++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, 2, n)
}

func TestApplyAndRevertOrder(t *testing.T) {
	changes := timestampChanges(goose.MySqlDialect{}, FixedEpoch(1725868800))

	exec := &recordingExecer{}
	require.NoError(t, Apply(exec, changes))
	require.Equal(t, []string{
		"ALTER TABLE `group` ADD COLUMN `created_at` INTEGER NOT NULL DEFAULT 1725868800",
		"ALTER TABLE `group` ADD COLUMN `updated_at` INTEGER NOT NULL DEFAULT 1725868800",
	}, exec.stmts)

	exec = &recordingExecer{}
	require.NoError(t, Revert(exec, changes))
	require.Equal(t, []string{
		"ALTER TABLE `group` DROP COLUMN `updated_at`",
		"ALTER TABLE `group` DROP COLUMN `created_at`",
	}, exec.stmts)
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	changes := timestampChanges(goose.MySqlDialect{}, FixedEpoch(1725868800))

	exec := &recordingExecer{failOn: changes[0].Up}
	err := Apply(exec, changes)
	require.Error(t, err)
	require.Len(t, exec.stmts, 1)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "group", schemaErr.Table)
	assert.Equal(t, changes[0].Up, schemaErr.Statement)
	assert.EqualError(t, errors.Unwrap(err), "exec failed")

	exec = &recordingExecer{failOn: changes[1].Down}
	require.Error(t, Revert(exec, changes))
	require.Len(t, exec.stmts, 1)
}

func TestIsDuplicateColumn(t *testing.T) {
	dup := &mysql.MySQLError{Number: mysqlerr.ER_DUP_FIELDNAME, Message: "Duplicate column name 'created_at'"}
	assert.True(t, IsDuplicateColumn(dup))
	assert.True(t, IsDuplicateColumn(&SchemaError{Table: "group", Err: dup}))
	assert.True(t, IsDuplicateColumn(fmt.Errorf("wrapped: %w", &SchemaError{Table: "group", Err: dup})))
	assert.False(t, IsDuplicateColumn(&mysql.MySQLError{Number: mysqlerr.ER_NO_SUCH_TABLE}))
	assert.False(t, IsDuplicateColumn(errors.New("duplicate column name")))
	assert.False(t, IsDuplicateColumn(nil))

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	defer db.Close()

	d := goose.Sqlite3Dialect{}
	create := CreateTableChange(d, widgets, ColumnDef{Column: column("id"), AutoIncrement: true})
	changes := timestampChanges(d, FixedEpoch(1725868800))
	require.NoError(t, Apply(db, append([]Change{create}, changes...)))

	err = Apply(db, changes)
	require.Error(t, err)
	assert.True(t, IsDuplicateColumn(err))

	require.NoError(t, Revert(db, changes))
	require.NoError(t, Apply(db, changes))
}
