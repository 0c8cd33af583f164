package goose

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/go-kit/log/level"
)

type MigrationRecord struct {
	VersionId int64
	TStamp    time.Time
	IsApplied bool // was this a result of up() or down()
}

type Migration struct {
	Version  int64
	Next     int64               // next version, or -1 if none
	Previous int64               // previous version, -1 if none
	Source   string              // path to .sql script or registering .go file
	UpFn     func(*sql.Tx) error // Up go migration function
	DownFn   func(*sql.Tx) error // Down go migration function
}

const (
	migrateUp   = true
	migrateDown = !migrateUp
)

func (m *Migration) String() string {
	return fmt.Sprint(m.Source)
}

// Name returns the human readable name of the migration, e.g.
// "Add Group Timestamps" for 20250909000001_AddGroupTimestamps.go.
func (m *Migration) Name() string {
	name, _, _ := parseNameAndDate(m.Source)
	return name
}

func directionName(direction bool) string {
	if direction == migrateUp {
		return "up"
	}
	return "down"
}

func (c *Client) runMigration(db *sql.DB, m *Migration, direction bool) error {
	switch filepath.Ext(m.Source) {
	case ".sql":
		if err := c.runSQLMigration(db, m.Source, m.Version, direction); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", filepath.Base(m.Source), err)
		}

	case ".go":
		name, date, err := parseNameAndDate(m.Source)
		if err != nil {
			return err
		}
		level.Info(c.Logger).Log("msg", "running migration", "version", m.Version, "name", name, "date", date, "direction", directionName(direction))

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		fn := m.UpFn
		if !direction {
			fn = m.DownFn
		}
		if fn != nil {
			if err := fn(tx); err != nil {
				tx.Rollback() //nolint:errcheck
				level.Error(c.Logger).Log("msg", "migration failed, quitting", "version", m.Version, "source", filepath.Base(m.Source), "err", err)
				return err
			}
		}

		if err = c.FinalizeMigration(tx, direction, m.Version); err != nil {
			return fmt.Errorf("finalizing migration %s: %w", filepath.Base(m.Source), err)
		}

	default:
		return fmt.Errorf("%s: not a recognized migration file type", m.Source)
	}

	return nil
}

var (
	upperReplace         = regexp.MustCompile("([a-z])([A-Z])")       // e.g. UpdateBuiltin -> Update Builtin
	allUpperWordsReplace = regexp.MustCompile("([A-Z]+)([A-Z][a-z])") // e.g. IDIn -> ID In
)

func parseNameAndDate(source string) (name string, date string, err error) {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 || len(parts[0]) < 8 {
		return "", "", fmt.Errorf("%s: migration file name must be <timestamp>_<name>", source)
	}
	// Only the date is shown. Seconds may be out of range when migrations are
	// re-arranged by hand, e.g. "20201021104586".
	mt, err := time.Parse("20060102", parts[0][:8])
	if err != nil {
		return "", "", fmt.Errorf("fail to parse time: %w", err)
	}
	name = upperReplace.ReplaceAllString(parts[1], "$1 $2")     // add spaces in the filename
	name = allUpperWordsReplace.ReplaceAllString(name, "$1 $2") // add spaces in the filename
	name = strings.ReplaceAll(name, "_", " ")
	date = mt.Format("2006-01-02")
	return name, date, nil
}

// look for migration scripts with names in the form:
//
//	XXX_descriptivename.ext
//
// where XXX specifies the version number
// and ext specifies the type of migration
func NumericComponent(name string) (int64, error) {
	base := filepath.Base(name)

	if ext := filepath.Ext(base); ext != ".go" && ext != ".sql" {
		return 0, errors.New("not a recognized migration file type")
	}

	idx := strings.Index(base, "_")
	if idx < 0 {
		return 0, errors.New("no separator found")
	}

	n, e := strconv.ParseInt(base[:idx], 10, 64)
	if e == nil && n <= 0 {
		return 0, errors.New("migration IDs must be greater than zero")
	}

	return n, e
}

func CreateMigration(name, migrationType, dir string, t time.Time) ([]string, error) {
	if migrationType != "go" && migrationType != "sql" {
		return nil, errors.New("migration type must be 'go' or 'sql'")
	}

	timestamp := t.Format("20060102150405")
	filename := fmt.Sprintf("%s_%s.%s", timestamp, name, migrationType)

	fpath := filepath.Join(dir, filename)
	tmpl := sqlMigrationTemplate
	if migrationType == "go" {
		tmpl = goSqlMigrationTemplate
	}

	var paths []string

	migrationPath, err := writeTemplateToFile(fpath, tmpl, timestamp)
	if err != nil {
		return nil, err
	}
	paths = append(paths, migrationPath)

	if migrationType == "go" {
		fpath := strings.Replace(filepath.Join(dir, filename), ".go", "_test.go", 1)
		migrationTestPath, err := writeTemplateToFile(fpath, goSqlMigrationTestTemplate, timestamp)
		if err != nil {
			return nil, err
		}
		paths = append(paths, migrationTestPath)
	}

	return paths, nil
}

// Update the version table for the given migration,
// and finalize the transaction.
func (c *Client) FinalizeMigration(tx *sql.Tx, direction bool, v int64) error {
	stmt := c.Dialect.insertVersionSql(c.TableName)
	if _, err := tx.Exec(stmt, v, direction); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	return tx.Commit()
}

var sqlMigrationTemplate = template.Must(template.New("goose.sql-migration").Parse(`
-- +goose Up
-- SQL in section 'Up' is executed when this migration is applied


-- +goose Down
-- SQL section 'Down' is executed when this migration is rolled back

`))

var goSqlMigrationTemplate = template.Must(template.New("goose.go-migration").Parse(`
package tables

import (
    "database/sql"
)

func init() {
    MigrationClient.AddMigration(Up_{{.}}, Down_{{.}})
}

func Up_{{.}}(tx *sql.Tx) error {
    return nil
}

func Down_{{.}}(tx *sql.Tx) error {
    return nil
}
`))

var goSqlMigrationTestTemplate = template.Must(template.New("goose.go-migration").Parse(`
package tables

import "testing"

func TestUp_{{.}}(t *testing.T) {
	db := applyUpToPrev(t)

	//
	// Insert data to test the migration
	//
	// ...

	// Apply current migration.
	applyNext(t, db)

	//
	// Check data, insert new entries, e.g. to verify migration is safe.
	//
	// ...
}`))
