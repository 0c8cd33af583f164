// Package schema builds the schema alteration statements used by table
// migrations. Tables and columns are referenced through symbolic
// identifiers, and every forward statement is authored together with the
// statement that reverts it.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/WatchBeam/clock"
)

// Iden is a symbolic identifier resolved to a physical table or column name.
type Iden interface {
	Name() string
}

// Table identifies a table by its physical name.
type Table string

func (t Table) Name() string { return string(t) }

// Dialect renders dialect specific fragments. goose.SqlDialect implementations
// satisfy it.
type Dialect interface {
	QuoteIdent(name string) string
	AutoIncrementPrimaryKey() string
}

type ColumnType int

const (
	Integer ColumnType = iota
	String
)

func (ct ColumnType) sql() string {
	switch ct {
	case Integer:
		return "INTEGER"
	case String:
		return "VARCHAR(255)"
	default:
		panic(fmt.Sprintf("schema: unknown column type %d", ct))
	}
}

// Default computes the literal default value of a column. It is evaluated
// when the statement is built, i.e. when the migration runs.
type Default interface {
	Literal() string
}

// FixedEpoch is a constant epoch (seconds) default, giving pre-existing rows
// a reproducible backfill value.
type FixedEpoch int64

func (f FixedEpoch) Literal() string { return strconv.FormatInt(int64(f), 10) }

// ClockEpoch defaults to the epoch (seconds) read from Clock at the time the
// statement is built.
type ClockEpoch struct {
	Clock clock.Clock
}

func (c ClockEpoch) Literal() string { return strconv.FormatInt(c.Clock.Now().Unix(), 10) }

// ColumnDef describes a column to create.
type ColumnDef struct {
	Column  Iden
	Type    ColumnType
	NotNull bool
	// AutoIncrement makes the column the table's surrogate primary key; Type,
	// NotNull and Default are ignored.
	AutoIncrement bool
	Default       Default
}

func (c ColumnDef) sql(d Dialect) string {
	var b strings.Builder
	b.WriteString(d.QuoteIdent(c.Column.Name()))
	b.WriteString(" ")
	if c.AutoIncrement {
		b.WriteString(d.AutoIncrementPrimaryKey())
		return b.String()
	}
	b.WriteString(c.Type.sql())
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default.Literal())
	}
	return b.String()
}

// CreateTable returns a CREATE TABLE statement.
func CreateTable(d Dialect, table Iden, cols ...ColumnDef) string {
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, c.sql(d))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.QuoteIdent(table.Name()), strings.Join(defs, ", "))
}

// DropTable returns a DROP TABLE statement.
func DropTable(d Dialect, table Iden) string {
	return fmt.Sprintf("DROP TABLE %s", d.QuoteIdent(table.Name()))
}

// AddColumn returns an ALTER TABLE statement adding a single column.
func AddColumn(d Dialect, table Iden, col ColumnDef) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.QuoteIdent(table.Name()), col.sql(d))
}

// DropColumn returns an ALTER TABLE statement dropping a single column.
func DropColumn(d Dialect, table Iden, col Iden) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.QuoteIdent(table.Name()), d.QuoteIdent(col.Name()))
}
