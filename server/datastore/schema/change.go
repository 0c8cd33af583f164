package schema

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/VividCortex/mysqlerr"
	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// Execer is implemented by *sql.Tx and *sql.DB.
type Execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Change is a forward schema statement paired with the statement that
// reverts it.
type Change struct {
	Table Iden
	Up    string
	Down  string
}

// CreateTableChange creates table on apply and drops it on revert.
func CreateTableChange(d Dialect, table Iden, cols ...ColumnDef) Change {
	return Change{
		Table: table,
		Up:    CreateTable(d, table, cols...),
		Down:  DropTable(d, table),
	}
}

// AddColumnChange adds col on apply and drops it on revert.
func AddColumnChange(d Dialect, table Iden, col ColumnDef) Change {
	return Change{
		Table: table,
		Up:    AddColumn(d, table, col),
		Down:  DropColumn(d, table, col.Column),
	}
}

// Apply runs the forward statement of each change, in order. It stops at the
// first failure.
func Apply(exec Execer, changes []Change) error {
	for _, c := range changes {
		if _, err := exec.Exec(c.Up); err != nil {
			return &SchemaError{Table: c.Table.Name(), Statement: c.Up, Err: err}
		}
	}
	return nil
}

// Revert runs the reverting statement of each change, in reverse order. It
// stops at the first failure.
func Revert(exec Execer, changes []Change) error {
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		if _, err := exec.Exec(c.Down); err != nil {
			return &SchemaError{Table: c.Table.Name(), Statement: c.Down, Err: err}
		}
	}
	return nil
}

// SchemaError is returned when a schema alteration statement fails.
type SchemaError struct {
	Table     string
	Statement string
	Err       error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("alter table %s: %s: %v", e.Table, e.Statement, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// IsDuplicateColumn returns true if err was caused by adding a column that
// already exists.
func IsDuplicateColumn(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlerr.ER_DUP_FIELDNAME
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), "duplicate column name")
	}
	return false
}
