package goose

import (
	"database/sql"
	"fmt"
	"strings"
)

// SqlDialect abstracts the details of specific SQL dialects
// for goose's few SQL specific statements
type SqlDialect interface {
	createVersionTableSql(tableName string) string // sql string to create the goose_db_version table
	insertVersionSql(tableName string) string      // sql string to insert the initial version table row
	dbVersionQuery(db *sql.DB, tableName string) (*sql.Rows, error)
	migrationSql(tableName string) string // sql string to fetch the latest ledger row of a version

	// QuoteIdent quotes a table or column name.
	QuoteIdent(name string) string
	// AutoIncrementPrimaryKey returns the type and constraints of a
	// surrogate integer primary key column.
	AutoIncrementPrimaryKey() string
	// ColumnNamesQuery returns a query listing the column names of the
	// table given as its only argument, in ordinal order.
	ColumnNamesQuery() string
}

// DialectByName returns the dialect for the database/sql driver name d.
func DialectByName(d string) (SqlDialect, error) {
	switch d {
	case "postgres":
		return PostgresDialect{}, nil
	case "mysql":
		return MySqlDialect{}, nil
	case "sqlite3":
		return Sqlite3Dialect{}, nil
	}
	return nil, fmt.Errorf("%q: unknown dialect", d)
}

////////////////////////////
// Postgres
////////////////////////////

type PostgresDialect struct{}

func (pg PostgresDialect) createVersionTableSql(tableName string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
            	id serial NOT NULL,
                version_id bigint NOT NULL,
                is_applied boolean NOT NULL,
                tstamp timestamp NULL default now(),
                PRIMARY KEY(id)
            );`, tableName)
}

func (pg PostgresDialect) insertVersionSql(tableName string) string {
	return fmt.Sprintf("INSERT INTO %s (version_id, is_applied) VALUES ($1, $2);", tableName)
}

func (pg PostgresDialect) dbVersionQuery(db *sql.DB, tableName string) (*sql.Rows, error) {
	rows, err := db.Query(fmt.Sprintf("SELECT version_id, is_applied from %s ORDER BY id DESC", tableName))
	if err != nil {
		return nil, err
	}

	return rows, err
}

func (pg PostgresDialect) migrationSql(tableName string) string {
	return fmt.Sprintf("SELECT tstamp, is_applied FROM %s WHERE version_id=$1 ORDER BY id DESC LIMIT 1", tableName)
}

func (pg PostgresDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (pg PostgresDialect) AutoIncrementPrimaryKey() string {
	return "SERIAL PRIMARY KEY"
}

func (pg PostgresDialect) ColumnNamesQuery() string {
	return `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = current_schema()
AND table_name = $1
ORDER BY ordinal_position`
}

////////////////////////////
// MySQL
////////////////////////////

type MySqlDialect struct{}

func (m MySqlDialect) createVersionTableSql(tableName string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
                id serial NOT NULL,
                version_id bigint NOT NULL,
                is_applied boolean NOT NULL,
                tstamp timestamp NULL default now(),
                PRIMARY KEY(id)
            );`, tableName)
}

func (m MySqlDialect) insertVersionSql(tableName string) string {
	return fmt.Sprintf("INSERT INTO %s (version_id, is_applied) VALUES (?, ?);", tableName)
}

func (m MySqlDialect) dbVersionQuery(db *sql.DB, tableName string) (*sql.Rows, error) {
	rows, err := db.Query(fmt.Sprintf("SELECT version_id, is_applied from %s ORDER BY id DESC", tableName))
	if err != nil {
		return nil, err
	}

	return rows, err
}

func (m MySqlDialect) migrationSql(tableName string) string {
	return fmt.Sprintf("SELECT tstamp, is_applied FROM %s WHERE version_id=? ORDER BY id DESC LIMIT 1", tableName)
}

func (m MySqlDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (m MySqlDialect) AutoIncrementPrimaryKey() string {
	return "INT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY"
}

func (m MySqlDialect) ColumnNamesQuery() string {
	return `
SELECT COLUMN_NAME
FROM information_schema.columns
WHERE TABLE_SCHEMA = DATABASE()
AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`
}

////////////////////////////
// sqlite3
////////////////////////////

type Sqlite3Dialect struct{}

func (m Sqlite3Dialect) createVersionTableSql(tableName string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                version_id INTEGER NOT NULL,
                is_applied INTEGER NOT NULL,
                tstamp TIMESTAMP DEFAULT (datetime('now'))
            );`, tableName)
}

func (m Sqlite3Dialect) insertVersionSql(tableName string) string {
	return fmt.Sprintf("INSERT INTO %s (version_id, is_applied) VALUES (?, ?);", tableName)
}

func (m Sqlite3Dialect) dbVersionQuery(db *sql.DB, tableName string) (*sql.Rows, error) {
	rows, err := db.Query(fmt.Sprintf("SELECT version_id, is_applied from %s ORDER BY id DESC", tableName))
	if err != nil {
		return nil, err
	}

	return rows, err
}

func (m Sqlite3Dialect) migrationSql(tableName string) string {
	return fmt.Sprintf("SELECT tstamp, is_applied FROM %s WHERE version_id=? ORDER BY id DESC LIMIT 1", tableName)
}

func (m Sqlite3Dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (m Sqlite3Dialect) AutoIncrementPrimaryKey() string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (m Sqlite3Dialect) ColumnNamesQuery() string {
	return `SELECT name FROM pragma_table_info(?) ORDER BY cid`
}
