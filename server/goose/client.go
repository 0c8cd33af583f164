// Package goose is a schema migration runner. Migrations are registered Go
// functions (or .sql files) keyed by a unique, increasing version, and a
// ledger table records every migration applied or rolled back.
package goose

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Client holds the registered migrations and the ledger settings for one
// migration set.
type Client struct {
	// TableName is the name of the ledger table.
	TableName string
	Dialect   SqlDialect
	// Migrations is sorted by version.
	Migrations Migrations
	Logger     log.Logger
}

func New(tableName string, dialect SqlDialect) *Client {
	return &Client{
		TableName: tableName,
		Dialect:   dialect,
		Logger:    log.NewNopLogger(),
	}
}

// AddMigration registers a Go migration. The version is the numeric prefix
// of the calling file name. Both functions are required; a migration that
// cannot be reverted must still provide a down function that says so.
//
// Registering two migrations with the same version panics.
func (c *Client) AddMigration(up func(*sql.Tx) error, down func(*sql.Tx) error) {
	_, filename, _, _ := runtime.Caller(1)
	c.AddNamedMigration(filename, up, down)
}

// AddNamedMigration registers a Go migration for the given file name.
func (c *Client) AddNamedMigration(filename string, up func(*sql.Tx) error, down func(*sql.Tx) error) {
	if up == nil || down == nil {
		panic(fmt.Sprintf("goose: migration %s must define both up and down functions", filepath.Base(filename)))
	}
	v, err := NumericComponent(filename)
	if err != nil {
		panic(fmt.Sprintf("goose: %s: %v", filepath.Base(filename), err))
	}
	for _, existing := range c.Migrations {
		if existing.Version == v {
			panic(fmt.Sprintf("goose: duplicate version %d detected:\n%s\n%s", v, existing.Source, filename))
		}
	}
	migration := &Migration{Version: v, Next: -1, Previous: -1, Source: filename, UpFn: up, DownFn: down}
	c.Migrations = sortAndConnectMigrations(append(c.Migrations, migration))
}

// Up applies all pending migrations.
func (c *Client) Up(db *sql.DB, dir string) error {
	migrations, err := c.collectMigrations(dir, minVersion, maxVersion)
	if err != nil {
		return err
	}

	for {
		current, err := c.GetDBVersion(db)
		if err != nil {
			return err
		}

		next, err := migrations.Next(current)
		if err != nil {
			if errors.Is(err, ErrNoNextVersion) {
				level.Info(c.Logger).Log("msg", "no migrations to run", "current_version", current)
				return nil
			}
			return err
		}

		if err = c.runMigration(db, next, migrateUp); err != nil {
			return err
		}
	}
}

// UpByOne applies the next pending migration.
func (c *Client) UpByOne(db *sql.DB, dir string) error {
	migrations, err := c.collectMigrations(dir, minVersion, maxVersion)
	if err != nil {
		return err
	}

	currentVersion, err := c.GetDBVersion(db)
	if err != nil {
		return err
	}

	next, err := migrations.Next(currentVersion)
	if err != nil {
		if errors.Is(err, ErrNoNextVersion) {
			level.Info(c.Logger).Log("msg", "no migrations to run", "current_version", currentVersion)
		}
		return err
	}

	return c.runMigration(db, next, migrateUp)
}

// Down rolls back the current migration.
func (c *Client) Down(db *sql.DB, dir string) error {
	currentVersion, err := c.GetDBVersion(db)
	if err != nil {
		return err
	}

	migrations, err := c.collectMigrations(dir, minVersion, maxVersion)
	if err != nil {
		return err
	}

	current, err := migrations.Current(currentVersion)
	if err != nil {
		return fmt.Errorf("no migration %d", currentVersion)
	}

	return c.runMigration(db, current, migrateDown)
}

// DownTo rolls back migrations, newest first, until the current version is
// less than or equal to version.
func (c *Client) DownTo(db *sql.DB, dir string, version int64) error {
	migrations, err := c.collectMigrations(dir, minVersion, maxVersion)
	if err != nil {
		return err
	}

	for {
		currentVersion, err := c.GetDBVersion(db)
		if err != nil {
			return err
		}

		current, err := migrations.Current(currentVersion)
		if err != nil {
			level.Info(c.Logger).Log("msg", "no migrations to roll back", "current_version", currentVersion)
			return nil
		}

		if current.Version <= version {
			level.Info(c.Logger).Log("msg", "no migrations to roll back", "current_version", currentVersion)
			return nil
		}

		if err = c.runMigration(db, current, migrateDown); err != nil {
			return err
		}
	}
}

// Redo rolls back the current migration and applies it again.
func (c *Client) Redo(db *sql.DB, dir string) error {
	currentVersion, err := c.GetDBVersion(db)
	if err != nil {
		return err
	}

	migrations, err := c.collectMigrations(dir, minVersion, maxVersion)
	if err != nil {
		return err
	}

	current, err := migrations.Current(currentVersion)
	if err != nil {
		return err
	}

	if err := c.runMigration(db, current, migrateDown); err != nil {
		return err
	}

	return c.runMigration(db, current, migrateUp)
}

// MigrationState is the ledger state of one known migration.
type MigrationState struct {
	Version   int64
	Name      string
	Source    string
	Applied   bool
	AppliedAt time.Time
}

// Status returns the state of every known migration, oldest first.
func (c *Client) Status(db *sql.DB, dir string) ([]MigrationState, error) {
	migrations, err := c.collectMigrations(dir, minVersion, maxVersion)
	if err != nil {
		return nil, err
	}

	// must ensure that the version table exists if we're running on a pristine DB
	if _, err := c.EnsureDBVersion(db); err != nil {
		return nil, err
	}

	states := make([]MigrationState, 0, len(migrations))
	for _, migration := range migrations {
		var row MigrationRecord
		q := c.Dialect.migrationSql(c.TableName)
		err := db.QueryRow(q, migration.Version).Scan(&row.TStamp, &row.IsApplied)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		state := MigrationState{Version: migration.Version, Name: migration.Name(), Source: migration.Source}
		if row.IsApplied {
			state.Applied = true
			state.AppliedAt = row.TStamp
		}
		states = append(states, state)
	}

	return states, nil
}

// GetDBVersion returns the current version of the database, creating the
// ledger table if needed.
func (c *Client) GetDBVersion(db *sql.DB) (int64, error) {
	version, err := c.EnsureDBVersion(db)
	if err != nil {
		return -1, err
	}

	return version, nil
}

// EnsureDBVersion retrieves the current version for this DB.
// Create and initialize the DB version table if it doesn't exist.
func (c *Client) EnsureDBVersion(db *sql.DB) (int64, error) {
	rows, err := c.Dialect.dbVersionQuery(db, c.TableName)
	if err != nil {
		exists, existsErr := c.tableExists(db)
		if existsErr != nil || exists {
			return 0, fmt.Errorf("query ledger table %s: %w", c.TableName, err)
		}
		return 0, c.createVersionTable(db)
	}
	defer rows.Close()

	// The most recent record for each migration specifies
	// whether it has been applied or rolled back.
	// The first version we find that has been applied is the current version.

	toSkip := make([]int64, 0)

	for rows.Next() {
		var row MigrationRecord
		if err = rows.Scan(&row.VersionId, &row.IsApplied); err != nil {
			return 0, fmt.Errorf("scan ledger row: %w", err)
		}

		// have we already marked this version to be skipped?
		skip := false
		for _, v := range toSkip {
			if v == row.VersionId {
				skip = true
				break
			}
		}

		if skip {
			continue
		}

		// if version has been applied we're done
		if row.IsApplied {
			return row.VersionId, nil
		}

		// latest version of migration has not been applied.
		toSkip = append(toSkip, row.VersionId)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	return 0, nil
}

func (c *Client) tableExists(db *sql.DB) (bool, error) {
	rows, err := db.Query(c.Dialect.ColumnNamesQuery(), c.TableName)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	exists := rows.Next()
	return exists, rows.Err()
}

// Create the goose_db_version table
// and insert the initial 0 value into it
func (c *Client) createVersionTable(db *sql.DB) error {
	txn, err := db.Begin()
	if err != nil {
		return err
	}

	if _, err := txn.Exec(c.Dialect.createVersionTableSql(c.TableName)); err != nil {
		txn.Rollback() //nolint:errcheck
		return err
	}

	version := 0
	applied := true
	if _, err := txn.Exec(c.Dialect.insertVersionSql(c.TableName), version, applied); err != nil {
		txn.Rollback() //nolint:errcheck
		return err
	}

	return txn.Commit()
}
