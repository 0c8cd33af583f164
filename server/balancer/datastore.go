// Package balancer holds the types shared by the money-balancer datastore and
// its command line tools.
package balancer

import (
	"context"
	"time"
)

// MigrationStore is the subset of the datastore used to manage the schema.
type MigrationStore interface {
	// MigrateTables applies every pending table migration in ascending order.
	MigrateTables(ctx context.Context) error
	// MigrateTablesDown reverts the latest steps applied table migrations.
	MigrateTablesDown(ctx context.Context, steps int) error
	// MigrateTablesDownTo reverts table migrations until version is the
	// latest applied one.
	MigrateTablesDownTo(ctx context.Context, version int64) error
	// MigrationStatus compares the known table migrations with the ledger.
	MigrationStatus(ctx context.Context) (*MigrationStatus, error)
	// MigrationStates lists every known table migration with its ledger state.
	MigrationStates(ctx context.Context) ([]MigrationState, error)
	HealthCheck() error
	Close() error
}

type MigrationStatus struct {
	// StatusCode holds the code for the migration status.
	//
	// If StatusCode is NoMigrationsCompleted or AllMigrationsCompleted
	// then all other fields are empty.
	//
	// If StatusCode is SomeMigrationsCompleted, then missing migrations
	// are available in MissingTable and the newest applied one in
	// CurrentVersion.
	//
	// If StatusCode is UnknownMigrations, then unknown migrations
	// are available in UnknownTable.
	StatusCode MigrationStatusCode `json:"status_code"`
	// MissingTable holds the missing table migrations.
	MissingTable []int64 `json:"missing_table"`
	// UnknownTable holds unknown applied table migrations.
	UnknownTable []int64 `json:"unknown_table"`
	// CurrentVersion is the newest applied table migration.
	CurrentVersion int64 `json:"current_version"`
}

// OutOfOrder returns the missing table migrations that are older than
// CurrentVersion. Applying pending migrations never reaches them.
func (s *MigrationStatus) OutOfOrder() []int64 {
	var out []int64
	for _, v := range s.MissingTable {
		if v < s.CurrentVersion {
			out = append(out, v)
		}
	}
	return out
}

type MigrationStatusCode int

const (
	// NoMigrationsCompleted indicates the database has no migrations installed.
	NoMigrationsCompleted MigrationStatusCode = iota
	// SomeMigrationsCompleted indicates some (not all) migrations are missing.
	SomeMigrationsCompleted
	// AllMigrationsCompleted means all migrations have been installed successfully.
	AllMigrationsCompleted
	// UnknownMigrations means some unidentified migrations were detected on the database.
	UnknownMigrations
)

func (c MigrationStatusCode) String() string {
	switch c {
	case NoMigrationsCompleted:
		return "no migrations completed"
	case SomeMigrationsCompleted:
		return "some migrations completed"
	case AllMigrationsCompleted:
		return "all migrations completed"
	case UnknownMigrations:
		return "unknown migrations"
	default:
		return "invalid"
	}
}

// MigrationState is a known table migration and its ledger state.
type MigrationState struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Group is a row of the group table.
type Group struct {
	ID   uint   `db:"id"`
	Name string `db:"name"`
	// CreatedAt and UpdatedAt are epoch seconds. Groups created before they
	// were tracked hold the backfill value.
	CreatedAt int64 `db:"created_at"`
	UpdatedAt int64 `db:"updated_at"`
}

// CreatedTime returns CreatedAt as a UTC time.
func (g Group) CreatedTime() time.Time { return time.Unix(g.CreatedAt, 0).UTC() }

// UpdatedTime returns UpdatedAt as a UTC time.
func (g Group) UpdatedTime() time.Time { return time.Unix(g.UpdatedAt, 0).UTC() }
