package tables

import (
	"database/sql"

	"github.com/joaoariedi/money-balancer/server/datastore/schema"
	"github.com/joaoariedi/money-balancer/server/goose"
	"github.com/pkg/errors"
)

var MigrationClient = goose.New("migration_status_tables", goose.MySqlDialect{})

// dialect returns the dialect the migrations render their statements with.
// Tests swap the client's dialect to run the migrations on SQLite.
func dialect() goose.SqlDialect {
	return MigrationClient.Dialect
}

// applyChanges applies changes and annotates a failure with what the
// migration was doing.
func applyChanges(tx *sql.Tx, changes []schema.Change, errorMessage string) error {
	return errors.Wrap(schema.Apply(tx, changes), errorMessage)
}

// revertChanges reverts changes and annotates a failure with what the
// migration was doing.
func revertChanges(tx *sql.Tx, changes []schema.Change, errorMessage string) error {
	return errors.Wrap(schema.Revert(tx, changes), errorMessage)
}

// The group table and its columns. The physical names only appear here.
var groupTable = schema.Table("group")

type groupColumn int

const (
	groupID groupColumn = iota
	groupName
	groupCreatedAt
	groupUpdatedAt
)

func (c groupColumn) Name() string {
	switch c {
	case groupID:
		return "id"
	case groupName:
		return "name"
	case groupCreatedAt:
		return "created_at"
	case groupUpdatedAt:
		return "updated_at"
	}
	panic("unknown group column")
}
