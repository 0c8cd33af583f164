package tables

import (
	"database/sql"

	"github.com/joaoariedi/money-balancer/server/datastore/schema"
)

func init() {
	MigrationClient.AddMigration(Up_20220912000002, Down_20220912000002)
}

func createGroupTableChanges() []schema.Change {
	return []schema.Change{
		schema.CreateTableChange(dialect(), groupTable,
			schema.ColumnDef{Column: groupID, AutoIncrement: true},
			schema.ColumnDef{Column: groupName, Type: schema.String, NotNull: true},
		),
	}
}

func Up_20220912000002(tx *sql.Tx) error {
	return applyChanges(tx, createGroupTableChanges(), "create group table")
}

func Down_20220912000002(tx *sql.Tx) error {
	return revertChanges(tx, createGroupTableChanges(), "drop group table")
}
