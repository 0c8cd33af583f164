package tables

import (
	"database/sql"

	"github.com/joaoariedi/money-balancer/server/datastore/schema"
)

func init() {
	MigrationClient.AddMigration(Up_20250909000001, Down_20250909000001)
}

// Groups created before timestamps were tracked are backfilled with
// 2024-09-09 08:00:00 UTC.
const groupTimestampsBackfill = schema.FixedEpoch(1725868800)

func addGroupTimestampsChanges() []schema.Change {
	return []schema.Change{
		schema.AddColumnChange(dialect(), groupTable, schema.ColumnDef{
			Column:  groupCreatedAt,
			Type:    schema.Integer,
			NotNull: true,
			Default: groupTimestampsBackfill,
		}),
		schema.AddColumnChange(dialect(), groupTable, schema.ColumnDef{
			Column:  groupUpdatedAt,
			Type:    schema.Integer,
			NotNull: true,
			Default: groupTimestampsBackfill,
		}),
	}
}

func Up_20250909000001(tx *sql.Tx) error {
	return applyChanges(tx, addGroupTimestampsChanges(), "add group timestamps")
}

func Down_20250909000001(tx *sql.Tx) error {
	return revertChanges(tx, addGroupTimestampsChanges(), "drop group timestamps")
}
