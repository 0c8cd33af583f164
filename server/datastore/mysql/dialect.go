package mysql

import (
	"context"
	"strings"
	"sync"

	"github.com/joaoariedi/money-balancer/server/contexts/ctxerr"
)

type DBDialect int

const (
	DialectUnknown DBDialect = iota
	DialectMySQL
	DialectMariaDB
)

func (d DBDialect) String() string {
	switch d {
	case DialectMySQL:
		return "MySQL"
	case DialectMariaDB:
		return "MariaDB"
	default:
		return "Unknown"
	}
}

type dialectDetector struct {
	mu      sync.Mutex
	dialect DBDialect
	version string
}

// DetectDialect detects whether the database is MySQL or MariaDB. The result
// is cached for the lifetime of the datastore.
func (d *Datastore) DetectDialect(ctx context.Context) (DBDialect, string, error) {
	d.dialect.mu.Lock()
	defer d.dialect.mu.Unlock()

	if d.dialect.dialect != DialectUnknown {
		return d.dialect.dialect, d.dialect.version, nil
	}

	var version string
	if err := d.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return DialectUnknown, "", ctxerr.Wrap(ctx, err, "select server version")
	}

	// MariaDB version strings contain "MariaDB"
	// Example: "11.6.2-MariaDB-1:11.6.2+maria~ubu2404"
	// MySQL version strings look like: "8.0.36"
	dialect := DialectMySQL
	if strings.Contains(version, "MariaDB") {
		dialect = DialectMariaDB
	}

	d.dialect.dialect = dialect
	d.dialect.version = version
	return dialect, version, nil
}
