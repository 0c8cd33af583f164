package mysql

import (
	"time"

	"github.com/go-kit/log"
)

const (
	defaultMaxAttempts    int = 15
	defaultConnectTimeout     = 2 * time.Minute
)

// DBOption is used to pass optional arguments to a database connection
type DBOption func(o *dbOptions) error

type dbOptions struct {
	// maxAttempts configures the number of retries to connect to the DB
	maxAttempts int
	// connectTimeout bounds the total time spent retrying
	connectTimeout time.Duration
	logger         log.Logger
	// sqlMigrationsDir holds .sql migrations run along the table migrations
	sqlMigrationsDir string
}

// Logger adds a logger to the datastore
func Logger(l log.Logger) DBOption {
	return func(o *dbOptions) error {
		o.logger = l
		return nil
	}
}

// LimitAttempts sets a the number of attempts
// to try establishing a connection to the database backend
// the default value is 15 attempts
func LimitAttempts(attempts int) DBOption {
	return func(o *dbOptions) error {
		o.maxAttempts = attempts
		return nil
	}
}

// ConnectTimeout bounds the total time spent establishing the connection.
func ConnectTimeout(d time.Duration) DBOption {
	return func(o *dbOptions) error {
		o.connectTimeout = d
		return nil
	}
}

// SQLMigrationsDir adds a directory of <timestamp>_<name>.sql migrations
// that are run together with the table migrations.
func SQLMigrationsDir(dir string) DBOption {
	return func(o *dbOptions) error {
		o.sqlMigrationsDir = dir
		return nil
	}
}
