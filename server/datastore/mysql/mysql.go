// Package mysql is a MySQL implementation of the balancer.MigrationStore
// interface.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/joaoariedi/money-balancer/server/balancer"
	"github.com/joaoariedi/money-balancer/server/config"
	"github.com/joaoariedi/money-balancer/server/contexts/ctxerr"
	"github.com/joaoariedi/money-balancer/server/datastore/mysql/migrations/tables"
	"github.com/joaoariedi/money-balancer/server/goose"
)

// Datastore is an implementation of balancer.MigrationStore backed by MySQL
type Datastore struct {
	db *sqlx.DB

	logger log.Logger
	clock  clock.Clock
	config config.MysqlConfig

	migrations *goose.Client
	// sqlMigrationsDir is passed to goose; empty means only the compiled
	// table migrations.
	sqlMigrationsDir string

	dialect dialectDetector
}

var _ balancer.MigrationStore = (*Datastore)(nil)

// New creates an MySQL datastore.
func New(config config.MysqlConfig, c clock.Clock, opts ...DBOption) (*Datastore, error) {
	options := &dbOptions{
		maxAttempts:    defaultMaxAttempts,
		connectTimeout: defaultConnectTimeout,
		logger:         log.NewNopLogger(),
	}

	for _, setOpt := range opts {
		if setOpt != nil {
			if err := setOpt(options); err != nil {
				return nil, err
			}
		}
	}

	if err := checkConfig(&config); err != nil {
		return nil, err
	}

	db, err := newDB(&config, options)
	if err != nil {
		return nil, err
	}

	return newDatastore(db, config, c, options), nil
}

func newDatastore(db *sqlx.DB, conf config.MysqlConfig, c clock.Clock, options *dbOptions) *Datastore {
	tables.MigrationClient.Logger = options.logger
	return &Datastore{
		db:               db,
		logger:           options.logger,
		clock:            c,
		config:           conf,
		migrations:       tables.MigrationClient,
		sqlMigrationsDir: options.sqlMigrationsDir,
	}
}

func newDB(conf *config.MysqlConfig, opts *dbOptions) (*sqlx.DB, error) {
	dsn := generateMysqlConnectionString(*conf)
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(conf.MaxIdleConns)
	db.SetMaxOpenConns(conf.MaxOpenConns)
	db.SetConnMaxLifetime(time.Second * time.Duration(conf.ConnMaxLifetime))

	if err := pingWithRetry(db, opts); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

type pinger interface {
	Ping() error
}

func pingWithRetry(db pinger, opts *dbOptions) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = opts.connectTimeout

	retries := opts.maxAttempts - 1
	if retries < 0 {
		retries = 0
	}

	return backoff.RetryNotify(db.Ping, backoff.WithMaxRetries(bo, uint64(retries)),
		func(err error, interval time.Duration) {
			level.Info(opts.logger).Log("mysql", fmt.Sprintf(
				"could not connect to db: %v, sleeping %v", err, interval))
		},
	)
}

func checkConfig(conf *config.MysqlConfig) error {
	if conf.PasswordPath != "" && conf.Password != "" {
		return errors.New("A MySQL password and a MySQL password file were provided - please specify only one")
	}

	// Check to see if the flag is populated
	// Check if file exists on disk
	// If file exists read contents
	if conf.PasswordPath != "" {
		fileContents, err := os.ReadFile(conf.PasswordPath)
		if err != nil {
			return err
		}
		conf.Password = strings.TrimSpace(string(fileContents))
	}

	if conf.TLSCA != "" {
		conf.TLSConfig = "custom"
		err := registerTLS(*conf)
		if err != nil {
			return fmt.Errorf("register TLS config for mysql: %w", err)
		}
	}
	return nil
}

// MigrateTables applies all pending table migrations.
func (d *Datastore) MigrateTables(ctx context.Context) error {
	start := d.clock.Now()
	if err := d.migrations.Up(d.db.DB, d.sqlMigrationsDir); err != nil {
		return ctxerr.Wrap(ctx, err, "migrate tables")
	}
	level.Debug(d.logger).Log("msg", "tables migrated", "took", d.clock.Now().Sub(start))
	return nil
}

// MigrateTablesDown reverts the latest steps applied table migrations.
func (d *Datastore) MigrateTablesDown(ctx context.Context, steps int) error {
	for i := 0; i < steps; i++ {
		current, err := d.migrations.GetDBVersion(d.db.DB)
		if err != nil {
			return ctxerr.Wrap(ctx, err, "get current version")
		}
		if current == 0 {
			return ctxerr.New(ctx, fmt.Sprintf("cannot roll back %d migrations: only %d were applied", steps, i))
		}
		if err := d.migrations.Down(d.db.DB, d.sqlMigrationsDir); err != nil {
			return ctxerr.Wrapf(ctx, err, "roll back migration %d", current)
		}
	}
	return nil
}

// MigrateTablesDownTo reverts table migrations until version is the latest
// applied one. A version of 0 reverts everything.
func (d *Datastore) MigrateTablesDownTo(ctx context.Context, version int64) error {
	if version != 0 && d.sqlMigrationsDir == "" {
		if _, err := d.migrations.Migrations.Current(version); err != nil {
			return ctxerr.Wrapf(ctx, err, "unknown migration %d", version)
		}
	}
	if err := d.migrations.DownTo(d.db.DB, d.sqlMigrationsDir, version); err != nil {
		return ctxerr.Wrapf(ctx, err, "roll back to migration %d", version)
	}
	return nil
}

type ledgerRow struct {
	VersionID int64 `db:"version_id"`
	IsApplied bool  `db:"is_applied"`
}

// loadMigrations manually loads the applied migrations in ascending
// order (goose doesn't provide such functionality). The latest ledger row
// of a version decides whether it is applied, so rolled back migrations are
// not returned.
func (d *Datastore) loadMigrations(ctx context.Context) ([]int64, error) {
	// We need to run the following to trigger the creation of the migration status table.
	if _, err := d.migrations.EnsureDBVersion(d.db.DB); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "ensure migration status table")
	}

	// version_id > 0 to skip the bootstrap migration that creates the migration table.
	stmt, args, err := goqu.Dialect("mysql").
		From(d.migrations.TableName).
		Select("version_id", "is_applied").
		Where(goqu.C("version_id").Gt(0)).
		Order(goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "build migration status query")
	}

	var rows []ledgerRow
	if err := sqlx.SelectContext(ctx, d.db, &rows, stmt, args...); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "select migration status")
	}

	latest := make(map[int64]bool, len(rows))
	for _, row := range rows {
		latest[row.VersionID] = row.IsApplied
	}
	var applied []int64
	for v, isApplied := range latest {
		if isApplied {
			applied = append(applied, v)
		}
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i] < applied[j] })
	return applied, nil
}

// MigrationStatus will return the current status of the migrations
// comparing the known migrations in code and the applied migrations in the database.
//
// It assumes some deployments may perform migrations out of order.
func (d *Datastore) MigrationStatus(ctx context.Context) (*balancer.MigrationStatus, error) {
	if d.migrations.Migrations == nil {
		return nil, errors.New("unexpected nil migrations list")
	}
	applied, err := d.loadMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot load migrations: %w", err)
	}
	if len(applied) == 0 {
		return &balancer.MigrationStatus{
			StatusCode: balancer.NoMigrationsCompleted,
		}, nil
	}

	missing, unknown, equal := compareVersions(
		getVersionsFromMigrations(d.migrations.Migrations),
		applied,
		knownUnknownTableMigrations,
	)

	if equal {
		return &balancer.MigrationStatus{
			StatusCode: balancer.AllMigrationsCompleted,
		}, nil
	}

	if len(unknown) > 0 {
		return &balancer.MigrationStatus{
			StatusCode:   balancer.UnknownMigrations,
			UnknownTable: unknown,
		}, nil
	}

	// len(missing) > 0
	return &balancer.MigrationStatus{
		StatusCode:     balancer.SomeMigrationsCompleted,
		MissingTable:   missing,
		CurrentVersion: applied[len(applied)-1],
	}, nil
}

// MigrationStates lists every known table migration with its ledger state,
// oldest first.
func (d *Datastore) MigrationStates(ctx context.Context) ([]balancer.MigrationState, error) {
	states, err := d.migrations.Status(d.db.DB, d.sqlMigrationsDir)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "load migration states")
	}

	result := make([]balancer.MigrationState, 0, len(states))
	for _, s := range states {
		result = append(result, balancer.MigrationState{
			Version:   s.Version,
			Name:      s.Name,
			Applied:   s.Applied,
			AppliedAt: s.AppliedAt,
		})
	}
	return result, nil
}

// knownUnknownTableMigrations lists versions that may be present in a ledger
// without being known to this binary, e.g. migrations that were renumbered.
var knownUnknownTableMigrations = map[int64]struct{}{}

func unknownUnknowns(in []int64, knownUnknowns map[int64]struct{}) []int64 {
	var result []int64
	for _, t := range in {
		if _, ok := knownUnknowns[t]; !ok {
			result = append(result, t)
		}
	}
	return result
}

// compareVersions returns any missing or extra elements in v2 with respect to v1
// (v1 or v2 need not be ordered).
func compareVersions(v1, v2 []int64, knownUnknowns map[int64]struct{}) (missing []int64, unknown []int64, equal bool) {
	v1s := make(map[int64]struct{})
	for _, m := range v1 {
		v1s[m] = struct{}{}
	}
	v2s := make(map[int64]struct{})
	for _, m := range v2 {
		v2s[m] = struct{}{}
	}
	for _, m := range v1 {
		if _, ok := v2s[m]; !ok {
			missing = append(missing, m)
		}
	}
	for _, m := range v2 {
		if _, ok := v1s[m]; !ok {
			unknown = append(unknown, m)
		}
	}
	unknown = unknownUnknowns(unknown, knownUnknowns)
	if len(missing) == 0 && len(unknown) == 0 {
		return nil, nil, true
	}
	return missing, unknown, false
}

func getVersionsFromMigrations(migrations goose.Migrations) []int64 {
	versions := make([]int64, len(migrations))
	for i := range migrations {
		versions[i] = migrations[i].Version
	}
	return versions
}

// HealthCheck returns an error if the MySQL backend is not healthy.
func (d *Datastore) HealthCheck() error {
	_, err := d.db.ExecContext(context.Background(), "select 1")
	return err
}

// Close frees resources associated with underlying mysql connection
func (d *Datastore) Close() error {
	return d.db.Close()
}

// registerTLS adds client certificate configuration to the mysql connection.
func registerTLS(conf config.MysqlConfig) error {
	tlsCfg := config.TLS{
		TLSCert:       conf.TLSCert,
		TLSKey:        conf.TLSKey,
		TLSCA:         conf.TLSCA,
		TLSServerName: conf.TLSServerName,
	}
	cfg, err := tlsCfg.ToTLSConfig()
	if err != nil {
		return err
	}
	if err := mysql.RegisterTLSConfig(conf.TLSConfig, cfg); err != nil {
		return fmt.Errorf("register mysql tls config: %w", err)
	}
	return nil
}

// generateMysqlConnectionString returns a MySQL connection string using the
// provided configuration.
func generateMysqlConnectionString(conf config.MysqlConfig) string {
	tz := url.QueryEscape("'-00:00'")
	dsn := fmt.Sprintf(
		"%s:%s@%s(%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&time_zone=%s&clientFoundRows=true&allowNativePasswords=true",
		conf.Username,
		conf.Password,
		conf.Protocol,
		conf.Address,
		conf.Database,
		tz,
	)

	if conf.TLSConfig != "" {
		dsn = fmt.Sprintf("%s&tls=%s", dsn, conf.TLSConfig)
	}

	return dsn
}
