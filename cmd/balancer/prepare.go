package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/WatchBeam/clock"
	"github.com/fatih/color"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/joaoariedi/money-balancer/server/balancer"
	"github.com/joaoariedi/money-balancer/server/config"
	"github.com/joaoariedi/money-balancer/server/contexts/ctxerr"
	"github.com/joaoariedi/money-balancer/server/datastore/mysql"
	"github.com/joaoariedi/money-balancer/server/goose"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const defaultMigrationsDir = "server/datastore/mysql/migrations/tables"

// errUnknownMigrations is returned in dev mode when the database holds
// migrations this binary does not know about.
var errUnknownMigrations = errors.New("database has unknown migrations")

// errOutOfOrderMigrations is returned when missing migrations are older than
// the newest applied one and upgrades.allow_missing_migrations is not set.
var errOutOfOrderMigrations = errors.New("database is missing migrations older than its current version")

// storeOpener opens the migration store described by the configuration.
type storeOpener func(conf config.MoneyBalancerConfig, logger kitlog.Logger) (balancer.MigrationStore, error)

func openMysqlStore(conf config.MoneyBalancerConfig, logger kitlog.Logger) (balancer.MigrationStore, error) {
	ds, err := mysql.New(conf.Mysql, clock.C,
		mysql.Logger(logger),
		mysql.LimitAttempts(conf.Migrations.ConnectAttempts),
		mysql.ConnectTimeout(conf.Migrations.ConnectTimeout),
		mysql.SQLMigrationsDir(conf.Migrations.SQLDir),
	)
	if err != nil {
		return nil, err
	}

	if dialect, version, err := ds.DetectDialect(context.Background()); err != nil {
		level.Info(logger).Log("msg", "could not detect database dialect", "err", err)
	} else {
		level.Debug(logger).Log("msg", "connected to database", "dialect", dialect, "version", version)
	}
	return ds, nil
}

func createPrepareCmd(configManager config.Manager, open storeOpener) *cobra.Command {
	prepareCmd := &cobra.Command{
		Use:   "prepare",
		Short: "Subcommands for initializing the money-balancer database",
		Long: `
Subcommands for initializing the money-balancer database

To setup the database, use one of the available commands.
`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help() //nolint:errcheck
		},
	}

	// Whether to enable developer options
	dev := false

	// loadStore loads the config and opens the store used by a subcommand.
	loadStore := func() (config.MoneyBalancerConfig, kitlog.Logger, balancer.MigrationStore, error) {
		conf, err := configManager.LoadConfig()
		if err != nil {
			return conf, nil, nil, err
		}
		if dev {
			applyDevFlags(&conf)
		}
		logger := newLogger(conf.Logging)
		store, err := open(conf, logger)
		if err != nil {
			return conf, nil, nil, fmt.Errorf("creating db connection: %w", err)
		}
		return conf, logger, store, nil
	}

	noPrompt := false
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Given correct database configurations, prepare the databases for use",
		Long:  ``,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, logger, store, err := loadStore()
			if err != nil {
				return err
			}
			defer store.Close()

			status, err := store.MigrationStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("retrieving migration status: %w", err)
			}

			proceed, err := prepareMigrationStatusCheck(cmd.OutOrStdout(), cmd.InOrStdin(), status, noPrompt || dev, dev, conf.Upgrades.AllowMissingMigrations, conf.Mysql.Database)
			if err != nil || !proceed {
				return err
			}

			if err := store.MigrateTables(cmd.Context()); err != nil {
				level.Debug(logger).Log("msg", "migration failed", "stack", strings.Join(ctxerr.StackTrace(err), ","))
				return fmt.Errorf("migrating db schema: %w", err)
			}

			if skipped := status.OutOfOrder(); len(skipped) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Migrations completed. Not applied: %v.\n", skipped)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations completed.")
			return nil
		},
	}
	dbCmd.PersistentFlags().BoolVar(&noPrompt, "no-prompt", false, "disable prompting before migrations (for use in scripts)")

	var (
		steps int
		to    int64
	)
	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Revert applied table migrations, newest first",
		Long: `
Revert applied table migrations, newest first.

By default only the latest applied migration is reverted. Use --steps to
revert more, or --to to revert every migration newer than the given version
(--to 0 reverts all of them).
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("steps") && cmd.Flags().Changed("to") {
				return errors.New("--steps and --to are mutually exclusive")
			}
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1, got %d", steps)
			}

			_, logger, store, err := loadStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if cmd.Flags().Changed("to") {
				if err := store.MigrateTablesDownTo(cmd.Context(), to); err != nil {
					return fmt.Errorf("rolling back db schema: %w", err)
				}
				level.Info(logger).Log("msg", "rolled back migrations", "to", to)
			} else {
				if err := store.MigrateTablesDown(cmd.Context(), steps); err != nil {
					return fmt.Errorf("rolling back db schema: %w", err)
				}
				level.Info(logger).Log("msg", "rolled back migrations", "steps", steps)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Rollback completed.")
			return nil
		},
	}
	rollbackCmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")
	rollbackCmd.Flags().Int64Var(&to, "to", 0, "revert migrations newer than this version")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "List the table migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, store, err := loadStore()
			if err != nil {
				return err
			}
			defer store.Close()

			states, err := store.MigrationStates(cmd.Context())
			if err != nil {
				return fmt.Errorf("retrieving migration states: %w", err)
			}
			printMigrationStates(cmd.OutOrStdout(), states)
			return nil
		},
	}

	var (
		migrationType string
		migrationDir  string
	)
	newMigrationCmd := &cobra.Command{
		Use:   "new-migration NAME",
		Short: "Create a new migration from a template",
		Long: `
Create a new migration from a template. The migration version is the current
UTC time. Go migrations also get a test file.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := goose.CreateMigration(args[0], migrationType, migrationDir, clock.C.Now().UTC())
			if err != nil {
				return fmt.Errorf("creating migration: %w", err)
			}
			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", p)
			}
			return nil
		},
	}
	newMigrationCmd.Flags().StringVar(&migrationType, "type", "go", "migration type (go or sql)")
	newMigrationCmd.Flags().StringVar(&migrationDir, "dir", defaultMigrationsDir, "directory to create the migration in")

	prepareCmd.PersistentFlags().BoolVar(&dev, "dev", false, "Enable developer options")
	prepareCmd.AddCommand(dbCmd, rollbackCmd, statusCmd, newMigrationCmd)

	return prepareCmd
}

// applyDevFlags points the configuration at the local development database.
func applyDevFlags(conf *config.MoneyBalancerConfig) {
	conf.Mysql.Protocol = "tcp"
	conf.Mysql.Address = "localhost:3306"
	conf.Mysql.Username = "balancer"
	conf.Mysql.Password = "insecure"
	conf.Mysql.PasswordPath = ""
	conf.Mysql.Database = "balancer"
	conf.Logging.Debug = true
}

// prepareMigrationStatusCheck reports the migration status and, unless
// noPrompt is set, waits for confirmation before pending migrations are
// applied. It returns false when there is nothing to migrate.
//
// Missing migrations older than the current version are never applied, so
// they are an error unless allowMissing is set.
func prepareMigrationStatusCheck(w io.Writer, r io.Reader, status *balancer.MigrationStatus, noPrompt, dev, allowMissing bool, dbName string) (bool, error) {
	switch status.StatusCode {
	case balancer.NoMigrationsCompleted:
		// OK
	case balancer.AllMigrationsCompleted:
		fmt.Fprintf(w, "Migrations already completed for %q. Nothing to do.\n", dbName)
		return false, nil
	case balancer.SomeMigrationsCompleted:
		if outOfOrder := status.OutOfOrder(); len(outOfOrder) > 0 {
			color.New(color.FgRed).Fprintf(w, "################################################################################\n"+
				"# WARNING:\n"+
				"#   Your %q database is missing migrations older than its current version\n"+
				"#   %d. They will not be applied.\n"+
				"#\n"+
				"#   Out of order migrations: %v.\n"+
				"#\n"+
				"#   To migrate anyway:\n"+
				"#     - Set environment variable MONEY_BALANCER_UPGRADES_ALLOW_MISSING_MIGRATIONS=1, or,\n"+
				"#     - Set config upgrades.allow_missing_migrations to true, or,\n"+
				"#     - Use command line argument --upgrades_allow_missing_migrations=true\n"+
				"################################################################################\n",
				dbName, status.CurrentVersion, outOfOrder)
			if !allowMissing {
				return false, fmt.Errorf("%w: %v", errOutOfOrderMigrations, outOfOrder)
			}
		}
		if !noPrompt {
			color.New(color.FgYellow).Fprintf(w, "################################################################################\n"+
				"# WARNING:\n"+
				"#   This will perform %q database migrations. Please back up your data before\n"+
				"#   continuing.\n"+
				"#\n"+
				"#   Missing migrations: %v.\n"+
				"#\n"+
				"#   Press Enter to continue, or Control-c to exit.\n"+
				"################################################################################\n",
				dbName, status.MissingTable)
			bufio.NewScanner(r).Scan()
		}
	case balancer.UnknownMigrations:
		color.New(color.FgRed).Fprintf(w, "################################################################################\n"+
			"# WARNING:\n"+
			"#   Your %q database has unrecognized migrations. This could happen when\n"+
			"#   running an older version of money-balancer on a newer migrated database.\n"+
			"#\n"+
			"#   Unknown migrations: %v.\n"+
			"################################################################################\n",
			dbName, status.UnknownTable)
		if dev {
			return false, errUnknownMigrations
		}
	}
	return true, nil
}

func defaultTable(writer io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(writer)
	table.SetRowLine(true)
	return table
}

func printMigrationStates(w io.Writer, states []balancer.MigrationState) {
	table := defaultTable(w)
	table.SetHeader([]string{"version", "name", "applied", "applied at"})
	table.SetAutoWrapText(false)
	for _, s := range states {
		appliedAt := ""
		if s.Applied {
			appliedAt = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		table.Append([]string{strconv.FormatInt(s.Version, 10), s.Name, strconv.FormatBool(s.Applied), appliedAt})
	}
	table.Render()
}
