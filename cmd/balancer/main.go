package main

import (
	"fmt"
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/joaoariedi/money-balancer/server/config"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := createRootCmd()

	configManager := config.NewManager(rootCmd)
	rootCmd.AddCommand(createPrepareCmd(configManager, openMysqlStore))
	rootCmd.AddCommand(createConfigDumpCmd(configManager))
	rootCmd.AddCommand(createVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		initFatal(err, "running command")
	}
}

func createRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "balancer",
		Short: "money-balancer database tooling",
		Long: `
Manage the money-balancer database schema.

Configurable Options:

Options may be supplied in a yaml configuration file or via environment
variables. You may also specify configuration options on the command line.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a configuration file")

	return rootCmd
}

// newLogger builds the logger used by the commands, logfmt unless the JSON
// format is configured.
func newLogger(conf config.LoggingConfig) kitlog.Logger {
	var logger kitlog.Logger
	if conf.JSON {
		logger = kitlog.NewJSONLogger(kitlog.NewSyncWriter(os.Stderr))
	} else {
		logger = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	}
	lvl := level.AllowInfo()
	if conf.Debug {
		lvl = level.AllowDebug()
	}
	logger = level.NewFilter(logger, lvl)
	return kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)
}

func initFatal(err error, message string) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", message, err)
	os.Exit(1)
}
