package main

import (
	"fmt"

	"github.com/joaoariedi/money-balancer/server/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

func createConfigDumpCmd(configManager config.Manager) *cobra.Command {
	var configDumpCmd = &cobra.Command{
		Use:   "config_dump",
		Short: "Dump the parsed configuration in yaml format",
		Long: `
Dump the parsed configuration in yaml format.

The configuration is read from many locations, and it can be useful to see
the result of merging those configs.

The following precedence is used when reading configs:
1. CLI flags
2. Environment Variables
3. Config File
4. Default Values
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := configManager.LoadConfig()
			if err != nil {
				return err
			}
			buf, err := yaml.Marshal(conf)
			if err != nil {
				return fmt.Errorf("marshalling config to yaml: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(buf))
			return nil
		}}

	return configDumpCmd
}
