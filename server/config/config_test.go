package config

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v2"
)

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{}
	// Leaving this flag unset means that no attempt will be made to load
	// the config file
	cmd.PersistentFlags().StringP("config", "c", "", "Path to a configuration file")
	return cmd
}

func TestConfigRoundtrip(t *testing.T) {
	// This test verifies that a config can be roundtripped through yaml.
	// Doing so ensures that config_dump will provide the correct config.
	// Newly added config values will automatically be tested in this
	// function because of the reflection on the config struct.

	man := NewManager(newTestCommand())

	// Use reflection magic to walk the config struct, setting unique
	// values to be verified on the roundtrip. Note that bools are always
	// set to true, which could false positive if the default value is
	// true.
	original := &MoneyBalancerConfig{}
	v := reflect.ValueOf(original)
	for confIndex := 0; confIndex < v.Elem().NumField(); confIndex++ {
		confV := v.Elem().Field(confIndex)
		for keyIndex := 0; keyIndex < confV.NumField(); keyIndex++ {
			keyV := confV.Field(keyIndex)
			switch keyV.Interface().(type) {
			case string:
				keyV.SetString(v.Elem().Type().Field(confIndex).Name + "_" + confV.Type().Field(keyIndex).Name)
			case int:
				keyV.SetInt(int64(confIndex*100 + keyIndex))
			case bool:
				keyV.SetBool(true)
			case time.Duration:
				d := time.Duration(confIndex*100 + keyIndex)
				keyV.Set(reflect.ValueOf(d))
			}
		}
	}

	// Marshal the generated config
	buf, err := yaml.Marshal(original)
	require.NoError(t, err)

	// Manually load the serialized config
	man.viper.SetConfigType("yaml")
	err = man.viper.ReadConfig(bytes.NewReader(buf))
	require.NoError(t, err)

	// Ensure the read config is the same as the original
	loaded, err := man.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, *original, loaded)
}

func TestConfigDefaults(t *testing.T) {
	man := NewManager(newTestCommand())

	conf, err := man.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "tcp", conf.Mysql.Protocol)
	assert.Equal(t, "localhost:3306", conf.Mysql.Address)
	assert.Equal(t, 50, conf.Mysql.MaxOpenConns)
	assert.Equal(t, 15, conf.Migrations.ConnectAttempts)
	assert.Equal(t, 2*time.Minute, conf.Migrations.ConnectTimeout)
	assert.False(t, conf.Upgrades.AllowMissingMigrations)
	assert.False(t, man.IsSet("mysql.address"))
}

func TestConfigFromEnvAndFile(t *testing.T) {

	path := filepath.Join(t.TempDir(), "balancer.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
mysql:
  address: db.internal:3306
  database: ledger
logging:
  json: true
`), 0o600))
	SetTestEnv(t, map[string]string{
		"mysql.database":                   "from_env",
		"upgrades.allow_missing_migrations": "true",
	})
	assert.Equal(t, "from_env", os.Getenv("MONEY_BALANCER_MYSQL_DATABASE"))

	cmd := newTestCommand()
	man := NewManager(cmd)
	require.NoError(t, cmd.PersistentFlags().Set("config", path))
	require.NoError(t, cmd.PersistentFlags().Set("mysql_max_open_conns", "7"))

	conf, err := man.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "db.internal:3306", conf.Mysql.Address)
	// env vars take precedence over the config file
	assert.Equal(t, "from_env", conf.Mysql.Database)
	assert.Equal(t, 7, conf.Mysql.MaxOpenConns)
	assert.True(t, conf.Logging.JSON)
	assert.True(t, conf.Upgrades.AllowMissingMigrations)
}

func TestSetTestEnvRestores(t *testing.T) {
	const name = "MONEY_BALANCER_LOGGING_DEBUG"
	prev, had := os.LookupEnv(name)

	t.Run("set", func(t *testing.T) {
		SetTestEnv(t, map[string]string{"logging.debug": "true"})
		assert.Equal(t, "true", os.Getenv(name))
	})

	now, has := os.LookupEnv(name)
	assert.Equal(t, had, has)
	assert.Equal(t, prev, now)
}

func TestConfigMissingFile(t *testing.T) {
	cmd := newTestCommand()
	man := NewManager(cmd)
	require.NoError(t, cmd.PersistentFlags().Set("config", filepath.Join(t.TempDir(), "nope.yml")))

	_, err := man.LoadConfig()
	require.Error(t, err)
}

func TestEnvNameFromConfigKey(t *testing.T) {
	assert.Equal(t, "MONEY_BALANCER_MYSQL_PASSWORD_PATH", envNameFromConfigKey("mysql.password_path"))
	assert.Equal(t, "mysql_password_path", flagNameFromConfigKey("mysql.password_path"))
}

func TestAddDuplicateConfigPanics(t *testing.T) {
	man := NewManager(newTestCommand())
	require.Panics(t, func() { man.addDefault("mysql.address", "other") })
}
