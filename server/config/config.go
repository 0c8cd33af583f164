package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix = "MONEY_BALANCER"
)

// MysqlConfig defines configs related to MySQL
type MysqlConfig struct {
	Protocol        string
	Address         string
	Username        string
	Password        string
	PasswordPath    string `yaml:"password_path"`
	Database        string
	TLSCert         string `yaml:"tls_cert"`
	TLSKey          string `yaml:"tls_key"`
	TLSCA           string `yaml:"tls_ca"`
	TLSServerName   string `yaml:"tls_server_name"`
	TLSConfig       string `yaml:"tls_config"` // tls=customValue in DSN
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"`
}

// LoggingConfig defines configs related to logging
type LoggingConfig struct {
	Debug bool
	JSON  bool
}

// MigrationsConfig defines configs related to the migration runner
type MigrationsConfig struct {
	// SQLDir is an optional directory of <timestamp>_<name>.sql migrations run
	// alongside the compiled table migrations.
	SQLDir string `yaml:"sql_dir"`
	// ConnectAttempts bounds the connection attempts made before migrating.
	ConnectAttempts int `yaml:"connect_attempts"`
	// ConnectTimeout bounds the total time spent connecting.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// UpgradesConfig defines configs related to schema upgrades
type UpgradesConfig struct {
	AllowMissingMigrations bool `yaml:"allow_missing_migrations"`
}

// MoneyBalancerConfig stores the application configuration. Each subcategory is
// broken up into it's own struct, defined above. When editing any of these
// structs, Manager.addConfigs and Manager.LoadConfig should be
// updated to set and retrieve the configurations as appropriate.
type MoneyBalancerConfig struct {
	Mysql      MysqlConfig
	Logging    LoggingConfig
	Migrations MigrationsConfig
	Upgrades   UpgradesConfig
}

type TLS struct {
	TLSCert       string
	TLSKey        string
	TLSCA         string
	TLSServerName string
}

func (t *TLS) ToTLSConfig() (*tls.Config, error) {
	var rootCertPool *x509.CertPool
	if t.TLSCA != "" {
		rootCertPool = x509.NewCertPool()
		pem, err := os.ReadFile(t.TLSCA)
		if err != nil {
			return nil, fmt.Errorf("read server-ca pem: %w", err)
		}
		if ok := rootCertPool.AppendCertsFromPEM(pem); !ok {
			return nil, errors.New("failed to append PEM.")
		}
	}

	cfg := &tls.Config{
		RootCAs: rootCertPool,
	}
	if t.TLSCert != "" {
		certs, err := tls.LoadX509KeyPair(t.TLSCert, t.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert and key: %w", err)
		}
		cfg.Certificates = []tls.Certificate{certs}
	}

	if t.TLSServerName != "" {
		cfg.ServerName = t.TLSServerName
	}
	return cfg, nil
}

// addConfigs adds the configuration keys and default values that will be
// filled into the MoneyBalancerConfig struct
func (man Manager) addConfigs() {
	// MySQL
	man.addConfigString("mysql.protocol", "tcp",
		"MySQL server communication protocol (tcp,unix,...)")
	man.addConfigString("mysql.address", "localhost:3306",
		"MySQL server address (host:port)")
	man.addConfigString("mysql.username", "balancer",
		"MySQL server username")
	man.addConfigString("mysql.password", "",
		"MySQL server password (prefer env variable for security)")
	man.addConfigString("mysql.password_path", "",
		"Path to file containg MySQL server password")
	man.addConfigString("mysql.database", "balancer",
		"MySQL database name")
	man.addConfigString("mysql.tls_cert", "",
		"MySQL TLS client certificate path")
	man.addConfigString("mysql.tls_key", "",
		"MySQL TLS client key path")
	man.addConfigString("mysql.tls_ca", "",
		"MySQL TLS server CA")
	man.addConfigString("mysql.tls_server_name", "",
		"MySQL TLS server name")
	man.addConfigString("mysql.tls_config", "",
		"MySQL TLS config value. Use skip-verify, true, false or custom key.")
	man.addConfigInt("mysql.max_open_conns", 50, "MySQL maximum open connection handles")
	man.addConfigInt("mysql.max_idle_conns", 50, "MySQL maximum idle connection handles")
	man.addConfigInt("mysql.conn_max_lifetime", 0, "MySQL maximum amount of time a connection may be reused")

	// Logging
	man.addConfigBool("logging.debug", false,
		"Enable debug logging")
	man.addConfigBool("logging.json", false,
		"Log in JSON format")

	// Migrations
	man.addConfigString("migrations.sql_dir", "",
		"Directory of additional .sql migrations")
	man.addConfigInt("migrations.connect_attempts", 15,
		"Maximum number of attempts to connect to the database")
	man.addConfigDuration("migrations.connect_timeout", 2*time.Minute,
		"Maximum total time spent connecting to the database")

	// Upgrades
	man.addConfigBool("upgrades.allow_missing_migrations", false,
		"Allow commands to run even if migrations are missing.")
}

// LoadConfig will load the config variables into a fully initialized
// MoneyBalancerConfig struct
func (man Manager) LoadConfig() (MoneyBalancerConfig, error) {
	if err := man.loadConfigFile(); err != nil {
		return MoneyBalancerConfig{}, err
	}

	return MoneyBalancerConfig{
		Mysql: MysqlConfig{
			Protocol:        man.getConfigString("mysql.protocol"),
			Address:         man.getConfigString("mysql.address"),
			Username:        man.getConfigString("mysql.username"),
			Password:        man.getConfigString("mysql.password"),
			PasswordPath:    man.getConfigString("mysql.password_path"),
			Database:        man.getConfigString("mysql.database"),
			TLSCert:         man.getConfigString("mysql.tls_cert"),
			TLSKey:          man.getConfigString("mysql.tls_key"),
			TLSCA:           man.getConfigString("mysql.tls_ca"),
			TLSServerName:   man.getConfigString("mysql.tls_server_name"),
			TLSConfig:       man.getConfigString("mysql.tls_config"),
			MaxOpenConns:    man.getConfigInt("mysql.max_open_conns"),
			MaxIdleConns:    man.getConfigInt("mysql.max_idle_conns"),
			ConnMaxLifetime: man.getConfigInt("mysql.conn_max_lifetime"),
		},
		Logging: LoggingConfig{
			Debug: man.getConfigBool("logging.debug"),
			JSON:  man.getConfigBool("logging.json"),
		},
		Migrations: MigrationsConfig{
			SQLDir:          man.getConfigString("migrations.sql_dir"),
			ConnectAttempts: man.getConfigInt("migrations.connect_attempts"),
			ConnectTimeout:  man.getConfigDuration("migrations.connect_timeout"),
		},
		Upgrades: UpgradesConfig{
			AllowMissingMigrations: man.getConfigBool("upgrades.allow_missing_migrations"),
		},
	}, nil
}

// IsSet determines whether a given config key has been explicitly set by any
// of the configuration sources. If false, the default value is being used.
func (man Manager) IsSet(key string) bool {
	return man.viper.IsSet(key)
}

// envNameFromConfigKey converts a config key into the corresponding
// environment variable name
func envNameFromConfigKey(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// flagNameFromConfigKey converts a config key into the corresponding flag name
func flagNameFromConfigKey(key string) string {
	return strings.ReplaceAll(key, ".", "_")
}

// Manager manages the addition and retrieval of config values. It's only
// public API method is LoadConfig, which will return the populated
// MoneyBalancerConfig struct.
type Manager struct {
	viper    *viper.Viper
	command  *cobra.Command
	defaults map[string]interface{}
}

// NewManager initializes a Manager wrapping the provided cobra
// command. All config flags will be attached to that command (and inherited by
// the subcommands). Typically this should be called just once, with the root
// command.
func NewManager(command *cobra.Command) Manager {
	man := Manager{
		viper:    viper.New(),
		command:  command,
		defaults: map[string]interface{}{},
	}
	man.addConfigs()
	return man
}

// addDefault will check for duplication, then add a default value to the
// defaults map
func (man Manager) addDefault(key string, defVal interface{}) {
	if _, exists := man.defaults[key]; exists {
		panic("Trying to add duplicate config for key " + key)
	}

	man.defaults[key] = defVal
}

func getFlagUsage(key string, usage string) string {
	return fmt.Sprintf("Env: %s\n\t\t%s", envNameFromConfigKey(key), usage)
}

// getInterfaceVal is a helper function used by the getConfig* functions to
// retrieve the config value as interface{}, which will then be cast to the
// appropriate type by the getConfig* function.
func (man Manager) getInterfaceVal(key string) interface{} {
	interfaceVal := man.viper.Get(key)
	if interfaceVal == nil {
		var ok bool
		interfaceVal, ok = man.defaults[key]
		if !ok {
			panic("Tried to look up default value for nonexistent config option: " + key)
		}
	}
	return interfaceVal
}

func (man Manager) bindFlagAndEnv(key string) {
	_ = man.viper.BindPFlag(key, man.command.PersistentFlags().Lookup(flagNameFromConfigKey(key)))
	_ = man.viper.BindEnv(key, envNameFromConfigKey(key))
}

// addConfigString adds a string config to the config options
func (man Manager) addConfigString(key, defVal, usage string) {
	man.command.PersistentFlags().String(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bindFlagAndEnv(key)
	man.addDefault(key, defVal)
}

// getConfigString retrieves a string from the loaded config
func (man Manager) getConfigString(key string) string {
	stringVal, err := cast.ToStringE(man.getInterfaceVal(key))
	if err != nil {
		panic("Unable to cast to string for key " + key + ": " + err.Error())
	}
	return stringVal
}

// addConfigInt adds a int config to the config options
func (man Manager) addConfigInt(key string, defVal int, usage string) {
	man.command.PersistentFlags().Int(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bindFlagAndEnv(key)
	man.addDefault(key, defVal)
}

// getConfigInt retrieves a int from the loaded config
func (man Manager) getConfigInt(key string) int {
	intVal, err := cast.ToIntE(man.getInterfaceVal(key))
	if err != nil {
		panic("Unable to cast to int for key " + key + ": " + err.Error())
	}
	return intVal
}

// addConfigBool adds a bool config to the config options
func (man Manager) addConfigBool(key string, defVal bool, usage string) {
	man.command.PersistentFlags().Bool(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bindFlagAndEnv(key)
	man.addDefault(key, defVal)
}

// getConfigBool retrieves a bool from the loaded config
func (man Manager) getConfigBool(key string) bool {
	boolVal, err := cast.ToBoolE(man.getInterfaceVal(key))
	if err != nil {
		panic("Unable to cast to bool for key " + key + ": " + err.Error())
	}
	return boolVal
}

// addConfigDuration adds a duration config to the config options
func (man Manager) addConfigDuration(key string, defVal time.Duration, usage string) {
	man.command.PersistentFlags().Duration(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bindFlagAndEnv(key)
	man.addDefault(key, defVal)
}

// getConfigDuration retrieves a duration from the loaded config
func (man Manager) getConfigDuration(key string) time.Duration {
	durationVal, err := cast.ToDurationE(man.getInterfaceVal(key))
	if err != nil {
		panic("Unable to cast to duration for key " + key + ": " + err.Error())
	}
	return durationVal
}

// loadConfigFile handles the loading of the config file.
func (man Manager) loadConfigFile() error {
	man.viper.SetConfigType("yaml")

	flag := man.command.PersistentFlags().Lookup("config")
	if flag == nil || flag.Value.String() == "" {
		// No config file set, only use configs from env
		// vars/flags/defaults
		return nil
	}

	man.viper.SetConfigFile(flag.Value.String())
	if err := man.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}
	return nil
}

// TestConfig returns a barebones configuration suitable for use in tests.
// Individual tests may want to override some of the values provided.
func TestConfig() MoneyBalancerConfig {
	return MoneyBalancerConfig{
		Mysql: MysqlConfig{
			Protocol: "tcp",
			Address:  "localhost:3307",
			Username: "balancer",
			Password: "insecure",
			Database: "balancer_test",
		},
		Logging: LoggingConfig{
			Debug: true,
		},
		Migrations: MigrationsConfig{
			ConnectAttempts: 1,
			ConnectTimeout:  time.Second,
		},
	}
}
