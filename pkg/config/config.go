package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X github.com/edgeflare/pgrest/pkg/config.Version=..."
var Version = "dev"

// EnvPrefix prefixes environment overrides, e.g. PGREST_CLIENT_URL.
const EnvPrefix = "PGREST"

// Config holds application-wide configuration
type Config struct {
	Client  ClientConfig  `mapstructure:"client"`
	Mock    MockConfig    `mapstructure:"mock"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ClientConfig configures the PostgREST client used by the query command.
type ClientConfig struct {
	URL     string            `mapstructure:"url"`
	Schema  string            `mapstructure:"schema"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
	Retry   RetryConfig       `mapstructure:"retry"`
}

type RetryConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MaxRetries int  `mapstructure:"maxRetries"`
}

// MockConfig configures the in-memory backend served by the mock command.
type MockConfig struct {
	ListenAddr string   `mapstructure:"listenAddr"`
	Fixture    string   `mapstructure:"fixture"`
	PG         PGConfig `mapstructure:"pg"`
	CORS       bool     `mapstructure:"cors"`
}

// PGConfig seeds the mock from a live database instead of a fixture.
type PGConfig struct {
	ConnString string   `mapstructure:"connString"`
	Schemas    []string `mapstructure:"schemas"`
	RowLimit   int      `mapstructure:"rowLimit"`
	// Watch reloads the tables on NOTIFY pgrst, 'reload schema'.
	Watch bool `mapstructure:"watch"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Default returns the configuration used when no file or environment sets a
// value.
func Default() Config {
	return Config{
		Client: ClientConfig{
			URL:     "http://localhost:3000",
			Timeout: 10 * time.Second,
			Retry:   RetryConfig{MaxRetries: 3},
		},
		Mock: MockConfig{
			ListenAddr: ":3000",
			PG:         PGConfig{Schemas: []string{"public"}, RowLimit: 1000},
			CORS:       true,
		},
		Metrics: MetricsConfig{Addr: ":9100"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("client.url", d.Client.URL)
	v.SetDefault("client.schema", d.Client.Schema)
	v.SetDefault("client.timeout", d.Client.Timeout)
	v.SetDefault("client.retry.enabled", d.Client.Retry.Enabled)
	v.SetDefault("client.retry.maxRetries", d.Client.Retry.MaxRetries)
	v.SetDefault("mock.listenAddr", d.Mock.ListenAddr)
	v.SetDefault("mock.fixture", d.Mock.Fixture)
	v.SetDefault("mock.cors", d.Mock.CORS)
	v.SetDefault("mock.pg.connString", d.Mock.PG.ConnString)
	v.SetDefault("mock.pg.schemas", d.Mock.PG.Schemas)
	v.SetDefault("mock.pg.rowLimit", d.Mock.PG.RowLimit)
	v.SetDefault("mock.pg.watch", d.Mock.PG.Watch)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Load reads config from file or environment. With an empty cfgFile it looks
// for pgrest.yaml in $HOME/.config and the working directory; a missing file
// is not an error. Environment variables override the file, with dots in
// keys replaced by underscores: PGREST_MOCK_PG_CONNSTRING.
func Load(cfgFile string) (*Config, error) {
	return LoadWith(viper.New(), cfgFile)
}

// LoadWith is Load on a caller provided viper instance, so that command line
// flags bound to v take precedence.
func LoadWith(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pgrest")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}
