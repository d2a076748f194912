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

// EnvPrefix prefixes environment overrides, e.g. PGRST_PROVIDER_APIURL.
const EnvPrefix = "PGRST"

// Config holds application-wide configuration
type Config struct {
	Provider  ProviderConfig  `mapstructure:"provider"`
	Transport TransportConfig `mapstructure:"transport"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ProviderConfig struct {
	PrimaryKeys   map[string][]string `mapstructure:"primaryKeys"`
	APIURL        string              `mapstructure:"apiURL"`
	DefaultListOp string              `mapstructure:"defaultListOp"`
	Schema        string              `mapstructure:"schema"`
	NullsOrder    string              `mapstructure:"nullsOrder"`
}

type TransportConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"maxRetries"`
	RateLimit  float64       `mapstructure:"rateLimit"`
	Retry      bool          `mapstructure:"retry"`
}

type AuthConfig struct {
	LoginPath    string `mapstructure:"loginPath"`
	LogoutPath   string `mapstructure:"logoutPath"`
	RoleClaimKey string `mapstructure:"roleClaimKey"`
}

type ServerConfig struct {
	BasicAuth   map[string]string `mapstructure:"basicAuth"`
	ListenAddr  string            `mapstructure:"listenAddr"`
	PathPrefix  string            `mapstructure:"pathPrefix"`
	TLSCertFile string            `mapstructure:"tlsCertFile"`
	TLSKeyFile  string            `mapstructure:"tlsKeyFile"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns the configuration used when no file or override sets a value.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			APIURL:        "http://localhost:3000",
			DefaultListOp: "eq",
		},
		Transport: TransportConfig{
			Timeout:    5 * time.Second,
			MaxRetries: 3,
		},
		Auth: AuthConfig{
			LoginPath:    "rpc/login",
			LogoutPath:   "rpc/logout",
			RoleClaimKey: ".role",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// Validate reports configuration values the provider cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Provider.APIURL == "" {
		errs = append(errs, errors.New("provider.apiURL is required"))
	}
	switch c.Provider.NullsOrder {
	case "", "nullsfirst", "nullslast":
	default:
		errs = append(errs, fmt.Errorf("provider.nullsOrder must be nullsfirst or nullslast, got %q", c.Provider.NullsOrder))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.tlsCertFile and server.tlsKeyFile must be set together"))
	}
	for resource, key := range c.Provider.PrimaryKeys {
		if len(key) == 0 {
			errs = append(errs, fmt.Errorf("provider.primaryKeys.%s must list at least one column", resource))
		}
	}
	return errors.Join(errs...)
}

// New returns a viper instance seeded with defaults and environment overrides.
// Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("provider.apiURL", d.Provider.APIURL)
	v.SetDefault("provider.defaultListOp", d.Provider.DefaultListOp)
	v.SetDefault("provider.schema", d.Provider.Schema)
	v.SetDefault("provider.nullsOrder", d.Provider.NullsOrder)
	v.SetDefault("transport.timeout", d.Transport.Timeout)
	v.SetDefault("transport.retry", d.Transport.Retry)
	v.SetDefault("transport.maxRetries", d.Transport.MaxRetries)
	v.SetDefault("transport.rateLimit", d.Transport.RateLimit)
	v.SetDefault("auth.loginPath", d.Auth.LoginPath)
	v.SetDefault("auth.logoutPath", d.Auth.LogoutPath)
	v.SetDefault("auth.roleClaimKey", d.Auth.RoleClaimKey)
	v.SetDefault("server.listenAddr", d.Server.ListenAddr)
	v.SetDefault("server.pathPrefix", d.Server.PathPrefix)
	v.SetDefault("server.tlsCertFile", d.Server.TLSCertFile)
	v.SetDefault("server.tlsKeyFile", d.Server.TLSKeyFile)
	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads config from cfgFile, or pgrst.yaml in ~/.config or the working directory,
// on top of v's defaults and overrides. A missing default config file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if v == nil {
		v = New()
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pgrst")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

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
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
