package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`
	LogLevel      string `mapstructure:"log_level"`

	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`

	Kafka struct {
		Enable      bool     `mapstructure:"enable"`
		Brokers     []string `mapstructure:"brokers"`
		GroupID     string   `mapstructure:"group_id"`
		TopicPrefix string   `mapstructure:"topic_prefix"`
	} `mapstructure:"kafka"`

	Engine struct {
		MaxConcurrentRuns int64 `mapstructure:"max_concurrent_runs"`
		DefaultDelayMs    int   `mapstructure:"default_delay_ms"`
	} `mapstructure:"engine"`

	Auth struct {
		OktaDomain   string `mapstructure:"okta_domain"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		RedirectURL  string `mapstructure:"redirect_url"`
	} `mapstructure:"auth"`

	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("kafka.group_id", "flowhook")
	viper.SetDefault("kafka.topic_prefix", "cdc")
	viper.SetDefault("engine.max_concurrent_runs", 16)
	viper.SetDefault("engine.default_delay_ms", 1000)

	if err := viper.ReadInConfig(); err != nil {
		// a missing file is fine, the environment can carry everything
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// normalize OIDC issuer url (strip trailing slash if any)
	config.Auth.OktaDomain = normalizeIssuer(config.Auth.OktaDomain)

	return &config, nil
}

// normalizeIssuer ensures the provided OIDC issuer string is in a predictable
// form. It removes any trailing slash and leaves the scheme and path intact,
// so the full URL from the provider's admin console can be pasted as-is.
func normalizeIssuer(input string) string {
	iss := strings.TrimSpace(input)
	if strings.HasSuffix(iss, "/") {
		iss = strings.TrimRight(iss, "/")
	}
	return iss
}
