package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is built once at process start and passed to constructors. Nothing
// mutates it afterwards.
type Config struct {
	Env      string         `mapstructure:"env"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Signals  SignalsConfig  `mapstructure:"signals"`
	Workers  WorkersConfig  `mapstructure:"workers"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver     string `mapstructure:"driver"`
	URL        string `mapstructure:"url"`
	MaxConns   int32  `mapstructure:"max_conns"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// RedisConfig enables the external-signal cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ScanConfig struct {
	// Deadline bounds a whole scan; probes still running when it expires
	// are recorded as their fallback outcome.
	Deadline        time.Duration `mapstructure:"deadline"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	SSLPollInterval time.Duration `mapstructure:"ssl_poll_interval"`
	SSLMaxAttempts  int           `mapstructure:"ssl_max_attempts"`
	DNSResolver     string        `mapstructure:"dns_resolver"`
	DNSTimeout      time.Duration `mapstructure:"dns_timeout"`
	BlacklistZones  []string      `mapstructure:"blacklist_zones"`
	UpdateFeedPath  string        `mapstructure:"update_feed_path"`
}

type SignalsConfig struct {
	WPScanToken       string  `mapstructure:"wpscan_token"`
	WPScanBaseURL     string  `mapstructure:"wpscan_base_url"`
	WPScanRPS         float64 `mapstructure:"wpscan_rps"`
	VirusTotalKey     string  `mapstructure:"virustotal_key"`
	VirusTotalBaseURL string  `mapstructure:"virustotal_base_url"`
	VirusTotalRPS     float64 `mapstructure:"virustotal_rps"`
	SSLLabsBaseURL    string  `mapstructure:"ssllabs_base_url"`
	SSLLabsRPS        float64 `mapstructure:"ssllabs_rps"`
	// SSLLabsDisabled skips the grading service and goes straight to the
	// HTTPS reachability check.
	SSLLabsDisabled bool `mapstructure:"ssllabs_disabled"`
}

type WorkersConfig struct {
	Count        int           `mapstructure:"count"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// SetDefaults registers every key so env overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.sqlite_path", "sitewarden.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", "6h")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("scan.deadline", "3m")
	v.SetDefault("scan.probe_timeout", "30s")
	v.SetDefault("scan.request_timeout", "10s")
	v.SetDefault("scan.user_agent", "sitewarden-scanner/1.0")
	v.SetDefault("scan.max_body_bytes", 2<<20)
	v.SetDefault("scan.ssl_poll_interval", "10s")
	v.SetDefault("scan.ssl_max_attempts", 6)
	v.SetDefault("scan.dns_resolver", "1.1.1.1:53")
	v.SetDefault("scan.dns_timeout", "3s")
	v.SetDefault("scan.blacklist_zones", []string{"dbl.spamhaus.org", "multi.surbl.org", "multi.uribl.com"})
	v.SetDefault("scan.update_feed_path", "/wp-json/sitewarden/v1/updates")
	v.SetDefault("signals.wpscan_token", "")
	v.SetDefault("signals.wpscan_base_url", "https://wpscan.com/api/v3")
	v.SetDefault("signals.wpscan_rps", 1.0)
	v.SetDefault("signals.virustotal_key", "")
	v.SetDefault("signals.virustotal_base_url", "https://www.virustotal.com/api/v3")
	v.SetDefault("signals.virustotal_rps", 0.066)
	v.SetDefault("signals.ssllabs_base_url", "https://api.ssllabs.com/api/v3")
	v.SetDefault("signals.ssllabs_rps", 1.0)
	v.SetDefault("signals.ssllabs_disabled", false)
	v.SetDefault("workers.count", 2)
	v.SetDefault("workers.poll_interval", "500ms")
}

// BindEnv wires SITEWARDEN_* variables plus the conventional names used for
// credentials and connection strings.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("SITEWARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", "SITEWARDEN_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "SITEWARDEN_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("signals.wpscan_token", "SITEWARDEN_SIGNALS_WPSCAN_TOKEN", "WPSCAN_API_TOKEN")
	_ = v.BindEnv("signals.virustotal_key", "SITEWARDEN_SIGNALS_VIRUSTOTAL_KEY", "VIRUSTOTAL_API_KEY")
	_ = v.BindEnv("server.listen_addr", "SITEWARDEN_SERVER_LISTEN_ADDR", "LISTEN_ADDR")
	_ = v.BindEnv("workers.count", "SITEWARDEN_WORKERS_COUNT", "SCAN_WORKERS")
}

// Load reads defaults, the optional config file already set on v, and the
// environment. A nil v uses a fresh instance.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	BindEnv(v)

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url (DATABASE_URL) is required for the postgres driver"))
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("database.sqlite_path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Scan.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("scan.probe_timeout must be positive"))
	}
	if c.Scan.SSLMaxAttempts < 1 {
		errs = append(errs, errors.New("scan.ssl_max_attempts must be at least 1"))
	}
	if c.Workers.Count < 0 {
		errs = append(errs, errors.New("workers.count must not be negative"))
	}
	return errors.Join(errs...)
}
