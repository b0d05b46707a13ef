package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration. Values come from defaults, an
// optional config.yaml, and environment variables (REDIS_ADDR, SQLITE_PATH,
// CACHE_QUOTE_TTL, ...), in increasing precedence.
type Config struct {
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`

	// Infrastructure
	Redis struct {
		Addr          string        `mapstructure:"addr"`
		Password      string        `mapstructure:"password"`
		DB            int           `mapstructure:"db"`
		ProbeCooldown time.Duration `mapstructure:"probe_cooldown"`
	} `mapstructure:"redis"`

	SQLite struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"sqlite"`

	Archive struct {
		Dir string `mapstructure:"dir"` // empty disables parquet archiving
	} `mapstructure:"archive"`

	Cache struct {
		L1BackfillTTL time.Duration `mapstructure:"l1_backfill_ttl"`
		QuoteTTL      time.Duration `mapstructure:"quote_ttl"`
		BatchTTL      time.Duration `mapstructure:"batch_ttl"`
		SparklineTTL  time.Duration `mapstructure:"sparkline_ttl"`
		RatiosTTL     time.Duration `mapstructure:"ratios_ttl"`
	} `mapstructure:"cache"`

	Breaker struct {
		Cooldown  time.Duration `mapstructure:"cooldown"`
		Threshold int           `mapstructure:"threshold"`
	} `mapstructure:"breaker"`

	Orchestrator struct {
		Workers      int           `mapstructure:"workers"`
		BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	} `mapstructure:"orchestrator"`

	Providers struct {
		VPS    ProviderConfig `mapstructure:"vps"`
		VCI    ProviderConfig `mapstructure:"vci"`
		Ratios ProviderConfig `mapstructure:"ratios"`
	} `mapstructure:"providers"`

	Normalize struct {
		ScaleThreshold    float64 `mapstructure:"scale_threshold"`
		TurnoverThreshold float64 `mapstructure:"turnover_threshold"`
	} `mapstructure:"normalize"`

	Intraday struct {
		MaxPoints int `mapstructure:"max_points"`
	} `mapstructure:"intraday"`

	// Symbols tracked by the end-of-day finalizer and the summary stream.
	Summary struct {
		Symbols        []string      `mapstructure:"symbols"`
		StreamInterval time.Duration `mapstructure:"stream_interval"`
	} `mapstructure:"summary"`

	// Symbols is the metadata seeded into the symbol store at startup.
	Symbols []SymbolConfig `mapstructure:"symbols"`

	Log struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"log"`
}

// SymbolConfig is one entry of the seeded symbol metadata.
type SymbolConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Name     string `mapstructure:"name"`
	Exchange string `mapstructure:"exchange"` // HOSE, HNX, UPCOM
	Kind     string `mapstructure:"kind"`     // "index" or "equity"; empty means equity
}

// ProviderConfig configures one upstream HTTP provider.
type ProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	RPS     float64       `mapstructure:"rps"`
	Burst   int           `mapstructure:"burst"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.probe_cooldown", "10s")

	v.SetDefault("sqlite.path", "data/market.db")
	v.SetDefault("archive.dir", "")

	v.SetDefault("cache.l1_backfill_ttl", "30s")
	v.SetDefault("cache.quote_ttl", "15s")
	v.SetDefault("cache.batch_ttl", "5s")
	v.SetDefault("cache.sparkline_ttl", "60s")
	v.SetDefault("cache.ratios_ttl", "6h")

	v.SetDefault("breaker.cooldown", "60s")
	v.SetDefault("breaker.threshold", 1)

	v.SetDefault("orchestrator.workers", 16)
	v.SetDefault("orchestrator.batch_timeout", "8s")

	v.SetDefault("providers.vps.base_url", "https://bgapidatafeed.vps.com.vn")
	v.SetDefault("providers.vps.rps", 5)
	v.SetDefault("providers.vps.burst", 5)
	v.SetDefault("providers.vps.timeout", "4s")
	v.SetDefault("providers.vci.base_url", "https://trading.vietcap.com.vn/api")
	v.SetDefault("providers.vci.rps", 2)
	v.SetDefault("providers.vci.burst", 2)
	v.SetDefault("providers.vci.timeout", "6s")
	v.SetDefault("providers.ratios.base_url", "https://trading.vietcap.com.vn/api")
	v.SetDefault("providers.ratios.rps", 1)
	v.SetDefault("providers.ratios.burst", 2)
	v.SetDefault("providers.ratios.timeout", "6s")

	v.SetDefault("normalize.scale_threshold", 5000)
	v.SetDefault("normalize.turnover_threshold", 1e9)

	v.SetDefault("intraday.max_points", 72)

	v.SetDefault("summary.symbols", []string{"VNINDEX", "VN30", "HNXINDEX", "UPCOMINDEX"})
	v.SetDefault("summary.stream_interval", "5s")

	v.SetDefault("symbols", []map[string]any{
		{"symbol": "VNINDEX", "name": "VN-Index", "exchange": "HOSE", "kind": "index"},
		{"symbol": "VN30", "name": "VN30 Index", "exchange": "HOSE", "kind": "index"},
		{"symbol": "HNXINDEX", "name": "HNX-Index", "exchange": "HNX", "kind": "index"},
		{"symbol": "UPCOMINDEX", "name": "UPCoM-Index", "exchange": "UPCOM", "kind": "index"},
		{"symbol": "FPT", "name": "FPT Corporation", "exchange": "HOSE", "kind": "equity"},
		{"symbol": "VNM", "name": "Vietnam Dairy Products", "exchange": "HOSE", "kind": "equity"},
		{"symbol": "HPG", "name": "Hoa Phat Group", "exchange": "HOSE", "kind": "equity"},
		{"symbol": "VCB", "name": "Vietcombank", "exchange": "HOSE", "kind": "equity"},
	})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Load reads configuration from defaults, an optional config file and the
// environment. Environment variables take precedence.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.quoteserve")
	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults and env still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the serving layer cannot run with.
func (c *Config) Validate() error {
	if c.Orchestrator.Workers <= 0 {
		return fmt.Errorf("orchestrator.workers must be positive, got %d", c.Orchestrator.Workers)
	}
	if c.Orchestrator.BatchTimeout <= 0 {
		return fmt.Errorf("orchestrator.batch_timeout must be positive")
	}
	for name, ttl := range map[string]time.Duration{
		"cache.l1_backfill_ttl": c.Cache.L1BackfillTTL,
		"cache.quote_ttl":       c.Cache.QuoteTTL,
		"cache.batch_ttl":       c.Cache.BatchTTL,
		"cache.sparkline_ttl":   c.Cache.SparklineTTL,
		"breaker.cooldown":      c.Breaker.Cooldown,
	} {
		if ttl <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Normalize.ScaleThreshold <= 0 {
		return fmt.Errorf("normalize.scale_threshold must be positive")
	}
	if c.Intraday.MaxPoints < 2 {
		return fmt.Errorf("intraday.max_points must be at least 2")
	}
	for i, sym := range c.Symbols {
		if strings.TrimSpace(sym.Symbol) == "" {
			return fmt.Errorf("symbols[%d]: symbol is required", i)
		}
		switch sym.Kind {
		case "", "index", "equity":
		default:
			return fmt.Errorf("symbols[%d]: unknown kind %q", i, sym.Kind)
		}
	}
	return nil
}

// ParseSymbols splits a comma-separated symbol list, upper-casing entries
// and skipping blanks.
func ParseSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
