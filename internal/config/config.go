package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/shopspring/decimal"
)

type Config struct {
	DB         DBConfig
	Redis      RedisConfig
	Chains     map[model.Chain]ChainConfig
	Scan       ScanConfig
	Commission CommissionConfig
	Server     ServerConfig
	Alert      AlertConfig
	Tracing    TracingConfig
	Log        LogConfig
}

type DBConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string // empty skips migrations at startup
}

type RedisConfig struct {
	URL string // empty disables the ledger hot cache
}

type ChainConfig struct {
	ExplorerURL string
	APIKey      string
}

type ScanConfig struct {
	Interval          time.Duration
	FetchTimeout      time.Duration
	Workers           int
	TokenRegistryPath string
}

type CommissionConfig struct {
	Rate decimal.Decimal
}

type ServerConfig struct {
	AdminPort   int
	MetricsPort int
}

type AlertConfig struct {
	WebhookURL string
	Cooldown   time.Duration
}

type TracingConfig struct {
	OTLPEndpoint string // empty disables tracing
}

type LogConfig struct {
	Level string
}

var defaultExplorerURLs = map[model.Chain]string{
	model.ChainEthereum: "https://api.etherscan.io/api",
	model.ChainBSC:      "https://api.bscscan.com/api",
	model.ChainPolygon:  "https://api.polygonscan.com/api",
	model.ChainArbitrum: "https://api.arbiscan.io/api",
	model.ChainBase:     "https://api.basescan.org/api",
	model.ChainSolana:   "https://public-api.solscan.io",
}

func Load() (*Config, error) {
	rate, err := decimal.NewFromString(getEnv("COMMISSION_RATE", "0.10"))
	if err != nil {
		return nil, fmt.Errorf("COMMISSION_RATE: %w", err)
	}

	cfg := &Config{
		DB: DBConfig{
			URL:             getEnv("DB_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
			MigrationsDir:   getEnv("DB_MIGRATIONS_DIR", "internal/store/postgres/migrations"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Chains: make(map[model.Chain]ChainConfig),
		Scan: ScanConfig{
			Interval:          getEnvDuration("SCAN_INTERVAL", 5*time.Minute),
			FetchTimeout:      getEnvDuration("FETCH_TIMEOUT", 10*time.Second),
			Workers:           getEnvInt("SCAN_WORKERS", 4),
			TokenRegistryPath: getEnv("TOKEN_REGISTRY_PATH", ""),
		},
		Commission: CommissionConfig{
			Rate: rate,
		},
		Server: ServerConfig{
			AdminPort:   getEnvInt("ADMIN_PORT", 8081),
			MetricsPort: getEnvInt("METRICS_PORT", 9090),
		},
		Alert: AlertConfig{
			WebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
			Cooldown:   getEnvDuration("ALERT_COOLDOWN", 5*time.Minute),
		},
		Tracing: TracingConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	for _, raw := range strings.Split(getEnv("CHAINS", allChainsCSV()), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		ch, err := model.ParseChain(raw)
		if err != nil {
			return nil, fmt.Errorf("CHAINS: %w", err)
		}
		prefix := strings.ToUpper(string(ch))
		cfg.Chains[ch] = ChainConfig{
			ExplorerURL: getEnv(prefix+"_EXPLORER_URL", defaultExplorerURLs[ch]),
			APIKey:      getEnv(prefix+"_API_KEY", ""),
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DB.URL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain must be enabled")
	}
	for ch, cc := range c.Chains {
		if cc.ExplorerURL == "" {
			return fmt.Errorf("%s: explorer URL is required", ch)
		}
	}
	if c.Commission.Rate.IsNegative() || c.Commission.Rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("COMMISSION_RATE must be within [0, 1], got %s", c.Commission.Rate)
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("SCAN_WORKERS must be positive")
	}
	return nil
}

func allChainsCSV() string {
	parts := make([]string, 0, len(model.AllChains))
	for _, ch := range model.AllChains {
		parts = append(parts, string(ch))
	}
	return strings.Join(parts, ",")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
