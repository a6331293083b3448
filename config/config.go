package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"hybridBacktester/internal/adapters/logger" // LogLevel and output format
	"hybridBacktester/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Binance API (read-only market data; keys are optional)
	APIKey            string
	SecretKey         string
	BaseURL           string
	IsTestnet         bool
	RequestsPerSecond int
	FetchMaxRetries   int

	// Default market
	Symbol   string
	Interval string

	// Default strategy parameters
	Params domain.Params

	// Database
	DBPath string

	// Result cache entry lifetime
	CacheTTL time.Duration

	// Parameter sweep concurrency
	SweepWorkers int

	// Logging
	LogLevel  logger.LogLevel
	LogFormat logger.Format
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.BaseURL = getEnv("BINANCE_BASE_URL", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)
	if (cfg.APIKey == "") != (cfg.SecretKey == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set together")
	}

	cfg.RequestsPerSecond, err = getEnvAsIntRequired("BINANCE_REQUESTS_PER_SECOND", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BINANCE_REQUESTS_PER_SECOND: %v", err))
	} else if cfg.RequestsPerSecond <= 0 {
		errs = append(errs, "BINANCE_REQUESTS_PER_SECOND must be positive")
	}

	cfg.FetchMaxRetries, err = getEnvAsIntRequired("FETCH_MAX_RETRIES", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FETCH_MAX_RETRIES: %v", err))
	} else if cfg.FetchMaxRetries < 0 {
		errs = append(errs, "FETCH_MAX_RETRIES cannot be negative")
	}

	// Default market
	cfg.Symbol = strings.ToUpper(getEnv("SYMBOL", "BTCUSDT"))
	cfg.Interval = getEnv("INTERVAL", "1h")
	if !domain.IsSupportedInterval(cfg.Interval) {
		errs = append(errs, fmt.Sprintf("INTERVAL %q is not supported (use one of %s)",
			cfg.Interval, strings.Join(domain.SupportedIntervals, ", ")))
	}

	// Strategy parameters
	var paramErrs []string
	cfg.Params, paramErrs = loadParams()
	errs = append(errs, paramErrs...)
	if len(paramErrs) == 0 {
		if err := cfg.Params.Validate(); err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				errs = append(errs, verr.Problems...)
			} else {
				errs = append(errs, err.Error())
			}
		}
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/backtests.db")

	// Cache
	ttlSeconds, err := getEnvAsIntRequired("CACHE_TTL_SECONDS", 300)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CACHE_TTL_SECONDS: %v", err))
	} else if ttlSeconds < 0 {
		errs = append(errs, "CACHE_TTL_SECONDS cannot be negative")
	}
	cfg.CacheTTL = time.Duration(ttlSeconds) * time.Second

	cfg.SweepWorkers = getEnvAsInt("SWEEP_WORKERS", 4)
	if cfg.SweepWorkers <= 0 {
		errs = append(errs, "SWEEP_WORKERS must be positive")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	switch format := logger.Format(strings.ToLower(getEnv("LOG_FORMAT", string(logger.FormatConsole)))); format {
	case logger.FormatConsole, logger.FormatJSON:
		cfg.LogFormat = format
	default:
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be %q or %q", logger.FormatConsole, logger.FormatJSON))
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// loadParams reads the default parameter bundle, starting from domain.DefaultParams.
// Malformed values are reported; range checks are left to Params.Validate.
func loadParams() (domain.Params, []string) {
	p := domain.DefaultParams()
	var errs []string

	ints := []struct {
		key string
		dst *int
	}{
		{"LOOKBACK_PERIOD", &p.LookbackPeriod},
		{"SHORT_PERIOD", &p.ShortPeriod},
		{"LONG_PERIOD", &p.LongPeriod},
		{"MOMENTUM_PERIOD", &p.MomentumPeriod},
		{"SIGNAL_WINDOW_SECONDS", &p.SignalWindowSeconds},
		{"MAX_TRADES", &p.MaxTrades},
	}
	for _, f := range ints {
		v, err := getEnvAsIntRequired(f.key, *f.dst)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", f.key, err))
			continue
		}
		*f.dst = v
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"VOLUME_THRESHOLD", &p.VolumeThreshold},
		{"MIN_PRICE_CHANGE", &p.MinPriceChange},
		{"TAKE_PROFIT", &p.TakeProfit},
		{"STOP_LOSS", &p.StopLoss},
		{"INITIAL_CAPITAL", &p.InitialCapital},
		{"MAX_POSITION_SIZE", &p.MaxPositionSize},
		{"RISK_PER_TRADE", &p.RiskPerTrade},
		{"VOLUME_WEIGHT", &p.VolumeWeight},
		{"PRICE_WEIGHT", &p.PriceWeight},
		{"MOMENTUM_WEIGHT", &p.MomentumWeight},
		{"MIN_COMBINED_SCORE", &p.MinCombinedScore},
	}
	for _, f := range floats {
		v, err := getEnvAsFloatRequired(f.key, *f.dst)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", f.key, err))
			continue
		}
		*f.dst = v
	}

	return p, errs
}

// LoadParamsFile overlays the YAML parameter bundle at path on base.
// Keys missing from the file keep their base value.
func LoadParamsFile(path string, base domain.Params) (domain.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read parameter file %s: %w", path, err)
	}

	params := base
	if err := yaml.Unmarshal(data, &params); err != nil {
		return base, fmt.Errorf("failed to parse parameter file %s: %w", path, err)
	}
	if err := params.Validate(); err != nil {
		return base, fmt.Errorf("parameter file %s: %w", path, err)
	}
	return params, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
