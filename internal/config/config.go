package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "Vaultly"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultRateFreshness  = 60 * time.Second
	defaultCallTimeout    = 30 * time.Second
	defaultSweepInterval  = 30 * time.Second
	defaultSweepHorizon   = 10 * time.Minute

	// Amounts are in the stablecoin's smallest unit (6 decimals).
	defaultOperationMin = 1_000_000       // $1
	defaultOperationMax = 100_000_000_000 // $100,000
	defaultDailyCap     = 25_000_000_000  // $25,000
	defaultKycThreshold = 1_000_000_000   // $1,000
)

// OperationLimits bounds a single operation kind.
type OperationLimits struct {
	Min      int64
	Max      int64
	DailyCap int64
}

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	DatabaseURL string
	RedisURL    string

	ChainRPCURL         string
	TokenAddress        string
	ATokenAddress       string
	PoolAddress         string
	DataProviderAddress string
	SignerKey           string

	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	RateFreshness  time.Duration
	CallTimeout    time.Duration
	SweepInterval  time.Duration
	SweepHorizon   time.Duration

	DepositLimits  OperationLimits
	WithdrawLimits OperationLimits
	SendLimits     OperationLimits
	KycThreshold   int64
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:  getEnv("APP_NAME", defaultAppName),
		AppEnv:   getEnv("APP_ENV", defaultAppEnv),
		Port:     getEnv("PORT", defaultPort),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		ChainRPCURL:         os.Getenv("CHAIN_RPC_URL"),
		TokenAddress:        os.Getenv("TOKEN_ADDRESS"),
		ATokenAddress:       os.Getenv("ATOKEN_ADDRESS"),
		PoolAddress:         os.Getenv("POOL_ADDRESS"),
		DataProviderAddress: os.Getenv("POOL_DATA_PROVIDER_ADDRESS"),
		SignerKey:           os.Getenv("SIGNER_KEY"),

		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		RateFreshness:  defaultRateFreshness,
		CallTimeout:    defaultCallTimeout,
		SweepInterval:  defaultSweepInterval,
		SweepHorizon:   defaultSweepHorizon,

		KycThreshold: defaultKycThreshold,
	}

	var err error
	if cfg.ShutdownPeriod, err = getDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.RateFreshness, err = getDuration("RATE_FRESHNESS_WINDOW", cfg.RateFreshness); err != nil {
		return Config{}, err
	}
	if cfg.CallTimeout, err = getDuration("CHAIN_CALL_TIMEOUT", cfg.CallTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.SweepHorizon, err = getDuration("SWEEP_HORIZON", cfg.SweepHorizon); err != nil {
		return Config{}, err
	}

	if cfg.DepositLimits, err = getLimits("DEPOSIT"); err != nil {
		return Config{}, err
	}
	if cfg.WithdrawLimits, err = getLimits("WITHDRAW"); err != nil {
		return Config{}, err
	}
	if cfg.SendLimits, err = getLimits("SEND"); err != nil {
		return Config{}, err
	}
	if cfg.KycThreshold, err = getInt64("KYC_THRESHOLD_AMOUNT", cfg.KycThreshold); err != nil {
		return Config{}, err
	}

	// Development runs fall back to in-memory backends, so the external
	// endpoints are only mandatory outside of dev.
	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.ChainRPCURL == "" {
			return Config{}, fmt.Errorf("CHAIN_RPC_URL must be set")
		}
		if cfg.SignerKey == "" {
			return Config{}, fmt.Errorf("SIGNER_KEY must be set")
		}
	}

	return cfg, nil
}

// IsDev reports whether the app is running in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getLimits(prefix string) (OperationLimits, error) {
	limits := OperationLimits{
		Min:      defaultOperationMin,
		Max:      defaultOperationMax,
		DailyCap: defaultDailyCap,
	}
	var err error
	if limits.Min, err = getInt64(prefix+"_MIN_AMOUNT", limits.Min); err != nil {
		return OperationLimits{}, err
	}
	if limits.Max, err = getInt64(prefix+"_MAX_AMOUNT", limits.Max); err != nil {
		return OperationLimits{}, err
	}
	if limits.DailyCap, err = getInt64(prefix+"_DAILY_CAP", limits.DailyCap); err != nil {
		return OperationLimits{}, err
	}
	return limits, nil
}
