package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	TradingConfig  TradingConfig  `json:"trading"`
	RiskConfig     RiskConfig     `json:"risk"`
	CircuitConfig  CircuitConfig  `json:"circuit_breaker"`
	TrimConfig     TrimConfig     `json:"trim"`
	RegimeConfig   RegimeConfig   `json:"regime"`
	FeedConfig     FeedConfig     `json:"feed"`
	StoreConfig    StoreConfig    `json:"store"`
	DatabaseConfig DatabaseConfig `json:"database"`
	ServerConfig   ServerConfig   `json:"server"`
	AuthConfig     AuthConfig     `json:"auth"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

// TradingConfig holds the tick scheduler and admission settings
type TradingConfig struct {
	TickInterval     time.Duration `json:"tick_interval"`
	SlotSyncInterval time.Duration `json:"slot_sync_interval"`
	CooldownWindow   time.Duration `json:"cooldown_window"`
	SlotCapitalUnit  float64       `json:"slot_capital_unit"` // Capital backing one slot
	RewardRiskRatio  float64       `json:"reward_risk_ratio"`
	DryRun           bool          `json:"dry_run"`
	PaperBalance     float64       `json:"paper_balance"`
}

// RiskConfig percentages are whole numbers: 2.0 means 2%
type RiskConfig struct {
	RiskPerTradePct     float64 `json:"risk_per_trade_pct"`
	MaxDailyLossPct     float64 `json:"max_daily_loss_pct"`
	MaxPortfolioRiskPct float64 `json:"max_portfolio_risk_pct"`
	FeeBufferPct        float64 `json:"fee_buffer_pct"`
}

// CircuitConfig thresholds are fractional returns: -0.05 means -5%
type CircuitConfig struct {
	L1Drop24h  float64       `json:"l1_drop_24h"`
	L2Drop24h  float64       `json:"l2_drop_24h"`
	L3Drop7d   float64       `json:"l3_drop_7d"`
	L2Cooldown time.Duration `json:"l2_cooldown"`
	L3Cooldown time.Duration `json:"l3_cooldown"`
}

type TrimConfig struct {
	MinCandidateConfidence float64 `json:"min_candidate_confidence"`
	WinnerConfidenceDelta  float64 `json:"winner_confidence_delta"`
	LoserConfidenceDelta   float64 `json:"loser_confidence_delta"`
	AdverseThresholdPct    float64 `json:"adverse_threshold_pct"`
	MaxAcceptableLossPct   float64 `json:"max_acceptable_loss_pct"`
	TrimFraction           float64 `json:"trim_fraction"`
}

type RegimeConfig struct {
	VolRiskOff   float64 `json:"vol_risk_off"`
	VolCrash     float64 `json:"vol_crash"`
	Crash24hDrop float64 `json:"crash_24h_drop"`
}

// FeedConfig points at the external signal and macro endpoints
type FeedConfig struct {
	SignalURL string        `json:"signal_url"`
	MacroURL  string        `json:"macro_url"`
	Timeout   time.Duration `json:"timeout"`
}

type StoreConfig struct {
	Address     string        `json:"address"`
	Password    string        `json:"password"`
	DB          int           `json:"db"`
	PoolSize    int           `json:"pool_size"`
	CallTimeout time.Duration `json:"call_timeout"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type ServerConfig struct {
	Port           int      `json:"port"`
	Host           string   `json:"host"`
	ProductionMode bool     `json:"production_mode"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type AuthConfig struct {
	OperatorKeyHash string        `json:"operator_key_hash"`
	JWTSecret       string        `json:"jwt_secret"`
	TokenDuration   time.Duration `json:"token_duration"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	Output     string `json:"output"`
	JSONFormat bool   `json:"json_format"`
}

func Load() (*Config, error) {
	// Base config from file, if present; env overrides take precedence.
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Trading config
	cfg.TradingConfig.TickInterval = getEnvDurationOrDefault("TICK_INTERVAL", 60*time.Second)
	cfg.TradingConfig.SlotSyncInterval = getEnvDurationOrDefault("SLOT_SYNC_INTERVAL", 10*time.Minute)
	cfg.TradingConfig.CooldownWindow = getEnvDurationOrDefault("COOLDOWN_WINDOW", 300*time.Second)
	cfg.TradingConfig.SlotCapitalUnit = getEnvFloatOrDefault("SLOT_CAPITAL_UNIT", 2500)
	cfg.TradingConfig.RewardRiskRatio = getEnvFloatOrDefault("REWARD_RISK_RATIO", 2.0)
	cfg.TradingConfig.DryRun = getEnvOrDefault("TRADING_DRY_RUN", "true") == "true"
	cfg.TradingConfig.PaperBalance = getEnvFloatOrDefault("PAPER_BALANCE", 10000)

	// Risk config
	cfg.RiskConfig.RiskPerTradePct = getEnvFloatOrDefault("RISK_PER_TRADE_PCT", 2.0)
	cfg.RiskConfig.MaxDailyLossPct = getEnvFloatOrDefault("MAX_DAILY_LOSS_PCT", 5.0)
	cfg.RiskConfig.MaxPortfolioRiskPct = getEnvFloatOrDefault("MAX_PORTFOLIO_RISK_PCT", 20.0)
	cfg.RiskConfig.FeeBufferPct = getEnvFloatOrDefault("FEE_BUFFER_PCT", 2.0)

	// Circuit breaker config
	cfg.CircuitConfig.L1Drop24h = getEnvFloatOrDefault("CIRCUIT_L1_DROP_24H", -0.05)
	cfg.CircuitConfig.L2Drop24h = getEnvFloatOrDefault("CIRCUIT_L2_DROP_24H", -0.10)
	cfg.CircuitConfig.L3Drop7d = getEnvFloatOrDefault("CIRCUIT_L3_DROP_7D", -0.20)
	cfg.CircuitConfig.L2Cooldown = getEnvDurationOrDefault("CIRCUIT_L2_COOLDOWN", 48*time.Hour)
	cfg.CircuitConfig.L3Cooldown = getEnvDurationOrDefault("CIRCUIT_L3_COOLDOWN", 0)

	// Trim config
	cfg.TrimConfig.MinCandidateConfidence = getEnvFloatOrDefault("TRIM_MIN_CONFIDENCE", 0.75)
	cfg.TrimConfig.WinnerConfidenceDelta = getEnvFloatOrDefault("TRIM_WINNER_DELTA", 0.15)
	cfg.TrimConfig.LoserConfidenceDelta = getEnvFloatOrDefault("TRIM_LOSER_DELTA", 0.10)
	cfg.TrimConfig.AdverseThresholdPct = getEnvFloatOrDefault("TRIM_ADVERSE_THRESHOLD_PCT", 0.5)
	cfg.TrimConfig.MaxAcceptableLossPct = getEnvFloatOrDefault("TRIM_MAX_ACCEPTABLE_LOSS_PCT", 5.0)
	cfg.TrimConfig.TrimFraction = getEnvFloatOrDefault("TRIM_FRACTION", 0.5)

	// Regime config
	cfg.RegimeConfig.VolRiskOff = getEnvFloatOrDefault("REGIME_VOL_RISK_OFF", 25)
	cfg.RegimeConfig.VolCrash = getEnvFloatOrDefault("REGIME_VOL_CRASH", 40)
	cfg.RegimeConfig.Crash24hDrop = getEnvFloatOrDefault("REGIME_CRASH_24H_DROP", -0.08)

	// Feed config
	cfg.FeedConfig.SignalURL = getEnvOrDefault("FEED_SIGNAL_URL", cfg.FeedConfig.SignalURL)
	cfg.FeedConfig.MacroURL = getEnvOrDefault("FEED_MACRO_URL", cfg.FeedConfig.MacroURL)
	cfg.FeedConfig.Timeout = getEnvDurationOrDefault("FEED_TIMEOUT", 5*time.Second)

	// Store config
	cfg.StoreConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.StoreConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.StoreConfig.Password)
	cfg.StoreConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.StoreConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)
	cfg.StoreConfig.CallTimeout = getEnvDurationOrDefault("REDIS_CALL_TIMEOUT", 3*time.Second)

	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", 5432)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", "controller")
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", "controller")
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSL_MODE", "disable")

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("PRODUCTION_MODE", "false") == "true"

	// Auth config
	cfg.AuthConfig.OperatorKeyHash = getEnvOrDefault("AUTH_OPERATOR_KEY_HASH", cfg.AuthConfig.OperatorKeyHash)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.TokenDuration = getEnvDurationOrDefault("AUTH_TOKEN_DURATION", 15*time.Minute)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
}

// Validate rejects configurations that cannot coordinate safely.
func (c *Config) Validate() error {
	if c.TradingConfig.SlotCapitalUnit <= 0 {
		return fmt.Errorf("slot_capital_unit must be positive")
	}
	if c.RiskConfig.RiskPerTradePct <= 0 || c.RiskConfig.RiskPerTradePct > 100 {
		return fmt.Errorf("risk_per_trade_pct %.2f out of range (0,100]", c.RiskConfig.RiskPerTradePct)
	}
	if c.RiskConfig.MaxPortfolioRiskPct < c.RiskConfig.RiskPerTradePct {
		return fmt.Errorf("max_portfolio_risk_pct %.2f below risk_per_trade_pct %.2f",
			c.RiskConfig.MaxPortfolioRiskPct, c.RiskConfig.RiskPerTradePct)
	}
	if c.CircuitConfig.L2Drop24h >= c.CircuitConfig.L1Drop24h {
		return fmt.Errorf("circuit L2 threshold must be below L1")
	}
	if !c.TradingConfig.DryRun && c.AuthConfig.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret required outside dry-run mode")
	}
	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
