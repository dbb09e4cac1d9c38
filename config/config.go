// config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// RiskConfig holds the trade validation limits. All values are fixed for the process lifetime.
type RiskConfig struct {
	MinNotional         float64 `yaml:"min_notional"`
	MaxNotional         float64 `yaml:"max_notional"`
	MaxPositionPct      float64 `yaml:"max_position_pct"`
	CooldownMinutes     int     `yaml:"cooldown_minutes"`
	MaxTradesPerCycle   int     `yaml:"max_trades_per_cycle"`
	RiskPerTrade        float64 `yaml:"risk_per_trade"`
	ATRStopMultiple     float64 `yaml:"atr_stop_multiple"`
	ATRPeriod           int     `yaml:"atr_period"`
	VolatilityTimeframe string  `yaml:"volatility_timeframe"` // 15m, 1h or 1D
}

// CooldownWindow returns the cooldown as a duration.
func (r *RiskConfig) CooldownWindow() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// LogConfig holds the configuration for logging.
type LogConfig struct {
	LogLevel   string `yaml:"log_level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	FileFormat string `yaml:"file_format"` // text (default) or json
}

// NormalConfig holds all general, non-risk configuration.
type NormalConfig struct {
	CycleIntervalSeconds int    `yaml:"cycle_interval_seconds"`
	HTTPTimeoutSeconds   int    `yaml:"http_timeout_seconds"`
	RespectMarketHours   bool   `yaml:"respect_market_hours"`
	LogDirectory         string `yaml:"log_directory"`
	StateDirectory       string `yaml:"state_directory"`
}

// JournalConfig selects the decision journal sinks.
type JournalConfig struct {
	SQLitePath   string `yaml:"sqlite_path"`
	KafkaEnabled bool   `yaml:"kafka_enabled"`
	KafkaTopic   string `yaml:"kafka_topic"`
}

// MonitorConfig holds the status server settings. An empty address disables it.
type MonitorConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// ProposalConfig holds the file-drop proposer settings.
type ProposalConfig struct {
	InboxDirectory string `yaml:"inbox_directory"`
}

// UniverseConfig seeds the paper broker in simulation mode.
type UniverseConfig struct {
	StartingCash float64            `yaml:"starting_cash"`
	Prices       map[string]float64 `yaml:"prices"`
}

// Config is the top-level configuration structure.
type Config struct {
	UseSimulation bool            `yaml:"use_simulation"`
	Risk          *RiskConfig     `yaml:"risk"`
	Normal        *NormalConfig   `yaml:"normal_config"`
	Logs          *LogConfig      `yaml:"logs"`
	Journal       *JournalConfig  `yaml:"journal"`
	Monitor       *MonitorConfig  `yaml:"monitor"`
	Proposals     *ProposalConfig `yaml:"proposals"`
	Universe      *UniverseConfig `yaml:"universe"`
}

// NewConfig creates a new Config with nested sections allocated but risk limits left zero.
// Every risk limit MUST be provided in the config.yaml file.
func NewConfig() *Config {
	return &Config{
		Risk: &RiskConfig{
			ATRPeriod:           14,
			VolatilityTimeframe: "1D",
		},
		Normal: &NormalConfig{
			CycleIntervalSeconds: 600,
			HTTPTimeoutSeconds:   15,
			RespectMarketHours:   true,
		},
		Logs:      &LogConfig{},
		Journal:   &JournalConfig{KafkaTopic: "trading.decisions"},
		Monitor:   &MonitorConfig{},
		Proposals: &ProposalConfig{},
		Universe:  &UniverseConfig{StartingCash: 100000, Prices: map[string]float64{}},
	}
}

// LoadConfig loads configuration from a given path, applies defaults, and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s, program cannot run without a config file", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse unmarshals YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}
	cfg.fillNil()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// fillNil restores sections explicitly set to null in YAML.
func (c *Config) fillNil() {
	def := NewConfig()
	if c.Risk == nil {
		c.Risk = def.Risk
	}
	if c.Normal == nil {
		c.Normal = def.Normal
	}
	if c.Logs == nil {
		c.Logs = def.Logs
	}
	if c.Journal == nil {
		c.Journal = def.Journal
	}
	if c.Monitor == nil {
		c.Monitor = def.Monitor
	}
	if c.Proposals == nil {
		c.Proposals = def.Proposals
	}
	if c.Universe == nil {
		c.Universe = def.Universe
	}
}

// Validate checks the logical consistency and completeness of the entire configuration.
func (c *Config) Validate() error {
	r := c.Risk
	if r.MinNotional <= 0 {
		return fmt.Errorf("critical config missing: 'risk.min_notional' must be specified and be positive")
	}
	if r.MaxNotional < r.MinNotional {
		return fmt.Errorf("config error: risk.max_notional (%.2f) must not be below risk.min_notional (%.2f)", r.MaxNotional, r.MinNotional)
	}
	if r.MaxPositionPct <= 0 || r.MaxPositionPct > 1 {
		return fmt.Errorf("config error: 'risk.max_position_pct' must be in (0, 1]")
	}
	if r.CooldownMinutes < 0 {
		return fmt.Errorf("config error: 'risk.cooldown_minutes' cannot be negative")
	}
	if r.MaxTradesPerCycle <= 0 {
		return fmt.Errorf("critical config missing: 'risk.max_trades_per_cycle' must be specified and be positive")
	}
	if r.RiskPerTrade <= 0 || r.RiskPerTrade >= 1 {
		return fmt.Errorf("config error: 'risk.risk_per_trade' must be in (0, 1)")
	}
	if r.ATRStopMultiple <= 0 {
		return fmt.Errorf("critical config missing: 'risk.atr_stop_multiple' must be specified and be positive")
	}
	if r.ATRPeriod <= 0 {
		return fmt.Errorf("config error: 'risk.atr_period' must be positive")
	}
	switch r.VolatilityTimeframe {
	case "15m", "1h", "1D":
	default:
		return fmt.Errorf("config error: 'risk.volatility_timeframe' must be one of 15m, 1h, 1D (got %q)", r.VolatilityTimeframe)
	}

	if c.Normal.CycleIntervalSeconds <= 0 {
		return fmt.Errorf("config error: 'normal_config.cycle_interval_seconds' must be positive")
	}
	if c.Normal.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("config error: 'normal_config.http_timeout_seconds' must be positive")
	}
	if c.Normal.LogDirectory == "" {
		return fmt.Errorf("critical config missing: 'normal_config.log_directory' must be specified (e.g., 'logs')")
	}
	if c.Normal.StateDirectory == "" {
		return fmt.Errorf("critical config missing: 'normal_config.state_directory' must be specified (e.g., 'state')")
	}

	if c.Logs.LogLevel == "" {
		return fmt.Errorf("critical config missing: 'logs.log_level' must be specified (e.g., 'info', 'debug', 'warn', 'error')")
	}
	if c.Logs.MaxSizeMB <= 0 || c.Logs.MaxBackups <= 0 || c.Logs.MaxAgeDays <= 0 {
		return fmt.Errorf("critical config missing: 'logs.max_size_mb', 'logs.max_backups' and 'logs.max_age_days' must be positive")
	}

	switch c.Logs.FileFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("config error: 'logs.file_format' must be text or json (got %q)", c.Logs.FileFormat)
	}

	if c.Journal.KafkaEnabled && c.Journal.KafkaTopic == "" {
		return fmt.Errorf("config error: 'journal.kafka_topic' is required when kafka is enabled")
	}
	if c.Proposals.InboxDirectory == "" {
		return fmt.Errorf("critical config missing: 'proposals.inbox_directory' must be specified")
	}

	if c.UseSimulation {
		if c.Universe.StartingCash <= 0 {
			return fmt.Errorf("config error: 'universe.starting_cash' must be positive in simulation mode")
		}
		if len(c.Universe.Prices) == 0 {
			return fmt.Errorf("critical config missing: 'universe.prices' must list at least one ticker in simulation mode")
		}
	}
	return nil
}

// EnvConfig holds secrets and endpoints taken from the environment.
type EnvConfig struct {
	ApiKey       string
	ApiSecret    string
	BaseURL      string
	DataURL      string
	DataFeed     string
	KafkaBrokers []string
}

func LoadEnvConfig() *EnvConfig {
	return &EnvConfig{
		ApiKey:       os.Getenv("ALPACA_API_KEY"),
		ApiSecret:    os.Getenv("ALPACA_SECRET_KEY"),
		BaseURL:      getEnv("ALPACA_BASE_URL", "https://paper-api.alpaca.markets"),
		DataURL:      getEnv("ALPACA_DATA_URL", "https://data.alpaca.markets"),
		DataFeed:     getEnv("ALPACA_DATA_FEED", "iex"),
		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
