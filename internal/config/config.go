// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"lpmaker-go/internal/cache/redis"
	"lpmaker-go/internal/maker"
	"lpmaker-go/internal/risk"
	"lpmaker-go/internal/strategy"
)

// Execution modes select which backend receives liquidity changes.
const (
	ExecutionDry   = "dry"
	ExecutionPaper = "paper"
	ExecutionLive  = "live"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	Console     bool   `yaml:"console"`
}

// Exchange describes where market data comes from.
type Exchange struct {
	Name             string      `yaml:"name"`
	StubIntervalMs   int         `yaml:"stub_interval_ms"`
	AssumedSpreadBps float64     `yaml:"assumed_spread_bps"`
	MaxQuotes        int         `yaml:"max_quotes"`
	MaxTrades        int         `yaml:"max_trades"`
	DexScreener      DexScreener `yaml:"dexscreener"`
	Discovery        Discovery   `yaml:"discovery"`
}

// DexScreener configures the HTTP polling feed targeting Dexscreener pairs.
type DexScreener struct {
	BaseURL      string `yaml:"base_url"`
	DefaultChain string `yaml:"default_chain"`
	PollInterval int    `yaml:"poll_interval_ms"`
}

// Discovery configures automatic symbol discovery.
type Discovery struct {
	Enabled            bool     `yaml:"enabled"`
	Keywords           []string `yaml:"keywords"`
	Chains             []string `yaml:"chains"`
	DexIDs             []string `yaml:"dex_ids"`
	MaxPairs           int      `yaml:"max_pairs"`
	RefreshInterval    int      `yaml:"refresh_interval_ms"`
	MinLiquidityUSD    float64  `yaml:"min_liquidity_usd"`
	MinVolumeUSD       float64  `yaml:"min_volume_usd"`
	MaxPairsPerKeyword int      `yaml:"max_pairs_per_keyword"`
}

// Pair is one configured liquidity target.
type Pair struct {
	Symbol string `yaml:"symbol"`
	Mode   string `yaml:"mode"`
}

// Execution selects the backend and where receipts are journaled.
type Execution struct {
	Mode         string `yaml:"mode"`
	ReceiptsPath string `yaml:"receipts_path"`
}

// Paper captures simulated account settings.
type Paper struct {
	StartingCash        float64 `yaml:"starting_cash"`
	MaxPositionNotional float64 `yaml:"max_position_notional"`
	FeeRate             float64 `yaml:"fee_rate"`
	PoolShare           float64 `yaml:"pool_share"`
}

// Redis toggles position mirroring into redis.
type Redis struct {
	Enabled            bool `yaml:"enabled"`
	redis.ClientConfig `yaml:",inline"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App        App                   `yaml:"app"`
	Exchange   Exchange              `yaml:"exchange"`
	Pairs      []Pair                `yaml:"pairs"`
	Trading    maker.TradingConfig   `yaml:"trading"`
	Components maker.ComponentConfig `yaml:"components"`
	Risk       risk.Limits           `yaml:"risk"`
	Execution  Execution             `yaml:"execution"`
	Dex        Dex                   `yaml:"dex"`
	Wallet     Wallet                `yaml:"wallet"`
	Paper      Paper                 `yaml:"paper"`
	Redis      Redis                 `yaml:"redis"`
}

// Defaults returns a configuration that runs offline against the stub feed and paper account.
func Defaults() Config {
	return Config{
		App: App{
			Name:        "lpmaker",
			Env:         "dev",
			MetricsAddr: ":9090",
			LogLevel:    "info",
		},
		Exchange: Exchange{
			Name:             "stub",
			StubIntervalMs:   500,
			AssumedSpreadBps: 30,
			MaxQuotes:        512,
			MaxTrades:        2048,
			DexScreener: DexScreener{
				BaseURL:      "https://api.dexscreener.com",
				DefaultChain: "solana",
				PollInterval: 2000,
			},
		},
		Pairs:      []Pair{{Symbol: "SOL-USDC", Mode: string(strategy.ModeBoth)}},
		Trading:    maker.DefaultTradingConfig(),
		Components: maker.DefaultComponentConfig(),
		Execution:  Execution{Mode: ExecutionPaper, ReceiptsPath: "data/receipts.jsonl"},
		Dex: Dex{
			Chain:      "solana",
			RpcURL:     "https://api.mainnet-beta.solana.com",
			Commitment: "confirmed",
		},
		Paper: Paper{
			StartingCash: 10000,
			FeeRate:      0.0025,
			PoolShare:    0.01,
		},
		Redis: Redis{ClientConfig: redis.ClientConfig{Addr: "localhost:6379", KeyPrefix: "lpmaker"}},
	}
}

// Load reads a YAML file from disk on top of Defaults, applies environment overrides, and validates.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Defaults()
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	ApplyEnv(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyEnv overlays LPMAKER_* variables, reading a local .env file when present.
func ApplyEnv(cfg *Config) {
	_ = godotenv.Load()
	setString(&cfg.App.LogLevel, "LPMAKER_LOG_LEVEL")
	setString(&cfg.App.MetricsAddr, "LPMAKER_METRICS_ADDR")
	setString(&cfg.Exchange.Name, "LPMAKER_EXCHANGE")
	setString(&cfg.Execution.Mode, "LPMAKER_EXECUTION_MODE")
	setString(&cfg.Dex.RpcURL, "LPMAKER_RPC_URL")
	setString(&cfg.Dex.BuilderBase, "LPMAKER_BUILDER_URL")
	setString(&cfg.Redis.Addr, "LPMAKER_REDIS_ADDR")
	setString(&cfg.Redis.Password, "LPMAKER_REDIS_PASSWORD")
	if raw := os.Getenv("LPMAKER_REDIS_ENABLED"); raw != "" {
		if enabled, err := strconv.ParseBool(raw); err == nil {
			cfg.Redis.Enabled = enabled
		}
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Symbols lists the configured pair symbols in order.
func (c *Config) Symbols() []string {
	out := make([]string, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		out = append(out, p.Symbol)
	}
	return out
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Execution.Mode {
	case ExecutionDry, ExecutionPaper, ExecutionLive:
	default:
		errs = append(errs, fmt.Errorf("execution: unknown mode %q", c.Execution.Mode))
	}
	if len(c.Pairs) == 0 && !c.Exchange.Discovery.Enabled {
		errs = append(errs, errors.New("pairs: at least one pair required unless discovery is enabled"))
	}
	seen := make(map[string]bool, len(c.Pairs))
	for i, p := range c.Pairs {
		if strings.TrimSpace(p.Symbol) == "" {
			errs = append(errs, fmt.Errorf("pairs[%d]: symbol required", i))
			continue
		}
		if seen[p.Symbol] {
			errs = append(errs, fmt.Errorf("pairs[%d]: duplicate symbol %q", i, p.Symbol))
		}
		seen[p.Symbol] = true
		if !validMode(p.Mode) {
			errs = append(errs, fmt.Errorf("pairs[%d]: unknown mode %q", i, p.Mode))
		}
	}
	if err := c.Trading.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Components.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Execution.Mode == ExecutionPaper && c.Paper.StartingCash <= 0 {
		errs = append(errs, errors.New("paper: starting_cash must be positive"))
	}
	if c.Execution.Mode == ExecutionLive && strings.TrimSpace(c.Dex.BuilderBase) == "" {
		errs = append(errs, errors.New("dex: builder_base required for live execution"))
	}
	if c.Redis.Enabled && strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("redis: addr required when enabled"))
	}
	return errors.Join(errs...)
}

func validMode(raw string) bool {
	_, ok := strategy.LookupMode(raw)
	return ok
}
