package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log        LoggingConfig    `yaml:"log"`
	REST       RESTConfig       `yaml:"rest"`
	WS         WSConfig         `yaml:"ws"`
	Store      StoreConfig      `yaml:"store"`
	Timescale  TimescaleConfig  `yaml:"timescale"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Engine     EngineConfig     `yaml:"engine"`
	Risk       RiskConfig       `yaml:"risk"`
	Strategies StrategiesConfig `yaml:"strategies"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Telegram   TelegramConfig   `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxRetries        int           `yaml:"max_retries"`
}

type WSConfig struct {
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	EventBuffer    int           `yaml:"event_buffer"`
}

type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type EngineConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	KillSwitchCooldown time.Duration `yaml:"kill_switch_cooldown"`
	Strategies         []string      `yaml:"strategies"`
	MinScanVolume      int           `yaml:"min_scan_volume"`
	RequireLiquidity   bool          `yaml:"require_liquidity"`
}

type RiskConfig struct {
	MaxPositionPerMarket int     `yaml:"max_position_per_market"`
	MaxTotalExposure     int     `yaml:"max_total_exposure"`
	MaxDailyLoss         float64 `yaml:"max_daily_loss"`
}

type StrategiesConfig struct {
	NaiveValue  NaiveValueConfig  `yaml:"naive_value"`
	MarketMaker MarketMakerConfig `yaml:"market_maker"`
	Arbitrage   ArbitrageConfig   `yaml:"arbitrage"`
	SignalBased SignalBasedConfig `yaml:"signal_based"`
}

type NaiveValueConfig struct {
	ThresholdCents int `yaml:"threshold_cents"`
	Quantity       int `yaml:"quantity"`
	MinSpread      int `yaml:"min_spread"`
	MaxSpread      int `yaml:"max_spread"`
	MinVolume      int `yaml:"min_volume"`
}

type MarketMakerConfig struct {
	HalfSpread      int     `yaml:"half_spread"`
	Quantity        int     `yaml:"quantity"`
	MinSpread       int     `yaml:"min_spread"`
	MaxInventory    int     `yaml:"max_inventory"`
	MinVolume       int     `yaml:"min_volume"`
	SkewPerContract float64 `yaml:"skew_per_contract"`
}

type ArbitrageConfig struct {
	MinEdgeCents int `yaml:"min_edge_cents"`
	Quantity     int `yaml:"quantity"`
}

type SignalBasedConfig struct {
	ThresholdCents int     `yaml:"threshold_cents"`
	Quantity       int     `yaml:"quantity"`
	MinConfidence  float64 `yaml:"min_confidence"`
}

type BacktestConfig struct {
	StartingBalance float64 `yaml:"starting_balance"`
	SlippageCents   int     `yaml:"slippage_cents"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = "https://demo-api.kalshi.co/trade-api/v2"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 30 * time.Second
	}
	if cfg.REST.RequestsPerSecond == 0 {
		cfg.REST.RequestsPerSecond = 8
	}
	if cfg.REST.MaxRetries == 0 {
		cfg.REST.MaxRetries = 3
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = "wss://demo-api.kalshi.co/trade-api/ws/v2"
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 10 * time.Second
	}
	if cfg.WS.EventBuffer == 0 {
		cfg.WS.EventBuffer = 256
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "data/pm-trade-bot.db"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9186"
	}
	if cfg.Engine.PollInterval == 0 {
		cfg.Engine.PollInterval = 15 * time.Second
	}
	if cfg.Engine.KillSwitchCooldown == 0 {
		cfg.Engine.KillSwitchCooldown = time.Minute
	}
	if len(cfg.Engine.Strategies) == 0 {
		cfg.Engine.Strategies = []string{"naive_value"}
	}
	if cfg.Risk.MaxPositionPerMarket == 0 {
		cfg.Risk.MaxPositionPerMarket = 100
	}
	if cfg.Risk.MaxTotalExposure == 0 {
		cfg.Risk.MaxTotalExposure = 1000
	}
	if cfg.Risk.MaxDailyLoss == 0 {
		cfg.Risk.MaxDailyLoss = 500
	}
	applyStrategyDefaults(&cfg.Strategies)
	if cfg.Backtest.StartingBalance == 0 {
		cfg.Backtest.StartingBalance = 10_000
	}
	if cfg.Backtest.SlippageCents == 0 {
		cfg.Backtest.SlippageCents = 1
	}
}

func applyStrategyDefaults(cfg *StrategiesConfig) {
	if cfg.NaiveValue.ThresholdCents == 0 {
		cfg.NaiveValue.ThresholdCents = 5
	}
	if cfg.NaiveValue.Quantity == 0 {
		cfg.NaiveValue.Quantity = 1
	}
	if cfg.NaiveValue.MinSpread == 0 {
		cfg.NaiveValue.MinSpread = 2
	}
	if cfg.NaiveValue.MaxSpread == 0 {
		cfg.NaiveValue.MaxSpread = 30
	}
	if cfg.NaiveValue.MinVolume == 0 {
		cfg.NaiveValue.MinVolume = 10
	}
	if cfg.MarketMaker.HalfSpread == 0 {
		cfg.MarketMaker.HalfSpread = 3
	}
	if cfg.MarketMaker.Quantity == 0 {
		cfg.MarketMaker.Quantity = 1
	}
	if cfg.MarketMaker.MinSpread == 0 {
		cfg.MarketMaker.MinSpread = 4
	}
	if cfg.MarketMaker.MaxInventory == 0 {
		cfg.MarketMaker.MaxInventory = 20
	}
	if cfg.MarketMaker.MinVolume == 0 {
		cfg.MarketMaker.MinVolume = 50
	}
	if cfg.MarketMaker.SkewPerContract == 0 {
		cfg.MarketMaker.SkewPerContract = 0.5
	}
	if cfg.Arbitrage.MinEdgeCents == 0 {
		cfg.Arbitrage.MinEdgeCents = 3
	}
	if cfg.Arbitrage.Quantity == 0 {
		cfg.Arbitrage.Quantity = 1
	}
	if cfg.SignalBased.ThresholdCents == 0 {
		cfg.SignalBased.ThresholdCents = 5
	}
	if cfg.SignalBased.Quantity == 0 {
		cfg.SignalBased.Quantity = 1
	}
	if cfg.SignalBased.MinConfidence == 0 {
		cfg.SignalBased.MinConfidence = 0.3
	}
}

func validate(cfg *Config) error {
	if cfg.Risk.MaxPositionPerMarket <= 0 {
		return errors.New("risk.max_position_per_market must be > 0")
	}
	if cfg.Risk.MaxTotalExposure <= 0 {
		return errors.New("risk.max_total_exposure must be > 0")
	}
	if cfg.Risk.MaxDailyLoss <= 0 {
		return errors.New("risk.max_daily_loss must be > 0")
	}
	if cfg.Timescale.Enabled && cfg.Timescale.DSN == "" {
		return errors.New("timescale.dsn is required when timescale.enabled")
	}
	if cfg.Backtest.StartingBalance <= 0 {
		return errors.New("backtest.starting_balance must be > 0")
	}
	return nil
}
