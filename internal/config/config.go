package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"cotwatch/internal/calendar"
	"cotwatch/internal/logging"
	"cotwatch/internal/positions"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig                                 `mapstructure:"app"`
	Logging    logging.Config                            `mapstructure:"logging"`
	Database   DatabaseConfig                            `mapstructure:"database"`
	Scheduler  SchedulerConfig                           `mapstructure:"scheduler"`
	CFTC       CFTCConfig                                `mapstructure:"cftc"`
	Prices     PricesConfig                              `mapstructure:"prices"`
	Breaker    BreakerConfig                             `mapstructure:"breaker"`
	Warehouse  WarehouseConfig                           `mapstructure:"warehouse"`
	Engine     EngineConfig                              `mapstructure:"engine"`
	Exchanges  []ExchangeConfig                          `mapstructure:"exchanges"`
	Groups     []GroupConfig                             `mapstructure:"groups"`
	Schemas    map[positions.ReportKind]positions.Schema `mapstructure:"schemas"`
	Volatility VolatilityConfig                          `mapstructure:"volatility"`
	Alerting   AlertingConfig                            `mapstructure:"alerting"`
	Export     ExportConfig                              `mapstructure:"export"`
	Output     OutputConfig                              `mapstructure:"output"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates the optional PostgreSQL snapshot archive.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs when refresh runs fire.
type SchedulerConfig struct {
	Cron            string        `mapstructure:"cron"`
	Timezone        string        `mapstructure:"timezone"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// CFTCConfig covers the public reporting API.
type CFTCConfig struct {
	BaseURL        string                          `mapstructure:"base_url"`
	Datasets       map[positions.ReportKind]string `mapstructure:"datasets"`
	YearsBack      int                             `mapstructure:"years_back"`
	PageLimit      int                             `mapstructure:"page_limit"`
	AppToken       string                          `mapstructure:"app_token"`
	RequestTimeout time.Duration                   `mapstructure:"request_timeout"`
}

// PricesConfig covers the daily price providers.
type PricesConfig struct {
	YahooBaseURL   string        `mapstructure:"yahoo_base_url"`
	SinaBaseURL    string        `mapstructure:"sina_base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	Burst          int           `mapstructure:"burst"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// BreakerConfig tunes the circuit breaker wrapped around every provider.
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// WarehouseConfig describes the registered-stock endpoint.
type WarehouseConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	Label       string `mapstructure:"label"`
	TotalField  string `mapstructure:"total_field"`
	ChangeField string `mapstructure:"change_field"`
}

// EngineConfig parameterises the position, curve and spread computations.
type EngineConfig struct {
	Weeks              int           `mapstructure:"weeks"`
	CurveMonths        int           `mapstructure:"curve_months"`
	CurveLookback      time.Duration `mapstructure:"curve_lookback"`
	SpreadStart        string        `mapstructure:"spread_start"`
	SpreadYearsForward int           `mapstructure:"spread_years_forward"`
	SpreadGrace        time.Duration `mapstructure:"spread_grace"`
	SpreadWeekday      string        `mapstructure:"spread_weekday"`
	Workers            int           `mapstructure:"workers"`
}

// ExchangeConfig selects a tracked futures product.
type ExchangeConfig struct {
	Key       string `mapstructure:"key"`
	Exchange  string `mapstructure:"exchange"`
	Root      string `mapstructure:"root"`
	Suffix    string `mapstructure:"suffix"`
	Source    string `mapstructure:"source"`
	Unit      string `mapstructure:"unit"`
	Precision int32  `mapstructure:"precision"`
}

// GroupConfig binds a set of instruments to one report kind.
type GroupConfig struct {
	Key         string               `mapstructure:"key"`
	ListKey     string               `mapstructure:"list_key"`
	Kind        positions.ReportKind `mapstructure:"kind"`
	Required    bool                 `mapstructure:"required"`
	Instruments []InstrumentConfig   `mapstructure:"instruments"`
}

// InstrumentConfig maps a code to display names and a market-name pattern.
type InstrumentConfig struct {
	Code    string `mapstructure:"code"`
	Name    string `mapstructure:"name"`
	NameEN  string `mapstructure:"name_en"`
	Pattern string `mapstructure:"pattern"`
}

// VolatilityConfig covers the weekly volatility index series.
type VolatilityConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	IndexTicker  string `mapstructure:"index_ticker"`
	VolumeTicker string `mapstructure:"volume_ticker"`
	StartDate    string `mapstructure:"start_date"`
	Weekday      string `mapstructure:"weekday"`
}

// AlertingConfig defines positioning-shift thresholds and routing.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	ThresholdPct float64        `mapstructure:"threshold_pct"`
	Channels     []string       `mapstructure:"channels"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// OutputConfig locates the persisted snapshot document.
type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("COTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Groups) == 0 {
		cfg.Groups = DefaultGroups()
	}
	if len(cfg.Exchanges) == 0 {
		cfg.Exchanges = DefaultExchanges()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cotwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)

	// CFTC publishes on Friday afternoons US Eastern.
	v.SetDefault("scheduler.cron", "30 16 * * FRI")
	v.SetDefault("scheduler.timezone", "America/New_York")
	v.SetDefault("scheduler.run_on_start", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x636f7477))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("cftc.base_url", "https://publicreporting.cftc.gov")
	v.SetDefault("cftc.datasets", map[string]string{
		string(positions.Disaggregated): "kh3c-gbw2",
		string(positions.TFF):           "yw9f-hn96",
		string(positions.Legacy):        "jun7-fc8e",
	})
	v.SetDefault("cftc.years_back", 3)
	v.SetDefault("cftc.page_limit", 50000)
	v.SetDefault("cftc.request_timeout", "60s")

	v.SetDefault("prices.yahoo_base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("prices.sina_base_url", "https://stock2.finance.sina.com.cn")
	v.SetDefault("prices.request_timeout", "15s")
	v.SetDefault("prices.rate_limit", 2.0)
	v.SetDefault("prices.burst", 2)
	v.SetDefault("prices.user_agent", "Mozilla/5.0 (compatible; cotwatch/1.0)")

	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.interval", "60s")
	v.SetDefault("breaker.timeout", "30s")
	v.SetDefault("breaker.min_requests", 5)
	v.SetDefault("breaker.failure_ratio", 0.6)

	v.SetDefault("warehouse.enabled", false)
	v.SetDefault("warehouse.label", "铜")
	v.SetDefault("warehouse.total_field", "total")
	v.SetDefault("warehouse.change_field", "change")

	v.SetDefault("engine.weeks", 156)
	v.SetDefault("engine.curve_months", 12)
	v.SetDefault("engine.curve_lookback", "168h")
	v.SetDefault("engine.spread_start", "2023-01-01")
	v.SetDefault("engine.spread_years_forward", 3)
	v.SetDefault("engine.spread_grace", "240h")
	v.SetDefault("engine.spread_weekday", "fri")
	v.SetDefault("engine.workers", 4)

	v.SetDefault("volatility.enabled", true)
	v.SetDefault("volatility.index_ticker", "^GVZ")
	v.SetDefault("volatility.volume_ticker", "GLD")
	v.SetDefault("volatility.start_date", "2023-01-01")
	v.SetDefault("volatility.weekday", "tue")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.threshold_pct", 5.0)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 10000)

	v.SetDefault("output.path", "data/cot_data.json")

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Engine.Weeks <= 0 {
		return fmt.Errorf("engine.weeks must be greater than zero")
	}
	if c.Engine.CurveMonths <= 0 {
		return fmt.Errorf("engine.curve_months must be greater than zero")
	}
	if c.Engine.SpreadYearsForward <= 0 {
		return fmt.Errorf("engine.spread_years_forward must be greater than zero")
	}
	if _, err := c.SpreadStart(); err != nil {
		return err
	}
	if _, ok := calendar.ParseWeekday(c.Engine.SpreadWeekday); !ok {
		return fmt.Errorf("engine.spread_weekday %q is not a weekday", c.Engine.SpreadWeekday)
	}
	if c.Volatility.Enabled {
		if _, err := time.Parse(calendar.DateLayout, c.Volatility.StartDate); err != nil {
			return fmt.Errorf("volatility.start_date: %w", err)
		}
		if _, ok := calendar.ParseWeekday(c.Volatility.Weekday); !ok {
			return fmt.Errorf("volatility.weekday %q is not a weekday", c.Volatility.Weekday)
		}
	}
	if c.CFTC.YearsBack < 0 {
		return fmt.Errorf("cftc.years_back cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path must be set")
	}
	if c.Alerting.ThresholdPct < 0 {
		return fmt.Errorf("alerting.threshold_pct cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Warehouse.Enabled && c.Warehouse.URL == "" {
		return fmt.Errorf("warehouse.url must be set when warehouse is enabled")
	}

	seen := make(map[string]bool)
	for _, ex := range c.Exchanges {
		if ex.Key == "" {
			return fmt.Errorf("exchanges: key is required")
		}
		if seen[ex.Key] {
			return fmt.Errorf("exchanges: duplicate key %q", ex.Key)
		}
		seen[ex.Key] = true
		if _, err := calendar.NewConvention(calendar.Exchange(strings.ToUpper(ex.Exchange)), ex.Root, ex.Suffix); err != nil {
			return fmt.Errorf("exchanges.%s: %w", ex.Key, err)
		}
		if ex.Precision < 0 {
			return fmt.Errorf("exchanges.%s: precision cannot be negative", ex.Key)
		}
	}

	docKeys := map[string]bool{"updated_at": true, "groups": true, "curves": true, "inventory": true, "gvz": true}
	for _, g := range c.Groups {
		if g.Key == "" {
			return fmt.Errorf("groups: key is required")
		}
		listKey := g.ListKey
		if listKey == "" {
			listKey = g.Key + "_list"
		}
		for _, k := range []string{g.Key, listKey} {
			if docKeys[k] {
				return fmt.Errorf("groups.%s: document key %q already in use", g.Key, k)
			}
			docKeys[k] = true
		}
		if _, err := c.Schema(g.Kind); err != nil {
			return fmt.Errorf("groups.%s: %w", g.Key, err)
		}
		for _, inst := range g.Instruments {
			if inst.Code == "" || inst.Pattern == "" {
				return fmt.Errorf("groups.%s: instrument code and pattern are required", g.Key)
			}
			if _, err := positions.CompileMarketPattern(inst.Pattern); err != nil {
				return fmt.Errorf("groups.%s.%s: %w", g.Key, inst.Code, err)
			}
		}
	}
	return nil
}

// Schema returns the configured column layout for kind, falling back to the built-in one.
func (c *Config) Schema(kind positions.ReportKind) (positions.Schema, error) {
	if s, ok := c.Schemas[kind]; ok {
		s.Kind = kind
		return s, nil
	}
	s, ok := positions.DefaultSchema(kind)
	if !ok {
		return positions.Schema{}, fmt.Errorf("unknown report kind %q", kind)
	}
	return s, nil
}

// SpreadStart parses engine.spread_start.
func (c *Config) SpreadStart() (time.Time, error) {
	t, err := time.Parse(calendar.DateLayout, c.Engine.SpreadStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("engine.spread_start: %w", err)
	}
	return t, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
