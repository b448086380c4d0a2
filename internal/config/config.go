package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"pricefeed/internal/logging"
)

// Token sources.
const (
	SourcePools     = "pools"
	SourceCoinGecko = "coingecko"
)

// Storage drivers.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig              `mapstructure:"app"`
	Logging    logging.Config         `mapstructure:"logging"`
	Storage    StorageConfig          `mapstructure:"storage"`
	Database   DatabaseConfig         `mapstructure:"database"`
	Redis      RedisConfig            `mapstructure:"redis"`
	Scheduler  SchedulerConfig        `mapstructure:"scheduler"`
	Chains     map[string]ChainConfig `mapstructure:"chains"`
	CoinGecko  CoinGeckoConfig        `mapstructure:"coingecko"`
	Tokens     []TokenConfig          `mapstructure:"tokens"`
	BondPrices BondPricesConfig       `mapstructure:"bond_prices"`
	Signing    SigningConfig          `mapstructure:"signing"`
	Alerting   AlertingConfig         `mapstructure:"alerting"`
	API        APIConfig              `mapstructure:"api"`
	Export     ExportConfig           `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StorageConfig selects where histories and feed values are kept.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig controls publication of the latest feed values.
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// SchedulerConfig governs sampling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Cron            string        `mapstructure:"cron"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// ChainConfig covers on-chain data access for one network.
type ChainConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CoinGeckoConfig captures the third-party price API.
type CoinGeckoConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// TokenConfig describes one priced token.
type TokenConfig struct {
	Symbol      string        `mapstructure:"symbol"`
	Source      string        `mapstructure:"source"`
	CoinGeckoID string        `mapstructure:"coingecko_id"`
	Window      time.Duration `mapstructure:"window"`
	Retention   time.Duration `mapstructure:"retention"`
	Decimals    *int32        `mapstructure:"decimals"`
	Sigma       float64       `mapstructure:"sigma"`
	Venues      []VenueConfig `mapstructure:"venues"`
}

// VenueConfig is one liquidity venue: a chain of pools ending in the quote currency.
type VenueConfig struct {
	Name           string      `mapstructure:"name"`
	Chain          string      `mapstructure:"chain"`
	WeightToken    string      `mapstructure:"weight_token"`
	WeightDecimals int32       `mapstructure:"weight_decimals"`
	Legs           []LegConfig `mapstructure:"legs"`
}

// LegConfig is a single Uniswap-V2 style pair.
type LegConfig struct {
	Pair      string `mapstructure:"pair"`
	Decimals0 int32  `mapstructure:"decimals0"`
	Decimals1 int32  `mapstructure:"decimals1"`
	Invert    bool   `mapstructure:"invert"`
}

// BondPricesConfig drives the plain price snapshot (no averaging).
type BondPricesConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	Key     string            `mapstructure:"key"`
	IDs     map[string]string `mapstructure:"ids"`
}

// SigningConfig drives EIP-712 attestations of published prices.
type SigningConfig struct {
	Enabled    bool               `mapstructure:"enabled"`
	PrivateKey string             `mapstructure:"private_key"`
	Deadline   time.Duration      `mapstructure:"deadline"`
	Verify     bool               `mapstructure:"verify"`
	Feeds      []SignedFeedConfig `mapstructure:"feeds"`
}

// SignedFeedConfig signs one token's price for a set of verifying contracts and
// stores the bundle under Key.
type SignedFeedConfig struct {
	Symbol    string                    `mapstructure:"symbol"`
	Key       string                    `mapstructure:"key"`
	Contracts []VerifyingContractConfig `mapstructure:"contracts"`
}

// VerifyingContractConfig is one contract that accepts signed prices.
type VerifyingContractConfig struct {
	Chain      string `mapstructure:"chain"`
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	TypeName   string `mapstructure:"type_name"`
	DomainName string `mapstructure:"domain_name"`
	Version    string `mapstructure:"version"`
}

// AlertingConfig defines error alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram alert parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// APIConfig configures the read-only feed server.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEFEED")
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
	cfg.applyTokenDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
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
	v.SetDefault("app.name", "pricefeed")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("storage.driver", StorageFile)
	v.SetDefault("storage.dir", "data")
	v.SetDefault("storage.prefix", "output/")

	v.SetDefault("scheduler.interval", "10m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70726963))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.request_timeout", "10s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "pricefeed:")
	v.SetDefault("redis.ttl", "0s")

	v.SetDefault("bond_prices.enabled", false)
	v.SetDefault("bond_prices.key", "bondPrices.json")

	v.SetDefault("signing.enabled", false)
	v.SetDefault("signing.private_key", "")
	v.SetDefault("signing.deadline", "1h")
	v.SetDefault("signing.verify", true)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen", ":8080")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
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

// Token defaults mirror the historical feed: a seven day window, 18 decimals, 3 sigma.
const (
	DefaultWindow   = 7 * 24 * time.Hour
	DefaultDecimals = 18
)

func (c *Config) applyTokenDefaults() {
	for i := range c.Signing.Feeds {
		f := &c.Signing.Feeds[i]
		f.Symbol = strings.ToLower(strings.TrimSpace(f.Symbol))
		for j := range f.Contracts {
			if f.Contracts[j].Version == "" {
				f.Contracts[j].Version = "1"
			}
		}
	}

	for i := range c.Tokens {
		t := &c.Tokens[i]
		t.Symbol = strings.ToLower(strings.TrimSpace(t.Symbol))
		if t.Source == "" {
			t.Source = SourcePools
		}
		if t.Window == 0 {
			t.Window = DefaultWindow
		}
		if t.Decimals == nil {
			decimals := int32(DefaultDecimals)
			t.Decimals = &decimals
		}
		for j := range t.Venues {
			venue := &t.Venues[j]
			if venue.WeightDecimals == 0 {
				venue.WeightDecimals = 18
			}
		}
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 && c.Scheduler.Cron == "" {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	switch c.Storage.Driver {
	case StorageFile:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the file driver")
		}
	case StoragePostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q not supported", c.Storage.Driver)
	}
	if len(c.Tokens) == 0 && !c.BondPrices.Enabled {
		return fmt.Errorf("at least one token must be configured")
	}

	seen := make(map[string]struct{}, len(c.Tokens))
	for _, t := range c.Tokens {
		if err := c.validateToken(t); err != nil {
			return err
		}
		if _, dup := seen[t.Symbol]; dup {
			return fmt.Errorf("tokens: duplicate symbol %q", t.Symbol)
		}
		seen[t.Symbol] = struct{}{}
	}

	if c.BondPrices.Enabled && len(c.BondPrices.IDs) == 0 {
		return fmt.Errorf("bond_prices.ids must not be empty when enabled")
	}
	if c.Signing.Enabled {
		if err := c.validateSigning(); err != nil {
			return err
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

func (c *Config) validateSigning() error {
	if c.Signing.PrivateKey == "" {
		return fmt.Errorf("signing.private_key is required when signing is enabled")
	}
	if len(c.Signing.Feeds) == 0 {
		return fmt.Errorf("signing.feeds must not be empty when enabled")
	}
	keys := make(map[string]struct{}, len(c.Signing.Feeds))
	for _, f := range c.Signing.Feeds {
		if _, ok := c.Token(f.Symbol); !ok {
			return fmt.Errorf("signing: token %q not configured", f.Symbol)
		}
		if f.Key == "" {
			return fmt.Errorf("signing.%s.key is required", f.Symbol)
		}
		if _, dup := keys[f.Key]; dup {
			return fmt.Errorf("signing: duplicate key %q", f.Key)
		}
		keys[f.Key] = struct{}{}
		if len(f.Contracts) == 0 {
			return fmt.Errorf("signing.%s.contracts must not be empty", f.Symbol)
		}
		for _, vc := range f.Contracts {
			chain, ok := c.Chains[vc.Chain]
			if !ok {
				return fmt.Errorf("signing.%s: chain %q not configured", f.Symbol, vc.Chain)
			}
			if chain.ChainID == 0 {
				return fmt.Errorf("chains.%s.chain_id is required for signing", vc.Chain)
			}
			if !common.IsHexAddress(vc.Address) || !common.IsHexAddress(vc.Token) {
				return fmt.Errorf("signing.%s: contract %q and token %q must be hex addresses", f.Symbol, vc.Address, vc.Token)
			}
			if vc.TypeName == "" || vc.DomainName == "" {
				return fmt.Errorf("signing.%s: contract %s needs type_name and domain_name", f.Symbol, vc.Address)
			}
		}
	}
	return nil
}

func (c *Config) validateToken(t TokenConfig) error {
	if t.Symbol == "" {
		return fmt.Errorf("tokens: symbol is required")
	}
	if t.Window < time.Second {
		return fmt.Errorf("tokens.%s.window must be at least one second", t.Symbol)
	}
	if t.Precision() < 0 {
		return fmt.Errorf("tokens.%s.decimals cannot be negative", t.Symbol)
	}
	if t.Sigma < 0 {
		return fmt.Errorf("tokens.%s.sigma cannot be negative", t.Symbol)
	}
	if t.Retention != 0 && t.Retention < t.Window {
		return fmt.Errorf("tokens.%s.retention must cover the window", t.Symbol)
	}

	switch t.Source {
	case SourceCoinGecko:
		if t.CoinGeckoID == "" {
			return fmt.Errorf("tokens.%s.coingecko_id is required", t.Symbol)
		}
	case SourcePools:
		if len(t.Venues) == 0 {
			return fmt.Errorf("tokens.%s.venues must not be empty", t.Symbol)
		}
		for _, v := range t.Venues {
			if _, ok := c.Chains[v.Chain]; !ok {
				return fmt.Errorf("tokens.%s: venue chain %q not configured", t.Symbol, v.Chain)
			}
			if len(v.Legs) == 0 {
				return fmt.Errorf("tokens.%s: venue %q has no legs", t.Symbol, v.Name)
			}
			if v.WeightToken == "" {
				return fmt.Errorf("tokens.%s: venue %q needs weight_token", t.Symbol, v.Name)
			}
		}
	default:
		return fmt.Errorf("tokens.%s.source %q not supported", t.Symbol, t.Source)
	}
	return nil
}

// Precision returns the configured decimals, or the default when unset.
func (t TokenConfig) Precision() int32 {
	if t.Decimals == nil {
		return DefaultDecimals
	}
	return *t.Decimals
}

// Token finds a token by symbol.
func (c *Config) Token(symbol string) (TokenConfig, bool) {
	symbol = strings.ToLower(symbol)
	for _, t := range c.Tokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return TokenConfig{}, false
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
