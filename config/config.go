package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/valutatrade/internal/storage/atomicfile"
)

const (
	SourceCoinGecko    = "coingecko"
	SourceExchangeRate = "exchangerate"
	SourceBinance      = "binance"
	SourceBybit        = "bybit"
	SourceHyperliquid  = "hyperliquid"
)

var knownSources = map[string]bool{
	SourceCoinGecko:    true,
	SourceExchangeRate: true,
	SourceBinance:      true,
	SourceBybit:        true,
	SourceHyperliquid:  true,
}

const (
	defaultDataDir      = "./data"
	defaultRatesFile    = "rates.json"
	defaultUsersFile    = "users.json"
	defaultJournalDir   = "journal"
	defaultRatesTTL     = 5 * time.Minute
	defaultFetchTimeout = 10 * time.Second
	defaultFetchRetries = 2
	defaultBaseCurrency = "USD"
	defaultLogLevel     = "info"
)

type Config struct {
	DataDir      string
	RatesFile    string
	UsersFile    string
	JournalDir   string
	RatesTTL     time.Duration
	FetchTimeout time.Duration
	FetchRetries int
	BaseCurrency string
	Sources      []SourceConfig
	MetricsAddr  string
	LogLevel     string
	LogFile      string
	Secrets      Secrets
}

// SourceConfig enables one rate provider. Symbols are base currency codes
// quoted against Quote.
type SourceConfig struct {
	Name    string
	Enabled bool
	Symbols []string
	Quote   string
	URL     string
}

// Secrets never live in the yaml file.
type Secrets struct {
	ExchangeRateAPIKey    string `env:"EXCHANGERATE_API_KEY"`
	HyperliquidPrivateKey string `env:"HYPERLIQUID_PRIVATE_KEY"`
	BinanceAPIKey         string `env:"BINANCE_API_KEY"`
	BinanceAPISecret      string `env:"BINANCE_API_SECRET"`
	BybitAPIKey           string `env:"BYBIT_API_KEY"`
	BybitAPISecret        string `env:"BYBIT_API_SECRET"`
}

// envOverrides take precedence over the yaml file.
type envOverrides struct {
	DataDir     string `env:"VALUTATRADE_DATA_DIR"`
	LogLevel    string `env:"VALUTATRADE_LOG_LEVEL"`
	LogFile     string `env:"VALUTATRADE_LOG_FILE"`
	MetricsAddr string `env:"VALUTATRADE_METRICS_ADDR"`
}

type ConfigTmp struct {
	DataDir         string            `yaml:"data_dir,omitempty"`
	RatesFile       string            `yaml:"rates_file,omitempty"`
	UsersFile       string            `yaml:"users_file,omitempty"`
	JournalDir      string            `yaml:"journal_dir,omitempty"`
	RatesTTLStr     string            `yaml:"rates_ttl,omitempty"`
	FetchTimeoutStr string            `yaml:"fetch_timeout,omitempty"`
	FetchRetries    *int              `yaml:"fetch_retries,omitempty"`
	BaseCurrency    string            `yaml:"base_currency,omitempty"`
	Sources         []SourceConfigTmp `yaml:"sources,omitempty"`
	MetricsAddr     string            `yaml:"metrics_addr,omitempty"`
	LogLevel        string            `yaml:"log_level,omitempty"`
	LogFile         string            `yaml:"log_file,omitempty"`
}

type SourceConfigTmp struct {
	Name    string   `yaml:"name"`
	Enabled *bool    `yaml:"enabled,omitempty"`
	Symbols []string `yaml:"symbols,omitempty"`
	Quote   string   `yaml:"quote,omitempty"`
	URL     string   `yaml:"url,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DataDir:      defaultDataDir,
		RatesFile:    defaultRatesFile,
		UsersFile:    defaultUsersFile,
		JournalDir:   defaultJournalDir,
		RatesTTL:     defaultRatesTTL,
		FetchTimeout: defaultFetchTimeout,
		FetchRetries: defaultFetchRetries,
		BaseCurrency: defaultBaseCurrency,
		Sources:      DefaultSources(),
		LogLevel:     defaultLogLevel,
	}
}

func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Name: SourceCoinGecko, Enabled: true, Symbols: []string{"BTC", "ETH", "SOL"}, Quote: "USD"},
		{Name: SourceExchangeRate, Enabled: true, Symbols: []string{"EUR", "GBP", "RUB", "CNY", "JPY"}, Quote: "USD"},
		{Name: SourceBinance, Enabled: false, Symbols: []string{"BTC", "ETH", "SOL"}, Quote: "USDT"},
		{Name: SourceBybit, Enabled: false, Symbols: []string{"BTC", "ETH", "SOL"}, Quote: "USDT"},
		{Name: SourceHyperliquid, Enabled: true, Symbols: []string{"BTC", "ETH", "SOL"}, Quote: "USD"},
	}
}

// Load reads path (a missing file yields defaults), loads secrets from envFile
// and the process environment, then applies VALUTATRADE_* overrides.
func Load(path, envFile string) (Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, errors.Wrapf(err, "failed to load env file %s", envFile)
			}
		}
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, errors.Wrapf(err, "failed to read config %s", path)
		default:
			cfg, err = parse(raw)
			if err != nil {
				return Config{}, errors.Wrapf(err, "invalid config %s", path)
			}
		}
	}

	var overrides envOverrides
	if err := cleanenv.ReadEnv(&overrides); err != nil {
		return Config{}, errors.Wrap(err, "failed to read environment")
	}
	cfg.applyOverrides(overrides)

	if err := cleanenv.ReadEnv(&cfg.Secrets); err != nil {
		return Config{}, errors.Wrap(err, "failed to read secrets")
	}
	cfg.gateSources()

	return cfg, cfg.Validate()
}

func parse(raw []byte) (Config, error) {
	var tmp ConfigTmp
	if err := yaml.Unmarshal(raw, &tmp); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if tmp.DataDir != "" {
		cfg.DataDir = tmp.DataDir
	}
	if tmp.RatesFile != "" {
		cfg.RatesFile = tmp.RatesFile
	}
	if tmp.UsersFile != "" {
		cfg.UsersFile = tmp.UsersFile
	}
	if tmp.JournalDir != "" {
		cfg.JournalDir = tmp.JournalDir
	}
	if tmp.RatesTTLStr != "" {
		ttl, err := time.ParseDuration(tmp.RatesTTLStr)
		if err != nil {
			return Config{}, errors.Wrapf(err, "incorrect 'rates_ttl' param (correct format is 5m)")
		}
		cfg.RatesTTL = ttl
	}
	if tmp.FetchTimeoutStr != "" {
		timeout, err := time.ParseDuration(tmp.FetchTimeoutStr)
		if err != nil {
			return Config{}, errors.Wrapf(err, "incorrect 'fetch_timeout' param (correct format is 10s)")
		}
		cfg.FetchTimeout = timeout
	}
	if tmp.FetchRetries != nil {
		cfg.FetchRetries = *tmp.FetchRetries
	}
	if tmp.BaseCurrency != "" {
		cfg.BaseCurrency = strings.ToUpper(strings.TrimSpace(tmp.BaseCurrency))
	}
	if tmp.MetricsAddr != "" {
		cfg.MetricsAddr = tmp.MetricsAddr
	}
	if tmp.LogLevel != "" {
		cfg.LogLevel = tmp.LogLevel
	}
	if tmp.LogFile != "" {
		cfg.LogFile = tmp.LogFile
	}

	if len(tmp.Sources) > 0 {
		cfg.Sources = mergeSources(tmp.Sources)
	}

	return cfg, nil
}

// mergeSources layers configured entries over the defaults of the same name.
func mergeSources(configured []SourceConfigTmp) []SourceConfig {
	defaults := make(map[string]SourceConfig)
	for _, s := range DefaultSources() {
		defaults[s.Name] = s
	}

	out := make([]SourceConfig, 0, len(configured))
	for _, c := range configured {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		sc, ok := defaults[name]
		if !ok {
			sc = SourceConfig{Name: name, Enabled: true}
		}
		sc.Enabled = c.Enabled == nil || *c.Enabled
		if len(c.Symbols) > 0 {
			sc.Symbols = make([]string, 0, len(c.Symbols))
			for _, sym := range c.Symbols {
				sc.Symbols = append(sc.Symbols, strings.ToUpper(strings.TrimSpace(sym)))
			}
		}
		if c.Quote != "" {
			sc.Quote = strings.ToUpper(strings.TrimSpace(c.Quote))
		}
		if c.URL != "" {
			sc.URL = c.URL
		}
		out = append(out, sc)
	}

	return out
}

func (c *Config) applyOverrides(o envOverrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.LogFile != "" {
		c.LogFile = o.LogFile
	}
	if o.MetricsAddr != "" {
		c.MetricsAddr = o.MetricsAddr
	}
}

// gateSources disables providers whose credentials are missing.
func (c *Config) gateSources() {
	for i := range c.Sources {
		if c.Sources[i].Name == SourceHyperliquid && c.Secrets.HyperliquidPrivateKey == "" {
			c.Sources[i].Enabled = false
		}
	}
}

// Validate checks value ranges and source names.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("'data_dir' must not be empty")
	}
	if c.RatesTTL < 0 {
		return errors.Errorf("'rates_ttl' must not be negative, got %s", c.RatesTTL)
	}
	if c.FetchTimeout <= 0 {
		return errors.Errorf("'fetch_timeout' must be positive, got %s", c.FetchTimeout)
	}
	if c.FetchRetries < 0 {
		return errors.Errorf("'fetch_retries' must not be negative, got %d", c.FetchRetries)
	}
	if c.BaseCurrency == "" {
		return errors.New("'base_currency' must not be empty")
	}

	seen := make(map[string]bool)
	for _, s := range c.Sources {
		if !knownSources[s.Name] {
			return errors.Errorf("unknown rate source '%s'", s.Name)
		}
		if seen[s.Name] {
			return errors.Errorf("rate source '%s' configured twice", s.Name)
		}
		seen[s.Name] = true
		if s.Enabled && len(s.Symbols) == 0 {
			return errors.Errorf("rate source '%s' has no symbols", s.Name)
		}
	}

	return nil
}

// EnabledSources returns the sources that should be constructed.
func (c Config) EnabledSources() []SourceConfig {
	var out []SourceConfig
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

func (c Config) RatesPath() string   { return c.resolve(c.RatesFile) }
func (c Config) UsersPath() string   { return c.resolve(c.UsersFile) }
func (c Config) JournalPath() string { return c.resolve(c.JournalDir) }

func (c Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// Save writes cfg to path as yaml. Secrets are not written.
func Save(path string, cfg Config) error {
	tmp := ConfigTmp{
		DataDir:         cfg.DataDir,
		RatesFile:       cfg.RatesFile,
		UsersFile:       cfg.UsersFile,
		JournalDir:      cfg.JournalDir,
		RatesTTLStr:     cfg.RatesTTL.String(),
		FetchTimeoutStr: cfg.FetchTimeout.String(),
		FetchRetries:    &cfg.FetchRetries,
		BaseCurrency:    cfg.BaseCurrency,
		MetricsAddr:     cfg.MetricsAddr,
		LogLevel:        cfg.LogLevel,
		LogFile:         cfg.LogFile,
	}
	for _, s := range cfg.Sources {
		enabled := s.Enabled
		tmp.Sources = append(tmp.Sources, SourceConfigTmp{
			Name:    s.Name,
			Enabled: &enabled,
			Symbols: s.Symbols,
			Quote:   s.Quote,
			URL:     s.URL,
		})
	}

	data, err := yaml.Marshal(&tmp)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	return atomicfile.WriteFile(path, data, 0o644)
}
