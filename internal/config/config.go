package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/julienbonastre/order-profit/internal/countries"
	"github.com/julienbonastre/order-profit/internal/currency"
	"github.com/julienbonastre/order-profit/internal/products"
)

const (
	defaultDBPath       = "order-profit.db"
	defaultServerAddr   = ":8080"
	defaultOrderType    = 1
	defaultLookbackDays = 1
	defaultLogLevel     = "info"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	CCAPI     CCAPIConfig     `yaml:"ccapi"`
	Rates     RatesConfig     `yaml:"rates"`
	Countries CountriesConfig `yaml:"countries"`
	Database  DatabaseConfig  `yaml:"database"`
	Batch     BatchConfig     `yaml:"batch"`
	Server    ServerConfig    `yaml:"server"`
	LogLevel  string          `yaml:"logLevel"`
}

// CCAPIConfig holds the commerce platform connection.
type CCAPIConfig struct {
	BaseURL      string   `yaml:"baseURL"`
	TokenURL     string   `yaml:"tokenURL"`
	ClientID     string   `yaml:"clientID"`
	ClientSecret string   `yaml:"clientSecret"`
	Scopes       []string `yaml:"scopes"`
}

// RatesConfig selects where exchange rates come from. When Static is set
// no rate API is called.
type RatesConfig struct {
	BaseURL string            `yaml:"baseURL"`
	Static  map[string]string `yaml:"static"`
}

// CountriesConfig optionally replaces the embedded country table.
type CountriesConfig struct {
	Path string `yaml:"path"`
}

// DatabaseConfig locates the run history database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BatchConfig sets the default run selection and product retry policy.
type BatchConfig struct {
	OrderType     int           `yaml:"orderType"`
	LookbackDays  int           `yaml:"lookbackDays"`
	RetryAttempts int           `yaml:"retryAttempts"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Rates:    RatesConfig{BaseURL: currency.DefaultBaseURL},
		Database: DatabaseConfig{Path: defaultDBPath},
		Batch: BatchConfig{
			OrderType:     defaultOrderType,
			LookbackDays:  defaultLookbackDays,
			RetryAttempts: products.DefaultAttempts,
			RetryDelay:    products.DefaultDelay,
		},
		Server:   ServerConfig{Addr: defaultServerAddr},
		LogLevel: defaultLogLevel,
	}
}

// Load reads configuration from defaults, then the optional YAML file at
// path, then the process environment.
func Load(path string) (Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.CCAPI.BaseURL = stringWithDefault(lookup, "CCAPI_BASE_URL", cfg.CCAPI.BaseURL)
	cfg.CCAPI.TokenURL = stringWithDefault(lookup, "CCAPI_TOKEN_URL", cfg.CCAPI.TokenURL)
	cfg.CCAPI.ClientID = stringWithDefault(lookup, "CCAPI_CLIENT_ID", cfg.CCAPI.ClientID)
	cfg.CCAPI.ClientSecret = stringWithDefault(lookup, "CCAPI_CLIENT_SECRET", cfg.CCAPI.ClientSecret)
	cfg.Rates.BaseURL = stringWithDefault(lookup, "RATES_BASE_URL", cfg.Rates.BaseURL)
	cfg.Database.Path = stringWithDefault(lookup, "ORDER_PROFIT_DB", cfg.Database.Path)
	cfg.Countries.Path = stringWithDefault(lookup, "ORDER_PROFIT_COUNTRIES", cfg.Countries.Path)
	cfg.Batch.LookbackDays = intWithDefault(lookup, "ORDER_PROFIT_DAYS", cfg.Batch.LookbackDays)
	cfg.LogLevel = stringWithDefault(lookup, "LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

// Validate reports every missing or invalid field.
func (c Config) Validate() error {
	var missing []string

	if c.CCAPI.BaseURL == "" {
		missing = append(missing, "CCAPI.BaseURL")
	}
	if c.CCAPI.TokenURL == "" {
		missing = append(missing, "CCAPI.TokenURL")
	}
	if c.CCAPI.ClientID == "" {
		missing = append(missing, "CCAPI.ClientID")
	}
	if c.CCAPI.ClientSecret == "" {
		missing = append(missing, "CCAPI.ClientSecret")
	}
	if len(c.Rates.Static) == 0 && c.Rates.BaseURL == "" {
		missing = append(missing, "Rates.BaseURL")
	}
	if _, err := c.StaticRates(); err != nil {
		missing = append(missing, "Rates.Static")
	}
	if c.Batch.LookbackDays <= 0 {
		missing = append(missing, "Batch.LookbackDays")
	}
	if c.Batch.RetryAttempts <= 0 {
		missing = append(missing, "Batch.RetryAttempts")
	}
	if c.Batch.RetryDelay <= 0 {
		missing = append(missing, "Batch.RetryDelay")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

// StaticRates parses the configured fixed exchange rates. It returns nil
// when none are configured.
func (c Config) StaticRates() (countries.StaticRates, error) {
	if len(c.Rates.Static) == 0 {
		return nil, nil
	}
	rates := make(countries.StaticRates, len(c.Rates.Static))
	var errs []error
	for code, value := range c.Rates.Static {
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || !rate.IsPositive() {
			errs = append(errs, fmt.Errorf("invalid rate %q for %s", value, code))
			continue
		}
		rates[strings.ToUpper(code)] = rate
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rates, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
