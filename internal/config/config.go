package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/vango-dev/datatable/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "datatable.json"

	// EnvPrefix prefixes every environment override (DATATABLE_SERVER_ADDR, ...).
	EnvPrefix = "DATATABLE"

	// DefaultAddr is the default listen address of the serve command.
	DefaultAddr = ":8080"

	// DefaultBaseKey is the default cache key namespace of a table.
	DefaultBaseKey = "server-table"

	// DefaultLimit is the default page size.
	DefaultLimit = 10
)

// DefaultPageSizeOptions are the page sizes offered to users.
var DefaultPageSizeOptions = []int{10, 20, 50, 100}

// Duration is a time.Duration that reads and writes "30s" style strings
// in JSON and environment variables.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("duration must be a string like \"30s\": %s", data)
		}
		*d = Duration(n)
		return nil
	}
	return d.Decode(s)
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config represents the complete datatable.json configuration.
type Config struct {
	// Server contains the serve command settings.
	Server ServerConfig `json:"server" split_words:"true"`

	// Backend describes the paginated API the table reads from.
	Backend BackendConfig `json:"backend" split_words:"true"`

	// Table contains table defaults.
	Table TableConfig `json:"table" split_words:"true"`

	// Query contains cache and retry settings.
	Query QueryConfig `json:"query" split_words:"true"`

	// Mock contains the bundled mock users API settings.
	Mock MockConfig `json:"mock" split_words:"true"`

	// Log contains logging settings.
	Log LogConfig `json:"log" split_words:"true"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr" split_words:"true" validate:"required"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `json:"shutdownTimeout" split_words:"true" validate:"gte=0"`
}

// BackendConfig describes the data source.
type BackendConfig struct {
	// URL is the paginated endpoint. Empty means the bundled mock API.
	URL string `json:"url,omitempty" split_words:"true" validate:"omitempty,url"`

	// FilterEncoding is "repeat" (role=a&role=b) or "comma" (role=a,b).
	FilterEncoding string `json:"filterEncoding" split_words:"true" validate:"oneof=repeat comma"`

	// Timeout is the per-request HTTP timeout.
	Timeout Duration `json:"timeout" split_words:"true" validate:"gte=0"`
}

// TableConfig contains table defaults.
type TableConfig struct {
	BaseKey         string   `json:"baseKey" split_words:"true" validate:"required"`
	DefaultLimit    int      `json:"defaultLimit" split_words:"true" validate:"gte=1"`
	PageSizeOptions []int    `json:"pageSizeOptions" split_words:"true" validate:"min=1,dive,gte=1"`
	SearchDebounce  Duration `json:"searchDebounce" split_words:"true" validate:"gte=0"`
}

// QueryConfig contains cache and retry settings.
type QueryConfig struct {
	StaleTime  Duration `json:"staleTime" split_words:"true" validate:"gte=0"`
	GCTime     Duration `json:"gcTime" split_words:"true" validate:"gte=0"`
	Retry      int      `json:"retry" split_words:"true" validate:"gte=0,lte=10"`
	RetryDelay Duration `json:"retryDelay" split_words:"true" validate:"gte=0"`

	// RedisAddr enables the shared Redis store when set.
	RedisAddr string `json:"redisAddr,omitempty" split_words:"true" validate:"omitempty,hostname_port"`
}

// MockConfig contains mock API settings.
type MockConfig struct {
	Users   int      `json:"users" split_words:"true" validate:"gte=0"`
	Seed    int64    `json:"seed" split_words:"true"`
	Latency Duration `json:"latency" split_words:"true" validate:"gte=0"`

	// RateLimit is the number of requests allowed per IP per minute. Zero disables limiting.
	RateLimit int `json:"rateLimit" split_words:"true" validate:"gte=0"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Format string `json:"format" split_words:"true" validate:"oneof=text json"`
	Level  string `json:"level" split_words:"true" validate:"oneof=debug info warn error"`
}

// New creates a new Config with default values.
func New() *Config {
	c := &Config{
		Query: QueryConfig{Retry: 2},
	}
	c.applyDefaults()
	return c
}

// Load reads configuration from the specified directory.
// It looks for datatable.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeConfigMissing).
				WithDetail("No " + ConfigFileName + " found at " + path).
				WithSuggestion("Run 'datatable serve' without --config to use defaults")
		}
		return nil, errors.New(errors.CodeConfigParse).Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New(errors.CodeConfigParse).
			WithDetail("Failed to parse " + path + ": " + err.Error()).
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Resolve loads path when given, else datatable.json in the working
// directory when present, else defaults. Environment overrides are
// applied and the result is validated.
func Resolve(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	switch {
	case path != "":
		cfg, err = LoadFile(path)
	case Exists("."):
		cfg, err = Load(".")
	default:
		cfg = New()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from DATATABLE_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return errors.New(errors.CodeConfigInvalid).
			WithDetail(err.Error()).
			WithSuggestion("Check the DATATABLE_* environment variables")
	}
	c.applyDefaults()
	return nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New(errors.CodeConfigParse).Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New(errors.CodeConfigParse).Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if c.Backend.FilterEncoding == "" {
		c.Backend.FilterEncoding = "repeat"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = Duration(15 * time.Second)
	}

	if c.Table.BaseKey == "" {
		c.Table.BaseKey = DefaultBaseKey
	}
	if c.Table.DefaultLimit == 0 {
		c.Table.DefaultLimit = DefaultLimit
	}
	if c.Table.PageSizeOptions == nil {
		c.Table.PageSizeOptions = append([]int(nil), DefaultPageSizeOptions...)
	}
	if c.Table.SearchDebounce == 0 {
		c.Table.SearchDebounce = Duration(300 * time.Millisecond)
	}

	if c.Query.StaleTime == 0 {
		c.Query.StaleTime = Duration(30 * time.Second)
	}
	if c.Query.GCTime == 0 {
		c.Query.GCTime = Duration(5 * time.Minute)
	}
	if c.Query.RetryDelay == 0 {
		c.Query.RetryDelay = Duration(time.Second)
	}

	if c.Mock.Users == 0 {
		c.Mock.Users = 100
	}
	if c.Mock.Seed == 0 {
		c.Mock.Seed = 1
	}

	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

var validate = validator.New()

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.New(errors.CodeConfigInvalid).Wrap(err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(errors.CodeConfigInvalid).
		WithDetail(strings.Join(msgs, "; ")).
		Wrap(err)
}

func fieldMessage(fe validator.FieldError) string {
	// Namespace is "Config.Table.DefaultLimit"; drop the root type.
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
