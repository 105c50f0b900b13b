// Package config resolves client settings from the environment, an optional
// .env file and the JSON config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "DREAMINA"
	DefaultFile    = ".dreamina.json"
	DefaultBaseURL = "https://jimeng.jianying.com"

	KeyCookie         = "cookie"
	KeyBaseURL        = "base_url"
	KeyPPEEnv         = "ppe_env"
	KeyAppID          = "app_id"
	KeyAgentScene     = "agent_scene"
	KeyRequestTimeout = "request_timeout"
	KeyAPIRateLimit   = "api_rate_limit"
	KeyLogLevel       = "log_level"
	KeyLogJSON        = "log_json"
	KeyLogDir         = "log_dir"
	KeyHistoryDriver  = "history_driver"
	KeyHistoryDSN     = "history_dsn"
	KeyListenAddr     = "listen_addr"
	KeyGatewayRPS     = "gateway_rps"
	KeyGatewayBurst   = "gateway_burst"
	KeyTracing        = "tracing_enabled"
	KeyOTLPEndpoint   = "otlp_endpoint"
	KeyCAFile         = "ca_file"
	KeyTLSCert        = "tls_cert"
	KeyTLSKey         = "tls_key"
	KeyAPIKeyHashes   = "gateway_api_key_hashes"
)

// Config is an explicit value built once at startup and passed down. There
// is no package-level state.
type Config struct {
	Cookie         string        `mapstructure:"cookie"`
	BaseURL        string        `mapstructure:"base_url"`
	PPEEnv         string        `mapstructure:"ppe_env"`
	AppID          string        `mapstructure:"app_id"`
	AgentScene     string        `mapstructure:"agent_scene"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// APIRateLimit caps outgoing calls per second per operation; 0 disables.
	APIRateLimit float64 `mapstructure:"api_rate_limit"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
	LogDir   string `mapstructure:"log_dir"`

	HistoryDriver string `mapstructure:"history_driver"` // sqlite, postgres, memory or none
	HistoryDSN    string `mapstructure:"history_dsn"`

	ListenAddr   string  `mapstructure:"listen_addr"`
	GatewayRPS   float64 `mapstructure:"gateway_rps"`
	GatewayBurst int     `mapstructure:"gateway_burst"`
	TLSCert      string  `mapstructure:"tls_cert"`
	TLSKey       string  `mapstructure:"tls_key"`

	// APIKeyHashes are bcrypt hashes of keys accepted by the gateway.
	APIKeyHashes []string `mapstructure:"gateway_api_key_hashes"`

	// CAFile adds trusted roots for the outbound API client.
	CAFile string `mapstructure:"ca_file"`

	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`

	path string
	v    *viper.Viper
}

// DefaultPath is ~/.dreamina.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultFile
	}
	return filepath.Join(home, DefaultFile)
}

func defaultHistoryDSN() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".dreamina", "history.db")
	}
	return filepath.Join(home, ".dreamina", "history.db")
}

// Load builds a Config. cfgFile overrides the default file location. A
// missing file is not an error; an unreadable explicit file is.
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	explicit := cfgFile != ""
	path := cfgFile
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil && explicit {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else if explicit && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Cookie = strings.TrimSpace(cfg.Cookie)
	cfg.path = path
	cfg.v = v
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Registered so AutomaticEnv is consulted during Unmarshal.
	v.SetDefault(KeyCookie, "")
	v.SetDefault(KeyBaseURL, DefaultBaseURL)
	v.SetDefault(KeyPPEEnv, "ppe_upload_image_api")
	v.SetDefault(KeyAppID, "513695")
	v.SetDefault(KeyAgentScene, "infinite_canvas")
	v.SetDefault(KeyRequestTimeout, 30*time.Second)
	v.SetDefault(KeyAPIRateLimit, 0)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogJSON, false)
	v.SetDefault(KeyLogDir, "")
	v.SetDefault(KeyHistoryDriver, "sqlite")
	v.SetDefault(KeyHistoryDSN, defaultHistoryDSN())
	v.SetDefault(KeyListenAddr, "127.0.0.1:8088")
	v.SetDefault(KeyGatewayRPS, 5)
	v.SetDefault(KeyGatewayBurst, 10)
	v.SetDefault(KeyTracing, false)
	v.SetDefault(KeyOTLPEndpoint, "localhost:4318")
	v.SetDefault(KeyCAFile, "")
	v.SetDefault(KeyTLSCert, "")
	v.SetDefault(KeyTLSKey, "")
	v.SetDefault(KeyAPIKeyHashes, []string{})
}

// Path returns the config file this value was resolved against.
func (c *Config) Path() string { return c.path }

// Viper exposes the underlying instance for flag binding.
func (c *Config) Viper() *viper.Viper { return c.v }

// HasCookie reports whether a cookie was found anywhere.
func (c *Config) HasCookie() bool { return c.Cookie != "" }

// CookieSource names where the cookie came from.
func (c *Config) CookieSource() string {
	switch {
	case c.Cookie == "":
		return "unset"
	case os.Getenv(EnvPrefix+"_COOKIE") != "":
		return "env"
	default:
		return "file"
	}
}

// MaskedCookie shows only the ends of the cookie.
func (c *Config) MaskedCookie() string {
	return Mask(c.Cookie)
}

// Mask hides all but the first and last four characters of s.
func Mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 12 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", 8) + s[len(s)-4:]
}

// Settable lists the keys `config set` accepts.
var Settable = []string{
	KeyCookie, KeyBaseURL, KeyPPEEnv, KeyAppID, KeyAgentScene, KeyRequestTimeout,
	KeyAPIRateLimit, KeyLogLevel, KeyLogJSON, KeyLogDir, KeyHistoryDriver,
	KeyHistoryDSN, KeyListenAddr, KeyGatewayRPS, KeyGatewayBurst, KeyTracing,
	KeyOTLPEndpoint, KeyCAFile, KeyTLSCert, KeyTLSKey, KeyAPIKeyHashes,
}

// IsSettable reports whether key may be written by Save.
func IsSettable(key string) bool {
	for _, k := range Settable {
		if k == key {
			return true
		}
	}
	return false
}

// Save merges updates into the JSON file at path, keeping keys it does not
// touch. Only values read from the file are written back; environment and
// defaults never leak into it. The file is created with mode 0600.
func Save(path string, updates map[string]any) error {
	if path == "" {
		path = DefaultPath()
	}
	for k := range updates {
		if !IsSettable(k) {
			return fmt.Errorf("unknown config key %q", k)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", path, err)
		}
	}
	for k, val := range updates {
		v.Set(k, val)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}
