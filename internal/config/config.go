// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig              `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig             `mapstructure:"browser" yaml:"browser"`
	Engine    EngineConfig              `mapstructure:"engine" yaml:"engine"`
	CredStore CredStoreConfig           `mapstructure:"credstore" yaml:"credstore"`
	Server    ServerConfig              `mapstructure:"server" yaml:"server"`
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// EngineConfig tunes the acquisition state machine. The consent and login
// waits are the only hard time bounds; the settle delays are empirical
// heuristics carried over as configurable constants.
type EngineConfig struct {
	ConsentWaitTimeout   time.Duration `mapstructure:"consent_wait_timeout" yaml:"consent_wait_timeout"`
	LoginFieldWaitTimeout time.Duration `mapstructure:"login_field_wait_timeout" yaml:"login_field_wait_timeout"`
	ConsentSettleDelay   time.Duration `mapstructure:"consent_settle_delay" yaml:"consent_settle_delay"`
	SubmitSettleDelay    time.Duration `mapstructure:"submit_settle_delay" yaml:"submit_settle_delay"`
	NavigationSettleDelay time.Duration `mapstructure:"navigation_settle_delay" yaml:"navigation_settle_delay"`
	NetworkIdleQuiet     time.Duration `mapstructure:"network_idle_quiet" yaml:"network_idle_quiet"`
	EchoTimeout          time.Duration `mapstructure:"echo_timeout" yaml:"echo_timeout"`
	CookieArtifactPath   string        `mapstructure:"cookie_artifact_path" yaml:"cookie_artifact_path"`
}

// CredStoreConfig points at the external credential store service.
type CredStoreConfig struct {
	BaseURL  string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RetryMax int           `mapstructure:"retry_max" yaml:"retry_max"`
}

// ServerConfig configures the HTTP front door.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen" yaml:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ProviderConfig is the static per-provider wiring: DOM selectors for the
// consent gate and the login form, default URLs, and the identifiers needed
// to replay the consent-logging call. Read-only for the process lifetime.
type ProviderConfig struct {
	Name string `mapstructure:"name" yaml:"name"`

	// Consent gate selectors.
	ConsentAcceptAllSelector string `mapstructure:"consent_accept_all_selector" yaml:"consent_accept_all_selector"`
	ConsentStandardSelector  string `mapstructure:"consent_standard_selector" yaml:"consent_standard_selector"`
	ConsentDialogSelector    string `mapstructure:"consent_dialog_selector" yaml:"consent_dialog_selector"`

	// Login form selectors.
	UsernameSelector string `mapstructure:"username_selector" yaml:"username_selector"`
	PasswordSelector string `mapstructure:"password_selector" yaml:"password_selector"`
	SubmitSelector   string `mapstructure:"submit_selector" yaml:"submit_selector"`

	// Default URLs, used when the credential store does not supply them.
	LoginURL    string `mapstructure:"login_url" yaml:"login_url"`
	OverviewURL string `mapstructure:"overview_url" yaml:"overview_url"`
	DetailURL   string `mapstructure:"detail_url" yaml:"detail_url"`

	// Consent-logging side channel.
	ConsentHost     string `mapstructure:"consent_host" yaml:"consent_host"`
	ConsentConfigID string `mapstructure:"consent_config_id" yaml:"consent_config_id"`

	// Substring identifying the site session cookie in the jar.
	SessionCookieMarker string `mapstructure:"session_cookie_marker" yaml:"session_cookie_marker"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "sessionforge")
	v.SetDefault("logger.log_file", "sessionforge.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "90s")

	// -- Engine --
	v.SetDefault("engine.consent_wait_timeout", "60s")
	v.SetDefault("engine.login_field_wait_timeout", "15s")
	v.SetDefault("engine.consent_settle_delay", "1500ms")
	v.SetDefault("engine.submit_settle_delay", "1s")
	v.SetDefault("engine.navigation_settle_delay", "2s")
	v.SetDefault("engine.network_idle_quiet", "500ms")
	v.SetDefault("engine.echo_timeout", "10s")
	v.SetDefault("engine.cookie_artifact_path", "cookies.json")

	// -- Credential store --
	v.SetDefault("credstore.base_url", "http://localhost:8090")
	v.SetDefault("credstore.timeout", "5s")
	v.SetDefault("credstore.retry_max", 2)

	// -- Server --
	v.SetDefault("server.listen", ":8085")
	v.SetDefault("server.shutdown_timeout", "15s")

	// -- Providers --
	// The default provider targets a Cookiebot-gated webmail login.
	v.SetDefault("providers.freemail.name", "freemail")
	v.SetDefault("providers.freemail.consent_accept_all_selector", "#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll")
	v.SetDefault("providers.freemail.consent_standard_selector", "#CybotCookiebotDialogBodyButtonAccept")
	v.SetDefault("providers.freemail.consent_dialog_selector", "#CybotCookiebotDialog")
	v.SetDefault("providers.freemail.username_selector", "#username")
	v.SetDefault("providers.freemail.password_selector", "#password")
	v.SetDefault("providers.freemail.submit_selector", "#loginbutton")
	v.SetDefault("providers.freemail.consent_host", "consent.cookiebot.com")
	v.SetDefault("providers.freemail.consent_config_id", "315468")
	v.SetDefault("providers.freemail.session_cookie_marker", "session")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Engine.ConsentWaitTimeout <= 0 {
		return fmt.Errorf("engine.consent_wait_timeout must be a positive duration")
	}
	if c.Engine.LoginFieldWaitTimeout <= 0 {
		return fmt.Errorf("engine.login_field_wait_timeout must be a positive duration")
	}
	if c.Engine.NetworkIdleQuiet <= 0 {
		return fmt.Errorf("engine.network_idle_quiet must be a positive duration")
	}
	if c.CredStore.BaseURL == "" {
		return fmt.Errorf("credstore.base_url is a required configuration field")
	}
	for id, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("provider %q invalid: %w", id, err)
		}
	}
	return nil
}

// Validate checks a single provider entry.
func (p *ProviderConfig) Validate() error {
	if p.ConsentAcceptAllSelector == "" {
		return fmt.Errorf("consent_accept_all_selector is required")
	}
	if p.UsernameSelector == "" || p.PasswordSelector == "" || p.SubmitSelector == "" {
		return fmt.Errorf("username_selector, password_selector, and submit_selector are required")
	}
	return nil
}
