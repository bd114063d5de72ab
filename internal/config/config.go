// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// Config holds the entire application configuration. Fields are exported so
// viper can unmarshal into them; treat the struct as read-only after load.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Oracle  OracleConfig  `mapstructure:"oracle" yaml:"oracle"`
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

// BrowserConfig holds settings for the headless browser session.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	DisableCache      bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug             bool           `mapstructure:"debug" yaml:"debug"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration  `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	FindTimeout       time.Duration  `mapstructure:"find_timeout" yaml:"find_timeout"`
	ScreenshotDir     string         `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// EngineConfig configures the task execution engine.
type EngineConfig struct {
	TaskTimeout     time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
	StepTimeout     time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	MaxStepAttempts int           `mapstructure:"max_step_attempts" yaml:"max_step_attempts"`
	BackoffBase     time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffCap      time.Duration `mapstructure:"backoff_cap" yaml:"backoff_cap"`
	HistoryFile     string        `mapstructure:"history_file" yaml:"history_file"`
	// HistoryPromptTail bounds how many recent history entries are surfaced
	// to the oracle. The recorded history itself is never truncated.
	HistoryPromptTail int `mapstructure:"history_prompt_tail" yaml:"history_prompt_tail"`
}

// RetryPolicy converts the engine settings to a step retry policy.
func (e EngineConfig) RetryPolicy() schemas.RetryPolicy {
	return schemas.RetryPolicy{
		MaxAttempts: e.MaxStepAttempts,
		BackoffBase: e.BackoffBase,
		BackoffCap:  e.BackoffCap,
	}
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const ProviderGemini LLMProvider = "gemini"

// OracleConfig configures the planning oracle and its model routing.
type OracleConfig struct {
	LLM OracleLLMConfig `mapstructure:"llm" yaml:"llm"`
	// PlanAttempts bounds how many times a malformed oracle response is
	// re-requested before the fallback plan is used.
	PlanAttempts   int           `mapstructure:"plan_attempts" yaml:"plan_attempts"`
	PlanBackoff    time.Duration `mapstructure:"plan_backoff" yaml:"plan_backoff"`
	PlanBackoffCap time.Duration `mapstructure:"plan_backoff_cap" yaml:"plan_backoff_cap"`
}

// RetryPolicy converts the oracle settings to a re-prompt retry policy.
func (o OracleConfig) RetryPolicy() schemas.RetryPolicy {
	return schemas.RetryPolicy{
		MaxAttempts: o.PlanAttempts,
		BackoffBase: o.PlanBackoff,
		BackoffCap:  o.PlanBackoffCap,
	}
}

// OracleLLMConfig configures the model routing logic.
type OracleLLMConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerMinute throttles outbound calls to the provider. Zero
	// disables client side throttling.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
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
	v.SetDefault("logger.service_name", "taskpilot")
	v.SetDefault("logger.log_file", "taskpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.find_timeout", "10s")
	v.SetDefault("browser.screenshot_dir", "screenshots")

	// -- Engine --
	v.SetDefault("engine.task_timeout", "5m")
	v.SetDefault("engine.step_timeout", "30s")
	v.SetDefault("engine.max_step_attempts", 3)
	v.SetDefault("engine.backoff_base", "500ms")
	v.SetDefault("engine.backoff_cap", "5s")
	v.SetDefault("engine.history_file", "")
	v.SetDefault("engine.history_prompt_tail", 10)

	// -- Oracle --
	v.SetDefault("oracle.llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("oracle.llm.default_powerful_model", "gemini-2.5-pro")
	v.SetDefault("oracle.plan_attempts", 3)
	v.SetDefault("oracle.plan_backoff", "1s")
	v.SetDefault("oracle.plan_backoff_cap", "10s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("oracle.llm.models.fast.api_key", "TASKPILOT_GEMINI_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("oracle.llm.models.powerful.api_key", "TASKPILOT_GEMINI_API_KEY", "GEMINI_API_KEY")

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
	if c.Engine.MaxStepAttempts < 1 {
		return fmt.Errorf("engine.max_step_attempts must be a positive integer")
	}
	if c.Engine.BackoffBase < 0 || c.Engine.BackoffCap < 0 {
		return fmt.Errorf("engine backoff durations must be non-negative")
	}
	if c.Engine.TaskTimeout <= 0 || c.Engine.StepTimeout <= 0 {
		return fmt.Errorf("engine timeouts must be positive durations")
	}
	if c.Engine.HistoryPromptTail < 0 {
		return fmt.Errorf("engine.history_prompt_tail must be non-negative")
	}
	if c.Browser.NavigationTimeout <= 0 || c.Browser.FindTimeout <= 0 {
		return fmt.Errorf("browser timeouts must be positive durations")
	}
	if c.Oracle.PlanAttempts < 1 {
		return fmt.Errorf("oracle.plan_attempts must be a positive integer")
	}
	return nil
}
