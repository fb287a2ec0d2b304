package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	App       AppConfig       `mapstructure:"app" yaml:"app"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Accounts  AccountsConfig  `mapstructure:"accounts" yaml:"accounts"`
	Chat      ChatConfig      `mapstructure:"chat" yaml:"chat"`
	Data      DataConfig      `mapstructure:"data" yaml:"data"`
	Results   ResultsConfig   `mapstructure:"results" yaml:"results"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Evaluator EvaluatorConfig `mapstructure:"evaluator" yaml:"evaluator"`

	// Run gets its marching orders from CLI flags, not the config file.
	Run RunConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// AppConfig identifies the application under test.
type AppConfig struct {
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	LoginPath string `mapstructure:"login_path" yaml:"login_path"`
}

// LoginURL joins the base URL and the login path.
func (a AppConfig) LoginURL() string {
	return a.BaseURL + a.LoginPath
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless     bool     `mapstructure:"headless" yaml:"headless"`
	WindowWidth  int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int      `mapstructure:"window_height" yaml:"window_height"`
	Args         []string `mapstructure:"args" yaml:"args"`

	// ElementTimeout bounds every find-and-act wait; PollInterval is the
	// retry cadence inside that bound.
	ElementTimeout time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// AccountsConfig describes the static test account pool. Accounts are named
// <prefix><NNNN> and share one password; each worker gets exactly one.
type AccountsConfig struct {
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	Count    int    `mapstructure:"count" yaml:"count"`
	Password string `mapstructure:"password" yaml:"-"`
}

// ChatConfig tunes the chat page interaction.
type ChatConfig struct {
	// ResponseTimeout is the maximum wait for an answer to stabilize.
	ResponseTimeout time.Duration `mapstructure:"response_timeout" yaml:"response_timeout"`
	// StabilizePoll is the interval between reads of the response region.
	StabilizePoll time.Duration `mapstructure:"stabilize_poll" yaml:"stabilize_poll"`
	// PromptDelay paces consecutive prompts within one conversation.
	PromptDelay time.Duration `mapstructure:"prompt_delay" yaml:"prompt_delay"`

	// Selectors for the chat surface, overridable per deployment.
	InputSelector    string `mapstructure:"input_selector" yaml:"input_selector"`
	ResponseSelector string `mapstructure:"response_selector" yaml:"response_selector"`
	ModelButton      string `mapstructure:"model_button" yaml:"model_button"`
	ModelList        string `mapstructure:"model_list" yaml:"model_list"`
	NewChatButton    string `mapstructure:"new_chat_button" yaml:"new_chat_button"`
}

// DataConfig points at the scenario spreadsheet.
type DataConfig struct {
	File    string `mapstructure:"file" yaml:"file"`
	Sheet   string `mapstructure:"sheet" yaml:"sheet"`
	Shuffle bool   `mapstructure:"shuffle" yaml:"shuffle"`
	Sample  int    `mapstructure:"sample" yaml:"sample"`
}

// ResultsConfig controls where and how results are exported.
type ResultsConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DatabaseConfig holds the optional result store connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"-"`
}

// EvaluatorConfig configures the LLM response-quality evaluator.
type EvaluatorConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	APIKey      string  `mapstructure:"api_key" yaml:"-"`
	Model       string  `mapstructure:"model" yaml:"model"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
}

// RunConfig holds settings populated from CLI flags for a specific run.
type RunConfig struct {
	Workers      int
	AccountIndex int
	WorkerID     string
	Models       []string
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "aiknow-probe")
	v.SetDefault("logger.log_file", "aiknow-probe.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- App --
	v.SetDefault("app.base_url", "http://aiknow-v2.technica.vn")
	v.SetDefault("app.login_path", "/auth/login")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.element_timeout", "30s")
	v.SetDefault("browser.poll_interval", "500ms")

	// -- Accounts --
	v.SetDefault("accounts.prefix", "auto_user")
	v.SetDefault("accounts.count", 100)

	// -- Chat --
	v.SetDefault("chat.response_timeout", "2m")
	v.SetDefault("chat.stabilize_poll", "2s")
	v.SetDefault("chat.prompt_delay", "4s")
	v.SetDefault("chat.input_selector", "#chat-input")
	v.SetDefault("chat.response_selector", "app-chat-chat-content .bubble-item-assistant:last-of-type")
	v.SetDefault("chat.model_button", "app-chat-main .dropdown > button")
	v.SetDefault("chat.model_list", "app-chat-main .dropdown > ul a")
	v.SetDefault("chat.new_chat_button", "app-chat-sidebar button.new-chat")

	// -- Data --
	v.SetDefault("data.file", "testdata/chat_scenarios.xlsx")
	v.SetDefault("data.shuffle", false)
	v.SetDefault("data.sample", 0)

	// -- Results --
	v.SetDefault("results.dir", "test_results")
	v.SetDefault("results.format", "xlsx")

	// -- Evaluator --
	v.SetDefault("evaluator.enabled", false)
	v.SetDefault("evaluator.model", "gemini-2.5-flash")
	v.SetDefault("evaluator.temperature", 0.1)
}

// NewFromViper creates a configuration instance from a viper object.
func NewFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("accounts.password", "AIKNOW_ACCOUNT_PASSWORD")
	v.BindEnv("database.url", "AIKNOW_DATABASE_URL")
	v.BindEnv("evaluator.api_key", "GEMINI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in user-supplied paths.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Data.File, &c.Results.Dir, &c.Logger.LogFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = filepath.Clean(expanded)
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.App.BaseURL == "" {
		return fmt.Errorf("app.base_url is a required configuration field")
	}
	if c.Accounts.Count <= 0 {
		return fmt.Errorf("accounts.count must be a positive integer")
	}
	if c.Browser.ElementTimeout <= 0 {
		return fmt.Errorf("browser.element_timeout must be a positive duration")
	}
	if c.Chat.ResponseTimeout <= 0 {
		return fmt.Errorf("chat.response_timeout must be a positive duration")
	}
	if c.Chat.StabilizePoll <= 0 {
		return fmt.Errorf("chat.stabilize_poll must be a positive duration")
	}
	switch c.Results.Format {
	case "xlsx", "json", "both":
	default:
		return fmt.Errorf("results.format must be one of 'xlsx', 'json', 'both'")
	}
	if c.Evaluator.Enabled && c.Evaluator.APIKey == "" {
		return fmt.Errorf("evaluator is enabled but no API key is set (GEMINI_API_KEY)")
	}
	return nil
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}
