package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"quantgemini/pkg/quantgemini"
)

const (
	defaultDBName     = "quantgemini.db"
	defaultConfigName = "config.yaml"

	envConfigPath = "QUANTGEMINI_CONFIG"
	envDataDir    = "QUANTGEMINI_DATA_DIR"
	envDBPath     = "QUANTGEMINI_DB_PATH"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Host           string   `yaml:"host"`
		Port           int      `yaml:"port"`
		WebDir         string   `yaml:"web_dir"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	DataDir string `yaml:"data_dir"`
	DBName  string `yaml:"db_name"`
	Log     struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	AI struct {
		GeminiAPIKey      string        `yaml:"gemini_api_key"`
		OpenAIAPIKey      string        `yaml:"openai_api_key"`
		AnthropicAPIKey   string        `yaml:"anthropic_api_key"`
		Provider          string        `yaml:"provider"`
		BaseURL           string        `yaml:"base_url"`
		GroundingModel    string        `yaml:"grounding_model"`
		ExtractionModel   string        `yaml:"extraction_model"`
		CallsPerMinute    int           `yaml:"calls_per_minute"`
		ExtractionRetries *int          `yaml:"extraction_retries"`
		Timeout           time.Duration `yaml:"timeout"`
	} `yaml:"ai"`
	History struct {
		Points           int     `yaml:"points"`
		Jitter           float64 `yaml:"jitter"`
		DefaultBasePrice float64 `yaml:"default_base_price"`
	} `yaml:"history"`
}

var runtimeDataDir string

func IsMacOS() bool {
	return runtime.GOOS == "darwin"
}

func IsWindows() bool {
	return runtime.GOOS == "windows"
}

// SetRuntimeDataDir overrides every other data dir source, used by the --data-dir flag.
func SetRuntimeDataDir(dir string) {
	runtimeDataDir = dir
}

func appConfigDir() (string, error) {
	if IsMacOS() {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "QuantGemini"), nil
	}
	if IsWindows() {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "QuantGemini"), nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "quantgemini"), nil
	}
	return filepath.Join(configDir, "quantgemini"), nil
}

// DefaultPath returns the config file location: $QUANTGEMINI_CONFIG, or
// config.yaml in the application config dir.
func DefaultPath() string {
	if v := strings.TrimSpace(os.Getenv(envConfigPath)); v != "" {
		return v
	}
	dir, err := appConfigDir()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(dir, defaultConfigName)
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// Environment variable overrides
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.GeminiAPIKey = v
	} else if v := os.Getenv("API_KEY"); v != "" && cfg.AI.GeminiAPIKey == "" {
		cfg.AI.GeminiAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.OpenAIAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AI.AnthropicAPIKey = v
	}
	if v := os.Getenv("QUANTGEMINI_PROVIDER"); v != "" {
		cfg.AI.Provider = v
	}
	if v := os.Getenv("QUANTGEMINI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := os.Getenv("QUANTGEMINI_GROUNDING_MODEL"); v != "" {
		cfg.AI.GroundingModel = v
	}
	if v := os.Getenv("QUANTGEMINI_EXTRACTION_MODEL"); v != "" {
		cfg.AI.ExtractionModel = v
	}
	if v := os.Getenv("QUANTGEMINI_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.DBName == "" {
		cfg.DBName = defaultDBName
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.AI.GroundingModel == "" {
		cfg.AI.GroundingModel = quantgemini.DefaultGroundingModel
	}
	if cfg.AI.ExtractionModel == "" {
		cfg.AI.ExtractionModel = quantgemini.DefaultExtractionModelFor(cfg.AI.Provider)
	}
	if cfg.AI.CallsPerMinute == 0 {
		cfg.AI.CallsPerMinute = 30
	}
	if cfg.AI.ExtractionRetries == nil {
		retries := quantgemini.DefaultExtractionRetries
		cfg.AI.ExtractionRetries = &retries
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 3 * time.Minute
	}
	if cfg.History.Points == 0 {
		cfg.History.Points = quantgemini.DefaultHistoryPoints
	}
	if cfg.History.Jitter == 0 {
		cfg.History.Jitter = quantgemini.DefaultHistoryJitter
	}
	if cfg.History.DefaultBasePrice == 0 {
		cfg.History.DefaultBasePrice = quantgemini.DefaultHistoryBasePrice
	}

	return cfg, nil
}

// Validate checks that all fields are within range.
func (c *Config) Validate() error {
	// Port 0 asks the OS for a free port.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.AI.Provider)) {
	case "", quantgemini.ProviderGemini, quantgemini.ProviderOpenAI, quantgemini.ProviderAnthropic:
	default:
		return fmt.Errorf("ai.provider must be gemini, openai or anthropic")
	}
	if c.AI.CallsPerMinute < 0 {
		return fmt.Errorf("ai.calls_per_minute must not be negative")
	}
	if r := *c.AI.ExtractionRetries; r < 0 || r > 3 {
		return fmt.Errorf("ai.extraction_retries must be between 0 and 3")
	}
	if c.AI.Timeout < 0 {
		return fmt.Errorf("ai.timeout must not be negative")
	}
	if c.History.Points < quantgemini.MinHistoryPoints {
		return fmt.Errorf("history.points must be at least %d", quantgemini.MinHistoryPoints)
	}
	if c.History.Jitter <= 0 || c.History.Jitter >= 1 {
		return fmt.Errorf("history.jitter must be between 0 and 1")
	}
	if c.History.DefaultBasePrice <= 0 {
		return fmt.Errorf("history.default_base_price must be positive")
	}
	return nil
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", value)
}

// DataDirectory resolves the data dir: --data-dir flag, $QUANTGEMINI_DATA_DIR,
// data_dir from the config file, then the application config dir.
func (c *Config) DataDirectory() (string, error) {
	dir := runtimeDataDir
	if dir == "" {
		dir = os.Getenv(envDataDir)
	}
	if dir == "" {
		dir = c.DataDir
	}
	if dir == "" {
		defaultDir, err := appConfigDir()
		if err != nil {
			return "", err
		}
		dir = defaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// DBPath returns $QUANTGEMINI_DB_PATH or db_name inside the data dir.
func (c *Config) DBPath() (string, error) {
	if envPath := os.Getenv(envDBPath); envPath != "" {
		return envPath, nil
	}
	dataDir, err := c.DataDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, c.DBName), nil
}

// CoreOptions converts the config into options for quantgemini.OpenWithOptions.
func (c *Config) CoreOptions(dbPath string, logger *slog.Logger) quantgemini.Options {
	return quantgemini.Options{
		DBPath: dbPath,
		Logger: logger,
		Credentials: quantgemini.Credentials{
			Gemini:    c.AI.GeminiAPIKey,
			OpenAI:    c.AI.OpenAIAPIKey,
			Anthropic: c.AI.AnthropicAPIKey,
		},
		Settings: quantgemini.AISettings{
			Provider:        c.AI.Provider,
			BaseURL:         c.AI.BaseURL,
			GroundingModel:  c.AI.GroundingModel,
			ExtractionModel: c.AI.ExtractionModel,
		},
		History: quantgemini.HistoryOptions{
			Points:           c.History.Points,
			Jitter:           c.History.Jitter,
			DefaultBasePrice: c.History.DefaultBasePrice,
		},
		CallsPerMinute:    c.AI.CallsPerMinute,
		AnalysisTimeout:   c.AI.Timeout,
		ExtractionRetries: *c.AI.ExtractionRetries,
	}
}
