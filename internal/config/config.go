// Package config loads runtime settings from defaults, an optional YAML file
// and environment variables, in that order of precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"router-agent/internal/integrations/paramstore"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

var defaultModels = map[string]string{
	ProviderOpenAI: "gpt-4o",
	ProviderGemini: "gemini-2.0-flash",
}

type Config struct {
	LLM              LLMConfig      `yaml:"llm"`
	Store            StoreConfig    `yaml:"store"`
	GitHub           GitHubConfig   `yaml:"github"`
	Telegram         TelegramConfig `yaml:"telegram"`
	Log              LogConfig      `yaml:"log"`
	HTTPAddr         string         `yaml:"http_addr"`
	ParamPrefix      string         `yaml:"param_prefix"` // secrets come from SSM when set
	MaxMessageLength int            `yaml:"max_message_length"`
	MaxHistory       int            `yaml:"max_history"`
}

type LLMConfig struct {
	Provider        string `yaml:"provider"` // openai, gemini
	Model           string `yaml:"model"`
	ClassifierModel string `yaml:"classifier_model"`
	BaseURL         string `yaml:"base_url"`
}

type StoreConfig struct {
	Backend     string `yaml:"backend"` // memory, sqlite, postgres, dynamodb
	SQLitePath  string `yaml:"sqlite_path"`
	DatabaseURL string `yaml:"database_url"`
	Table       string `yaml:"table"`
}

type GitHubConfig struct {
	BaseURL string `yaml:"base_url"`
}

type TelegramConfig struct {
	// WebhookSecret is compared with the secret token header on webhook
	// deliveries. Empty disables the check.
	WebhookSecret string `yaml:"webhook_secret"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LLM:              LLMConfig{Provider: ProviderOpenAI},
		Store:            StoreConfig{Backend: BackendSQLite, SQLitePath: "./data/router.db"},
		Log:              LogConfig{Level: "info", Format: "json"},
		HTTPAddr:         ":8080",
		MaxMessageLength: 4000,
		MaxHistory:       20,
	}
}

// Load reads .env (if present), the YAML file named by ROUTER_CONFIG (if
// set) and the environment, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Info("no .env file found, using environment only")
		} else {
			slog.Warn("could not load .env file", "err", err)
		}
	}
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path, ok := lookup("ROUTER_CONFIG"); ok && strings.TrimSpace(path) != "" {
		if err := cfg.loadFile(strings.TrimSpace(path)); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.fillDerived()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LLM_PROVIDER":            &c.LLM.Provider,
		"LLM_MODEL":               &c.LLM.Model,
		"CLASSIFIER_MODEL":        &c.LLM.ClassifierModel,
		"OPENAI_BASE_URL":         &c.LLM.BaseURL,
		"STORE_BACKEND":           &c.Store.Backend,
		"SQLITE_PATH":             &c.Store.SQLitePath,
		"DATABASE_URL":            &c.Store.DatabaseURL,
		"STATE_TABLE":             &c.Store.Table,
		"GITHUB_BASE_URL":         &c.GitHub.BaseURL,
		"TELEGRAM_WEBHOOK_SECRET": &c.Telegram.WebhookSecret,
		"LOG_LEVEL":               &c.Log.Level,
		"LOG_FORMAT":              &c.Log.Format,
		"HTTP_ADDR":               &c.HTTPAddr,
		"PARAM_PREFIX":            &c.ParamPrefix,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"MAX_MESSAGE_LENGTH": &c.MaxMessageLength,
		"MAX_HISTORY":        &c.MaxHistory,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s must be an integer: %w", key, err)
		}
		*dst = n
	}
	return nil
}

func (c *Config) fillDerived() {
	c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	c.Store.Backend = strings.ToLower(c.Store.Backend)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultModels[c.LLM.Provider]
	}
	if c.LLM.ClassifierModel == "" {
		c.LLM.ClassifierModel = c.LLM.Model
	}
}

// Validate checks that the settings are usable. Credentials are checked
// separately by RequireSecrets.
func (c *Config) Validate() error {
	if _, ok := defaultModels[c.LLM.Provider]; !ok {
		return fmt.Errorf("LLM_PROVIDER must be one of openai, gemini; got %q", c.LLM.Provider)
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("SQLITE_PATH cannot be empty for the sqlite backend")
		}
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case BackendDynamoDB:
		if c.Store.Table == "" {
			return errors.New("STATE_TABLE is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, sqlite, postgres, dynamodb; got %q", c.Store.Backend)
	}
	if c.MaxMessageLength <= 0 {
		return errors.New("MAX_MESSAGE_LENGTH must be > 0")
	}
	if c.MaxHistory <= 0 {
		return errors.New("MAX_HISTORY must be > 0")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text; got %q", c.Log.Format)
	}
	return nil
}

// LLMSecret names the credential of the configured provider.
func (c *Config) LLMSecret() string {
	if c.LLM.Provider == ProviderGemini {
		return paramstore.GeminiToken
	}
	return paramstore.OpenAIToken
}

// RequireSecrets resolves every named secret and reports all that are
// missing at once.
func RequireSecrets(ctx context.Context, g paramstore.Getter, names ...string) error {
	var errs []error
	for _, name := range names {
		if _, err := paramstore.Token(ctx, g, name); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: missing credentials: %w", errors.Join(errs...))
	}
	return nil
}

// Logger builds the slog logger described by the settings.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error; got %q", s)
	}
	return level, nil
}
