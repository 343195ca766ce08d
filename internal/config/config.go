// Package config loads server settings from defaults, an optional TOML file,
// an optional .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"gensite/internal/generator"
	"gensite/internal/history"
	"gensite/internal/project"
	"gensite/internal/session"
)

const (
	DefaultPort    = 8000
	DefaultFile    = "gensite.toml"
	DefaultEnvFile = ".env"
)

// Config holds every server setting.
type Config struct {
	Port             int      `toml:"port"`
	ProjectDir       string   `toml:"project_dir"`
	AllowedOrigins   []string `toml:"allowed_origins"`
	RedisURL         string   `toml:"redis_url"`
	LogLevel         string   `toml:"log_level"`
	LogFormat        string   `toml:"log_format"`
	PersistGenerated bool     `toml:"persist_generated"`

	Generator generator.Config `toml:"generator"`
	Pacing    session.Pacing   `toml:"pacing"`
	History   History          `toml:"history"`
}

// History sizes the event history.
type History struct {
	Capacity int           `toml:"capacity"`
	TTL      time.Duration `toml:"ttl"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:       DefaultPort,
		ProjectDir: project.DefaultDir,
		LogLevel:   "info",
		LogFormat:  "text",
		Generator: generator.Config{
			Model:       generator.DefaultModel,
			Temperature: generator.DefaultTemperature,
			MaxTokens:   generator.DefaultMaxTokens,
		},
		Pacing: session.DefaultPacing(),
		History: History{
			Capacity: history.DefaultCapacity,
			TTL:      history.DefaultTTL,
		},
	}
}

// Load builds the configuration. A missing file at either path is not an
// error; an empty path skips that source. Variables from envFile never
// override variables already set in the environment.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Overrides carries command-line values, which take precedence over every
// other source. Nil fields were not given.
type Overrides struct {
	Port       *int
	ProjectDir *string
}

// Apply copies the set overrides onto c.
func (o Overrides) Apply(c *Config) {
	if o.Port != nil {
		c.Port = *o.Port
	}
	if o.ProjectDir != nil {
		c.ProjectDir = *o.ProjectDir
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = n
	}
	str("PROJECT_DIR", &cfg.ProjectDir)
	str("REDIS_URL", &cfg.RedisURL)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("GENSITE_PROVIDER", &cfg.Generator.Provider)
	str("GENSITE_MODEL", &cfg.Generator.Model)
	str("GENSITE_BASE_URL", &cfg.Generator.BaseURL)

	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	// The key of the selected provider wins over a key from the file.
	keyVar := apiKeyVar(generator.ResolveProvider(cfg.Generator.Provider, cfg.Generator.Model))
	str(keyVar, &cfg.Generator.APIKey)
	return nil
}

func apiKeyVar(provider string) string {
	switch provider {
	case generator.ProviderDeepSeek:
		return "DEEPSEEK_API_KEY"
	case generator.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case generator.ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if c.ProjectDir == "" {
		errs = append(errs, errors.New("project_dir must not be empty"))
	}
	if c.Generator.APIKey == "" {
		provider := generator.ResolveProvider(c.Generator.Provider, c.Generator.Model)
		errs = append(errs, fmt.Errorf("no API key for provider %s: set %s", provider, apiKeyVar(provider)))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
