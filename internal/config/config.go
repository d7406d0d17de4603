package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Provider string `env:"PROVIDER" envDefault:"whisper"`

	GoogleKeyFile    string `env:"GOOGLE_KEY_FILE"`
	GoogleBucket     string `env:"GOOGLE_BUCKET"`
	AssemblyAIAPIKey string `env:"ASSEMBLYAI_API_KEY"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`

	// Zero disables the client-side deadline; calls stay bounded by ctx.
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"0"`

	// Argv overrides for the external audio tools, split on spaces.
	// Empty keeps the default binary names.
	InspectCmd   []string `env:"AUDIO_INSPECT_CMD" envSeparator:" "`
	ConvertCmd   []string `env:"AUDIO_CONVERT_CMD" envSeparator:" "`
	SplitCmd     []string `env:"AUDIO_SPLIT_CMD" envSeparator:" "`
	ErrorRateCmd []string `env:"WER_CMD" envSeparator:" "`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	Provider string
	LogLevel string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.Provider != "" {
		cfg.Provider = overrides.Provider
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}

	return cfg, nil
}
