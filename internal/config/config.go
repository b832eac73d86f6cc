package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/provider/openai"
)

// Config represents the arena service configuration.
type Config struct {
	Server     ServerConfig
	CORS       CORSConfig
	Redis      RedisConfig
	Arena      ArenaConfig
	Completion openai.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"300"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,X-Actor-Id"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// RedisConfig contains the run store connection settings.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"       envDefault:"0"`
}

// ArenaConfig contains the dual-slot generation pipeline settings.
type ArenaConfig struct {
	ModelA          string  `env:"ARENA_MODEL_A"           envDefault:"deepseek/deepseek-v3-turbo"`
	ModelB          string  `env:"ARENA_MODEL_B"           envDefault:"qwen/qwen3-coder-480b-a35b-instruct"`
	Temperature     float64 `env:"ARENA_TEMPERATURE"       envDefault:"0.7"`
	MaxTokens       int     `env:"ARENA_MAX_TOKENS"        envDefault:"32000"`
	FlushIntervalMS int     `env:"ARENA_FLUSH_INTERVAL_MS" envDefault:"50"`
	QuotaLimit      int64   `env:"ARENA_QUOTA_LIMIT"       envDefault:"20"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*RedisConfig
	*ArenaConfig
	*openai.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.Redis,
		&cfg.Arena,
		&cfg.Completion,
	}
}
