package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"journez/backend/internal/ai"
	"journez/backend/internal/places"
	"journez/backend/internal/recommend"
)

// Cache backends for directory lookups.
const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config is the process configuration read from the environment.
type Config struct {
	Port           string   `envconfig:"PORT" default:"2000"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://127.0.0.1:3000"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string   `envconfig:"LOG_FORMAT" default:"text"`
	MetricsEnabled bool     `envconfig:"METRICS_ENABLED" default:"false"`

	GeminiAPIKey      string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel       string        `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	GeminiBaseURL     string        `envconfig:"GEMINI_BASE_URL"`
	OpenAIAPIKey      string        `envconfig:"OPENAI_API_KEY"`
	OpenAIModel       string        `envconfig:"OPENAI_MODEL"`
	OpenAIBaseURL     string        `envconfig:"OPENAI_BASE_URL"`
	GenerationTimeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"90s"`

	PlacesAPIKey        string        `envconfig:"PLACES_API_KEY"`
	PlacesBaseURL       string        `envconfig:"PLACES_BASE_URL"`
	PlacesTimeout       time.Duration `envconfig:"PLACES_TIMEOUT" default:"10s"`
	PlacesPhotoMaxWidth int           `envconfig:"PLACES_PHOTO_MAX_WIDTH" default:"400"`
	PlacesMaxInFlight   int           `envconfig:"PLACES_MAX_IN_FLIGHT" default:"8"`
	PlacesRateLimit     float64       `envconfig:"PLACES_RATE_LIMIT" default:"10"`
	PlacesMaxRetries    int           `envconfig:"PLACES_MAX_RETRIES" default:"2"`

	CacheBackend  string        `envconfig:"CACHE_BACKEND" default:"memory"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"24h"`
	CacheSize     int           `envconfig:"CACHE_SIZE" default:"10000"`
	CacheDBPath   string        `envconfig:"CACHE_DB_PATH" default:"data/place-lookups.db"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
}

// Load reads the given dotenv files (".env" when none are named) into the
// process environment without overriding it, then parses the environment.
// Missing dotenv files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	if strings.TrimSpace(cfg.PlacesAPIKey) == "" {
		cfg.PlacesAPIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values envconfig cannot check on its own.
func (c Config) Validate() error {
	switch strings.ToLower(c.CacheBackend) {
	case CacheMemory, CacheSQLite, CacheRedis, CacheNone:
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of memory, sqlite, redis, none; got %q", c.CacheBackend)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json; got %q", c.LogFormat)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.PlacesMaxInFlight < 1 {
		return fmt.Errorf("PLACES_MAX_IN_FLIGHT must be positive; got %d", c.PlacesMaxInFlight)
	}
	return nil
}

// ConfigureLogging applies the log level and format to the standard logger.
func (c Config) ConfigureLogging() {
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	if strings.EqualFold(c.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func (c Config) Gemini() ai.GeminiConfig {
	return ai.GeminiConfig{
		APIKey:  c.GeminiAPIKey,
		Model:   c.GeminiModel,
		BaseURL: c.GeminiBaseURL,
		Timeout: c.GenerationTimeout,
	}
}

func (c Config) OpenAI() ai.Config {
	return ai.Config{
		APIKey:  c.OpenAIAPIKey,
		Model:   c.OpenAIModel,
		BaseURL: c.OpenAIBaseURL,
		Timeout: c.GenerationTimeout,
	}
}

// Places maps the directory settings. The cache is attached by the caller.
func (c Config) Places() places.Config {
	return places.Config{
		APIKey:        c.PlacesAPIKey,
		BaseURL:       c.PlacesBaseURL,
		Timeout:       c.PlacesTimeout,
		PhotoMaxWidth: c.PlacesPhotoMaxWidth,
		CacheTTL:      c.CacheTTL,
	}
}

func (c Config) Resolver() recommend.ResolverConfig {
	return recommend.ResolverConfig{
		MaxInFlight: c.PlacesMaxInFlight,
		RateLimit:   c.PlacesRateLimit,
		Burst:       c.PlacesMaxInFlight,
		Timeout:     c.PlacesTimeout,
		MaxRetries:  c.PlacesMaxRetries,
	}
}

func (c Config) Pipeline() recommend.Config {
	return recommend.Config{GenerationTimeout: c.GenerationTimeout}
}
