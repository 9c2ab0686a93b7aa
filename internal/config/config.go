package config // package config loads application configuration from a file and environment variables

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration values. Every field can be set in
// the optional config file and overridden by the environment variable named
// next to it.
type Config struct {
	Env      string `yaml:"env" toml:"env" validate:"required"`   // APP_ENV
	Port     string `yaml:"port" toml:"port" validate:"required"` // APP_PORT
	LogLevel string `yaml:"log_level" toml:"log_level"`           // LOG_LEVEL

	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	JWT       JWTConfig       `yaml:"jwt" toml:"jwt"`
	Places    PlacesConfig    `yaml:"places" toml:"places"`
	Instagram InstagramConfig `yaml:"instagram" toml:"instagram"`
	AMQP      AMQPConfig      `yaml:"amqp" toml:"amqp"`
	Pipeline  PipelineConfig  `yaml:"pipeline" toml:"pipeline"`
}

// DatabaseConfig selects the SQL driver. MySQL is the production store and
// needs the connection fields; SQLite only needs a file path.
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver" validate:"oneof=mysql sqlite"` // DB_DRIVER
	User   string `yaml:"user" toml:"user" validate:"required_if=Driver mysql"` // DB_USER
	Pass   string `yaml:"pass" toml:"pass"`                                     // DB_PASS (empty allowed)
	Host   string `yaml:"host" toml:"host" validate:"required_if=Driver mysql"` // DB_HOST
	Port   string `yaml:"port" toml:"port" validate:"required_if=Driver mysql"` // DB_PORT
	Name   string `yaml:"name" toml:"name" validate:"required_if=Driver mysql"` // DB_NAME
	Path   string `yaml:"path" toml:"path" validate:"required_if=Driver sqlite"` // DB_PATH
}

// JWTConfig configures bearer token verification.
type JWTConfig struct {
	Secret       string `yaml:"secret" toml:"secret" validate:"required"`                    // JWT_SECRET
	AccessTTLMin int    `yaml:"access_ttl_min" toml:"access_ttl_min" validate:"gt=0"`        // ACCESS_TOKEN_TTL_MIN
}

// PlacesConfig configures the place search provider client.
type PlacesConfig struct {
	BaseURL        string `yaml:"base_url" toml:"base_url" validate:"required,url"`         // GOOGLE_PLACES_BASE_URL
	APIKey         string `yaml:"api_key" toml:"api_key" validate:"required"`               // GOOGLE_PLACES_API_KEY
	Language       string `yaml:"language" toml:"language" validate:"required"`             // GOOGLE_PLACES_LANGUAGE
	PhotoMaxWidth  int    `yaml:"photo_max_width" toml:"photo_max_width" validate:"gt=0"`   // GOOGLE_PLACES_PHOTO_MAX_WIDTH
	TimeoutSeconds int    `yaml:"timeout_seconds" toml:"timeout_seconds" validate:"gt=0"`   // GOOGLE_PLACES_TIMEOUT_SECONDS
}

// Timeout is the per-request deadline applied to every search call.
func (p PlacesConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// InstagramConfig configures caption lookup. When AppID and AppSecret are
// both set the oEmbed endpoint is used, otherwise the public page is read.
type InstagramConfig struct {
	OEmbedURL      string `yaml:"oembed_url" toml:"oembed_url" validate:"omitempty,url"`  // INSTAGRAM_OEMBED_URL
	AppID          string `yaml:"app_id" toml:"app_id"`                                   // INSTAGRAM_APP_ID
	AppSecret      string `yaml:"app_secret" toml:"app_secret"`                           // INSTAGRAM_APP_SECRET
	TimeoutSeconds int    `yaml:"timeout_seconds" toml:"timeout_seconds" validate:"gt=0"` // INSTAGRAM_TIMEOUT_SECONDS
}

// Timeout is the deadline for one metadata fetch.
func (i InstagramConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSeconds) * time.Second
}

// AMQPConfig configures the broker. An empty URL disables the broker and
// reels are processed by the in-process worker pool instead.
type AMQPConfig struct {
	URL          string `yaml:"url" toml:"url"`                                        // RABBITMQ_URL or AMQP_URL
	ProcessQueue string `yaml:"process_queue" toml:"process_queue" validate:"required"` // AMQP_PROCESS_QUEUE
	NotifyQueue  string `yaml:"notify_queue" toml:"notify_queue" validate:"required"`   // AMQP_NOTIFY_QUEUE
	Prefetch     int    `yaml:"prefetch" toml:"prefetch" validate:"gt=0"`               // AMQP_PREFETCH
}

// PipelineConfig sizes the reel processing workers.
type PipelineConfig struct {
	Workers            int    `yaml:"workers" toml:"workers" validate:"gt=0"`                         // PIPELINE_WORKERS
	QueueSize          int    `yaml:"queue_size" toml:"queue_size" validate:"gt=0"`                   // PIPELINE_QUEUE_SIZE
	AddressConcurrency int    `yaml:"address_concurrency" toml:"address_concurrency" validate:"gt=0"` // PIPELINE_ADDRESS_CONCURRENCY
	LockTTLSeconds     int    `yaml:"lock_ttl_seconds" toml:"lock_ttl_seconds" validate:"gt=0"`       // PIPELINE_LOCK_TTL_SECONDS
	LockDir            string `yaml:"lock_dir" toml:"lock_dir"`                                       // PIPELINE_LOCK_DIR
}

// LockTTL bounds how long a reel stays marked as in flight.
func (p PipelineConfig) LockTTL() time.Duration {
	return time.Duration(p.LockTTLSeconds) * time.Second
}

// Default returns the configuration used before the file and environment
// are applied.
func Default() Config {
	return Config{
		Env:      "dev",
		Port:     "8080",
		LogLevel: "info",
		Database: DatabaseConfig{Driver: "mysql", Port: "3306"},
		JWT:      JWTConfig{AccessTTLMin: 60},
		Places: PlacesConfig{
			BaseURL:        "https://maps.googleapis.com/maps/api/place",
			Language:       "ko",
			PhotoMaxWidth:  400,
			TimeoutSeconds: 5,
		},
		Instagram: InstagramConfig{
			OEmbedURL:      "https://graph.facebook.com/v22.0/instagram_oembed",
			TimeoutSeconds: 10,
		},
		AMQP: AMQPConfig{
			ProcessQueue: "reels.process",
			NotifyQueue:  "notifications.place_found",
			Prefetch:     10,
		},
		Pipeline: PipelineConfig{
			Workers:            4,
			QueueSize:          128,
			AddressConcurrency: 3,
			LockTTLSeconds:     300,
		},
	}
}

var validate = validator.New()

// Load builds the configuration in four steps: a `.env` file in the working
// directory (optional), the config file at path or $REELSPLACE_CONFIG
// (optional, YAML or TOML by extension), environment overrides and finally
// validation. A missing required value is returned as an error.
func Load(path string) (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("REELSPLACE_CONFIG")
	}
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides cfg with every environment variable that is set.
func applyEnv(cfg *Config) {
	cfg.Env = envStr("APP_ENV", cfg.Env)
	cfg.Port = envStr("APP_PORT", cfg.Port)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)

	cfg.Database.Driver = envStr("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.User = envStr("DB_USER", cfg.Database.User)
	cfg.Database.Pass = envStr("DB_PASS", cfg.Database.Pass)
	cfg.Database.Host = envStr("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = envStr("DB_PORT", cfg.Database.Port)
	cfg.Database.Name = envStr("DB_NAME", cfg.Database.Name)
	cfg.Database.Path = envStr("DB_PATH", cfg.Database.Path)

	cfg.JWT.Secret = envStr("JWT_SECRET", cfg.JWT.Secret)
	cfg.JWT.AccessTTLMin = envInt("ACCESS_TOKEN_TTL_MIN", cfg.JWT.AccessTTLMin)

	cfg.Places.BaseURL = envStr("GOOGLE_PLACES_BASE_URL", cfg.Places.BaseURL)
	cfg.Places.APIKey = envStr("GOOGLE_PLACES_API_KEY", cfg.Places.APIKey)
	cfg.Places.Language = envStr("GOOGLE_PLACES_LANGUAGE", cfg.Places.Language)
	cfg.Places.PhotoMaxWidth = envInt("GOOGLE_PLACES_PHOTO_MAX_WIDTH", cfg.Places.PhotoMaxWidth)
	cfg.Places.TimeoutSeconds = envInt("GOOGLE_PLACES_TIMEOUT_SECONDS", cfg.Places.TimeoutSeconds)

	cfg.Instagram.OEmbedURL = envStr("INSTAGRAM_OEMBED_URL", cfg.Instagram.OEmbedURL)
	cfg.Instagram.AppID = envStr("INSTAGRAM_APP_ID", cfg.Instagram.AppID)
	cfg.Instagram.AppSecret = envStr("INSTAGRAM_APP_SECRET", cfg.Instagram.AppSecret)
	cfg.Instagram.TimeoutSeconds = envInt("INSTAGRAM_TIMEOUT_SECONDS", cfg.Instagram.TimeoutSeconds)

	cfg.AMQP.URL = envStr("AMQP_URL", cfg.AMQP.URL)
	cfg.AMQP.URL = envStr("RABBITMQ_URL", cfg.AMQP.URL)
	cfg.AMQP.ProcessQueue = envStr("AMQP_PROCESS_QUEUE", cfg.AMQP.ProcessQueue)
	cfg.AMQP.NotifyQueue = envStr("AMQP_NOTIFY_QUEUE", cfg.AMQP.NotifyQueue)
	cfg.AMQP.Prefetch = envInt("AMQP_PREFETCH", cfg.AMQP.Prefetch)

	cfg.Pipeline.Workers = envInt("PIPELINE_WORKERS", cfg.Pipeline.Workers)
	cfg.Pipeline.QueueSize = envInt("PIPELINE_QUEUE_SIZE", cfg.Pipeline.QueueSize)
	cfg.Pipeline.AddressConcurrency = envInt("PIPELINE_ADDRESS_CONCURRENCY", cfg.Pipeline.AddressConcurrency)
	cfg.Pipeline.LockTTLSeconds = envInt("PIPELINE_LOCK_TTL_SECONDS", cfg.Pipeline.LockTTLSeconds)
	cfg.Pipeline.LockDir = envStr("PIPELINE_LOCK_DIR", cfg.Pipeline.LockDir)
}
