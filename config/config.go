package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultOriginalsSubDir  = "originals"
	DefaultThumbnailsSubDir = "thumbnails"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	// database
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER" validate:"required,oneof=sqlite postgres"`
	DatabaseDSN    string `mapstructure:"DATABASE_DSN" validate:"required"`

	// media storage configuration
	MediaStoragePath string `mapstructure:"MEDIA_STORAGE_PATH" validate:"required"` // primary root for uploaded images and thumbnails
	OriginalsSubDir  string `mapstructure:"ORIGINALS_SUBDIR" validate:"required"`
	ThumbnailsSubDir string `mapstructure:"THUMBNAILS_SUBDIR" validate:"required"`
	OriginalsPath    string `mapstructure:"-"` // full-calculated path for uploaded originals
	ThumbnailsPath   string `mapstructure:"-"` // full-calculated path for thumbnails

	// thumbnail generation settings
	ThumbnailMaxSize int `mapstructure:"THUMBNAIL_MAX_SIZE" validate:"gte=16,lte=4096"`

	// worker settings
	ThumbnailQueueSize  int `mapstructure:"THUMBNAIL_QUEUE_SIZE" validate:"gte=1"`
	NumThumbnailWorkers int `mapstructure:"NUM_THUMBNAIL_WORKERS" validate:"gte=1,lte=64"`

	// auth
	JWTSecret     string        `mapstructure:"JWT_SECRET" validate:"required,min=16"`
	JWTExpiration time.Duration `mapstructure:"JWT_EXPIRATION" validate:"required"`

	CORSAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// first admin, created on startup when no user with this name exists
	AdminUsername string `mapstructure:"ADMIN_USERNAME" validate:"required"`
	AdminEmail    string `mapstructure:"ADMIN_EMAIL" validate:"omitempty,email"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD" validate:"required,min=6"`

	// dataset export
	DefaultTrainRatio float64 `mapstructure:"DEFAULT_TRAIN_RATIO" validate:"gt=0,lte=1"`
	ExportBatchSize   int     `mapstructure:"EXPORT_BATCH_SIZE" validate:"gte=1,lte=10000"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var keys = []string{
	"APP_ENV",
	"HTTP_ADDR",
	"SHUTDOWN_TIMEOUT",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"DATABASE_DRIVER",
	"DATABASE_DSN",
	"MEDIA_STORAGE_PATH",
	"ORIGINALS_SUBDIR",
	"THUMBNAILS_SUBDIR",
	"THUMBNAIL_MAX_SIZE",
	"THUMBNAIL_QUEUE_SIZE",
	"NUM_THUMBNAIL_WORKERS",
	"JWT_SECRET",
	"JWT_EXPIRATION",
	"CORS_ALLOWED_ORIGINS",
	"ADMIN_USERNAME",
	"ADMIN_EMAIL",
	"ADMIN_PASSWORD",
	"DEFAULT_TRAIN_RATIO",
	"EXPORT_BATCH_SIZE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", "0.0.0.0:8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DATABASE_DRIVER", DriverSQLite)
	v.SetDefault("DATABASE_DSN", "labelsys.db")
	v.SetDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	v.SetDefault("ORIGINALS_SUBDIR", DefaultOriginalsSubDir)
	v.SetDefault("THUMBNAILS_SUBDIR", DefaultThumbnailsSubDir)
	v.SetDefault("THUMBNAIL_MAX_SIZE", 300)
	v.SetDefault("THUMBNAIL_QUEUE_SIZE", 200)
	v.SetDefault("NUM_THUMBNAIL_WORKERS", 4)
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("DEFAULT_TRAIN_RATIO", 0.8)
	v.SetDefault("EXPORT_BATCH_SIZE", 200)
}

// LoadConfig reads .env (if present), the optional config.yaml and the
// environment, in increasing order of precedence, then validates the result.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config unmarshal error: %w", err)
	}

	// durations and lists may arrive as plain strings from the environment
	var err error
	if cfg.ShutdownTimeout, err = time.ParseDuration(v.GetString("SHUTDOWN_TIMEOUT")); err != nil {
		return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	if cfg.JWTExpiration, err = time.ParseDuration(v.GetString("JWT_EXPIRATION")); err != nil {
		return Config{}, fmt.Errorf("invalid JWT_EXPIRATION: %w", err)
	}
	cfg.CORSAllowedOrigins = splitList(v.GetString("CORS_ALLOWED_ORIGINS"))

	absMediaStorage, err := filepath.Abs(cfg.MediaStoragePath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", cfg.MediaStoragePath, err)
	}
	cfg.MediaStoragePath = absMediaStorage
	cfg.OriginalsPath = filepath.Join(absMediaStorage, cfg.OriginalsSubDir)
	cfg.ThumbnailsPath = filepath.Join(absMediaStorage, cfg.ThumbnailsSubDir)

	if err := validate.Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
