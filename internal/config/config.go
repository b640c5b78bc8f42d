package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported DATABASE_DRIVER values.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Supported IMAGE_STORE values.
const (
	ImageStoreLocal = "local"
	ImageStoreS3    = "s3"
)

// Config holds every setting the service reads from the environment.
type Config struct {
	Env  string
	Port string

	DatabaseDriver string
	DatabaseDSN    string
	MongoURI       string
	MongoDatabase  string

	JWTSecret string
	JWTTTL    time.Duration

	ImageStore     string
	UploadDir      string
	UploadMaxBytes int64

	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3PublicBaseURL string
	S3Prefix        string
	S3AccessKeyID   string
	S3SecretKey     string

	RabbitMQURL string

	EnforceOwnership bool
	CORSOrigins      string
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_PORT", ":5000")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "file:inventory.db?_foreign_keys=on")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "inventory")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("IMAGE_STORE", "local")
	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("UPLOAD_MAX_BYTES", 5*1024*1024)
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_PUBLIC_BASE_URL", "")
	v.SetDefault("S3_PREFIX", "products/")
	v.SetDefault("S3_ACCESS_KEY_ID", "")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("ENFORCE_OWNERSHIP", false)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
}

// Load reads an optional .env file, then the environment, and validates the result.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Env:              strings.ToLower(v.GetString("APP_ENV")),
		Port:             v.GetString("APP_PORT"),
		DatabaseDriver:   strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseDSN:      v.GetString("DATABASE_DSN"),
		MongoURI:         v.GetString("MONGO_URI"),
		MongoDatabase:    v.GetString("MONGO_DATABASE"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		JWTTTL:           v.GetDuration("JWT_TTL"),
		ImageStore:       strings.ToLower(v.GetString("IMAGE_STORE")),
		UploadDir:        v.GetString("UPLOAD_DIR"),
		UploadMaxBytes:   v.GetInt64("UPLOAD_MAX_BYTES"),
		S3Bucket:         v.GetString("S3_BUCKET"),
		S3Region:         v.GetString("S3_REGION"),
		S3Endpoint:       v.GetString("S3_ENDPOINT"),
		S3PublicBaseURL:  v.GetString("S3_PUBLIC_BASE_URL"),
		S3Prefix:         v.GetString("S3_PREFIX"),
		S3AccessKeyID:    v.GetString("S3_ACCESS_KEY_ID"),
		S3SecretKey:      v.GetString("S3_SECRET_ACCESS_KEY"),
		RabbitMQURL:      v.GetString("RABBITMQ_URL"),
		EnforceOwnership: v.GetBool("ENFORCE_OWNERSHIP"),
		CORSOrigins:      v.GetString("CORS_ORIGINS"),
	}

	if cfg.Port != "" && !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if cfg.JWTSecret == "" {
		if cfg.Env != "development" {
			return nil, fmt.Errorf("JWT_SECRET is required")
		}
		cfg.JWTSecret = "dev_jwt_secret"
	}
	if cfg.JWTTTL <= 0 {
		return nil, fmt.Errorf("JWT_TTL must be positive")
	}

	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverSQLite, DriverMongo, DriverMemory:
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	switch cfg.ImageStore {
	case ImageStoreLocal:
		if cfg.UploadDir == "" {
			return nil, fmt.Errorf("UPLOAD_DIR is required for the local image store")
		}
	case ImageStoreS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for the s3 image store")
		}
	default:
		return nil, fmt.Errorf("unsupported IMAGE_STORE %q", cfg.ImageStore)
	}

	if cfg.UploadMaxBytes <= 0 {
		return nil, fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}

	return cfg, nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
