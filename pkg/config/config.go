package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Dispatch modes for deploy and undeploy requests.
const (
	DispatchInline = "inline"
	DispatchQueue  = "queue"
)

// Config holds application configuration loaded from environment variables or config files.
type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"required,url|uri"`

	// Object store holding terraform/<template>/ and deployments/<project>/.
	S3Bucket   string `mapstructure:"S3_BUCKET" validate:"required"`
	AWSRegion  string `mapstructure:"AWS_REGION"`
	S3Endpoint string `mapstructure:"S3_ENDPOINT" validate:"omitempty,url"`

	WorkingDir       string        `mapstructure:"WORKING_DIR" validate:"required"`
	TerraformBin     string        `mapstructure:"TERRAFORM_BIN" validate:"required"`
	ProvisionTimeout time.Duration `mapstructure:"PROVISION_TIMEOUT" validate:"gte=0"`

	DispatchMode string `mapstructure:"DISPATCH_MODE" validate:"required,oneof=inline queue"`

	RedisAddr     string `mapstructure:"REDIS_ADDR" validate:"required_if=DispatchMode queue,omitempty,hostname_port"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	AsynqConcurrency int           `mapstructure:"ASYNQ_CONCURRENCY" validate:"gte=1,lte=1000"`
	TaskTimeout      time.Duration `mapstructure:"TASK_TIMEOUT" validate:"required"`
	LockTTL          time.Duration `mapstructure:"LOCK_TTL" validate:"required"`

	CORSAllowedOrigin string `mapstructure:"CORS_ALLOWED_ORIGIN"`

	GoMaxProcs int `mapstructure:"GOMAXPROCS" validate:"gte=0,lte=4096"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var keys = []string{
	"APP_ENV",
	"HTTP_ADDR",
	"SHUTDOWN_TIMEOUT",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"DATABASE_URL",
	"S3_BUCKET",
	"AWS_REGION",
	"S3_ENDPOINT",
	"WORKING_DIR",
	"TERRAFORM_BIN",
	"PROVISION_TIMEOUT",
	"DISPATCH_MODE",
	"REDIS_ADDR",
	"REDIS_PASSWORD",
	"ASYNQ_CONCURRENCY",
	"TASK_TIMEOUT",
	"LOCK_TTL",
	"CORS_ALLOWED_ORIGIN",
	"GOMAXPROCS",
}

// Load initializes configuration using Viper. It loads from .env if present,
// applies defaults, binds env vars, and validates the result.
func Load() (*Config, error) {
	// Load .env if present (non-fatal)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", "0.0.0.0:8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("WORKING_DIR", "terraform-temp")
	v.SetDefault("TERRAFORM_BIN", "terraform")
	v.SetDefault("PROVISION_TIMEOUT", "0s")
	v.SetDefault("DISPATCH_MODE", DispatchInline)
	v.SetDefault("ASYNQ_CONCURRENCY", 10)
	v.SetDefault("TASK_TIMEOUT", "2h")
	v.SetDefault("LOCK_TTL", "2h")
	v.SetDefault("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	v.SetDefault("GOMAXPROCS", 0)

	// Optional config file
	_ = v.ReadInConfig()

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	// Parse duration types that may come as string
	for key, dst := range map[string]*time.Duration{
		"SHUTDOWN_TIMEOUT":  &c.ShutdownTimeout,
		"PROVISION_TIMEOUT": &c.ProvisionTimeout,
		"TASK_TIMEOUT":      &c.TaskTimeout,
		"LOCK_TTL":          &c.LockTTL,
	} {
		s := v.GetString(key)
		if s == "" {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(c.GoMaxProcs)
	}

	return &c, nil
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return c
}

// Queued reports whether deploy and undeploy are dispatched through asynq.
func (c *Config) Queued() bool {
	return c.DispatchMode == DispatchQueue
}
