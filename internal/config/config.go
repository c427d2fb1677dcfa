package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort uint16 `env:"REDIS_PORT" envDefault:"6379"   validate:"min=1000,max=65535"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"wms_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"wms_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"wms_db"`

	JwtSecret string `env:"JWT_SECRET" envDefault:"dev-secret" validate:"required"`

	// DisconnectTimeoutMs is how long a dropped connection keeps its
	// presence and locks before cleanup fires.
	DisconnectTimeoutMs uint32 `env:"DISCONNECT_TIMEOUT_MS" envDefault:"30000" validate:"min=1"`
	// HeartbeatIntervalMs is the stale-lock sweep cadence and must be
	// materially smaller than the disconnect timeout.
	HeartbeatIntervalMs uint32 `env:"HEARTBEAT_INTERVAL_MS" envDefault:"10000" validate:"min=1"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8086" validate:"min=1000,max=65535"`
}

func (c *Config) DisconnectTimeout() time.Duration {
	return time.Duration(c.DisconnectTimeoutMs) * time.Millisecond
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}

	if cfg.HeartbeatIntervalMs >= cfg.DisconnectTimeoutMs {
		err = errors.New("HEARTBEAT_INTERVAL_MS must be smaller than DISCONNECT_TIMEOUT_MS")
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
