package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Auth     AuthConfig
	Store    StoreConfig
	Realtime RealtimeConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,https://shourk.com,https://www.shourk.com"`
	Addr           string
}

// LogConfig 日志配置。
type LogConfig struct {
	Env   string `env:"APP_ENV" envDefault:"development"`
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// AuthConfig 访问令牌配置。
type AuthConfig struct {
	Secret   string        `env:"ACCESS_TOKEN_SECRET,required,notEmpty"`
	TokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
}

// StoreConfig 选择消息存储后端。
type StoreConfig struct {
	Driver        string `env:"STORE_DRIVER" envDefault:"badger"`
	BadgerPath    string `env:"BADGER_PATH" envDefault:"data/messages"`
	MongoURI      string `env:"MONGODB_URI"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"AMD"`
}

const (
	DriverBadger = "badger"
	DriverMongo  = "mongo"
)

// RealtimeConfig 实时连接参数。
type RealtimeConfig struct {
	RequireToken    bool    `env:"WS_REQUIRE_TOKEN" envDefault:"false"`
	OutboxSize      int     `env:"WS_OUTBOX_SIZE" envDefault:"64"`
	FramesPerSecond float64 `env:"WS_FRAMES_PER_SECOND" envDefault:"10"`
	FrameBurst      int     `env:"WS_FRAME_BURST" envDefault:"20"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	addr, err := listenAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverBadger:
		if strings.TrimSpace(c.Store.BadgerPath) == "" {
			errs = append(errs, errors.New("BADGER_PATH must not be empty"))
		}
	case DriverMongo:
		if strings.TrimSpace(c.Store.MongoURI) == "" {
			errs = append(errs, errors.New("MONGODB_URI is required when STORE_DRIVER=mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver))
	}

	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}
	if c.Realtime.OutboxSize <= 0 {
		errs = append(errs, errors.New("WS_OUTBOX_SIZE must be positive"))
	}
	if c.Realtime.FramesPerSecond <= 0 || c.Realtime.FrameBurst <= 0 {
		errs = append(errs, errors.New("WS_FRAMES_PER_SECOND and WS_FRAME_BURST must be positive"))
	}

	return errors.Join(errs...)
}

// listenAddr 解析服务器监听地址。
func listenAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}
