// Package config содержит логику чтения конфигурации витрины и её сервера.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress     = "localhost:8080"
	defaultLocalDBPath    = "storefront.db"
	defaultSessionPath    = "session.json"
	defaultStatusInterval = 5 * time.Second
	defaultRemoteTimeout  = 5 * time.Second
	defaultRemoteRetries  = 1
	defaultLoginRate      = 1.0
)

// Config содержит параметры конфигурации. Клиент витрины и сервер читают одну структуру
// и используют свои поля.
type Config struct {
	RunAddress     string        `env:"RUN_ADDRESS"`
	DatabaseURI    string        `env:"DATABASE_URI"`
	RemoteBaseURL  string        `env:"REMOTE_BASE_URL"`
	LocalDBPath    string        `env:"LOCAL_DB_PATH"`
	SessionPath    string        `env:"SESSION_PATH"`
	StatusInterval time.Duration `env:"STATUS_INTERVAL"`
	RemoteTimeout  time.Duration `env:"REMOTE_TIMEOUT"`
	RemoteRetries  int           `env:"REMOTE_RETRIES"`
	// LoginRate — допустимое число попыток входа и регистрации в секунду с одного адреса.
	LoginRate  float64 `env:"LOGIN_RATE"`
	AuthSecret string  `env:"AUTH_SECRET"`

	LogLevel string `env:"LOG_LEVEL"`
	LogDev   bool   `env:"LOG_DEV"`
	LogFile  string `env:"LOG_FILE"`
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// .env необязателен.
	_ = godotenv.Load()

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RemoteBaseURL, "r", "", "storefront server address, empty for offline mode")
	flag.StringVar(&cfg.LocalDBPath, "l", defaultLocalDBPath, "local database file")
	flag.StringVar(&cfg.SessionPath, "s", defaultSessionPath, "session file")
	flag.DurationVar(&cfg.StatusInterval, "i", defaultStatusInterval, "order status progression interval, 0 disables it")
	flag.DurationVar(&cfg.RemoteTimeout, "t", defaultRemoteTimeout, "storefront server request timeout")
	flag.IntVar(&cfg.RemoteRetries, "n", defaultRemoteRetries, "retries when the storefront server is unavailable")
	flag.Float64Var(&cfg.LoginRate, "login-rate", defaultLoginRate, "login attempts per second per client")

	flag.Parse()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.LocalDBPath == "" {
		cfg.LocalDBPath = defaultLocalDBPath
	}
	if cfg.SessionPath == "" {
		cfg.SessionPath = defaultSessionPath
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = defaultRemoteTimeout
	}
	if cfg.RemoteRetries < 0 {
		cfg.RemoteRetries = 0
	}
	if cfg.LoginRate <= 0 {
		cfg.LoginRate = defaultLoginRate
	}

	return cfg, nil
}
