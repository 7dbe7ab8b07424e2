// Package config loads the server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/whisper/pairing/internal/matching"
	"github.com/whisper/pairing/internal/ratelimit"
	"github.com/whisper/pairing/internal/ws"
)

// Config is every externally supplied setting. Backends with an empty
// address are disabled.
type Config struct {
	ListenAddr     string        `envconfig:"LISTEN_ADDR" default:":8080"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	QueueTimeout   time.Duration `envconfig:"QUEUE_TIMEOUT" default:"5m"`
	MatchInterval  time.Duration `envconfig:"MATCH_INTERVAL" default:"5s"`
	RelayPolicy    string        `envconfig:"RELAY_POLICY" default:"strict"`

	WorkerPoolSize int           `envconfig:"WORKER_POOL_SIZE" default:"256"`
	MaxConnections int           `envconfig:"MAX_CONNECTIONS" default:"100000"`
	ReadTimeout    time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout   time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	SendBuffer     int           `envconfig:"SEND_BUFFER" default:"64"`

	NATSURL     string `envconfig:"NATS_URL"`
	RedisAddr   string `envconfig:"REDIS_ADDR"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	ServerName  string `envconfig:"SERVER_NAME"`

	RequestChatPerMinute int `envconfig:"RATE_REQUEST_CHAT_PER_MINUTE" default:"10"`
	RelayPerMinute       int `envconfig:"RATE_RELAY_PER_MINUTE" default:"600"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.ServerName == "" {
		cfg.ServerName, _ = os.Hostname()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "ws-1"
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("LISTEN_ADDR must not be empty"))
	}
	if len(c.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("ALLOWED_ORIGINS must name at least one origin or *"))
	}
	if c.WorkerPoolSize <= 0 {
		errs = append(errs, fmt.Errorf("WORKER_POOL_SIZE must be positive, got %d", c.WorkerPoolSize))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("SEND_BUFFER must be positive, got %d", c.SendBuffer))
	}
	if c.RequestChatPerMinute < 0 || c.RelayPerMinute < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	if err := c.Matching().Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Matching returns the pairing core settings.
func (c Config) Matching() matching.Config {
	return matching.Config{
		MatchInterval: c.MatchInterval,
		QueueTimeout:  c.QueueTimeout,
		RelayPolicy:   matching.RelayPolicy(c.RelayPolicy),
	}
}

// Server returns the WebSocket server settings.
func (c Config) Server() ws.ServerConfig {
	sc := ws.DefaultServerConfig()
	sc.ListenAddr = c.ListenAddr
	sc.AllowedOrigins = c.AllowedOrigins
	sc.WorkerPoolSize = c.WorkerPoolSize
	sc.MaxConnections = c.MaxConnections
	sc.ReadTimeout = c.ReadTimeout
	sc.WriteTimeout = c.WriteTimeout
	sc.SendBuffer = c.SendBuffer
	return sc
}

// RateRules returns the per-participant limits for chat requests and relayed
// messages. A zero limit disables the rule.
func (c Config) RateRules() (requestChat, relay ratelimit.Rule) {
	return ratelimit.PerMinute(ratelimit.RuleRequestChat.Key, c.RequestChatPerMinute),
		ratelimit.PerMinute(ratelimit.RuleRelay.Key, c.RelayPerMinute)
}
