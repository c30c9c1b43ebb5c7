// Package config loads the server's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the iwango process: the Gate
// listener, the Title-Server catalog, persistence, and the notification
// sink.
type Config struct {
	// Gate listener
	GateBindAddress string `yaml:"gate_bind_address"`
	GatePort        int    `yaml:"gate_port"`

	// Title servers (fixed-port lobby listeners)
	Titles []TitleConfig `yaml:"titles"`

	// Database
	Database DatabaseConfig `yaml:"database"`

	// Logging
	LogLevel string `yaml:"log_level"` // debug, info, warn, error (default: info)

	// Connection tuning
	IdleTimeout   time.Duration `yaml:"idle_timeout"`    // disconnect after this much silence (default: 60s)
	SendQueueSize int           `yaml:"send_queue_size"` // per-connection outbox capacity (default: 64)
	WriteTimeout  time.Duration `yaml:"write_timeout"`   // per-write deadline (default: 5s)

	// Notification sink
	Notify NotifyConfig `yaml:"notify"`
}

// TitleConfig describes one fixed-port Title-Server.
type TitleConfig struct {
	Token         string `yaml:"token"`          // short game token, e.g. "dayt"
	Name          string `yaml:"name"`           // display name advertised to clients
	BindAddress   string `yaml:"bind_address"`   // lobby listener bind address
	Port          int    `yaml:"port"`           // fixed lobby port, e.g. 9501
	AdvertiseHost string `yaml:"advertise_host"` // host the Gate tells clients to connect to
	AdvertisePort int    `yaml:"advertise_port"` // port the Gate tells clients to connect to
	FullWidthText bool   `yaml:"full_width_text"`
	Capacity      int    `yaml:"capacity"` // max concurrently connected players
	MOTD          string `yaml:"motd"`     // LOGIN2's message of the day
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	MaxConns        int32  `yaml:"max_conns"`
	MinConns        int32  `yaml:"min_conns"`
	MaxConnLifetime string `yaml:"max_conn_lifetime"`
	MaxConnIdleTime string `yaml:"max_conn_idle_time"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	base := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)

	var params []string
	if d.MaxConns > 0 {
		params = append(params, fmt.Sprintf("pool_max_conns=%d", d.MaxConns))
	}
	if d.MinConns > 0 {
		params = append(params, fmt.Sprintf("pool_min_conns=%d", d.MinConns))
	}
	if d.MaxConnLifetime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_lifetime=%s", d.MaxConnLifetime))
	}
	if d.MaxConnIdleTime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_idle_time=%s", d.MaxConnIdleTime))
	}

	if len(params) > 0 {
		return base + "&" + strings.Join(params, "&")
	}
	return base
}

// NotifyConfig configures the bounded webhook notification sink.
type NotifyConfig struct {
	WebhookURL       string        `yaml:"webhook_url"`        // empty disables the sink
	MaxConcurrent    int           `yaml:"max_concurrent"`     // default: 5
	LobbyJoinRate    time.Duration `yaml:"lobby_join_rate"`    // default: 5m
	RequestTimeout   time.Duration `yaml:"request_timeout"`    // default: 5s
}

// Default returns a Config with sensible defaults so the server can start
// with no config file present.
func Default() Config {
	return Config{
		GateBindAddress: "0.0.0.0",
		GatePort:        9500,
		LogLevel:        "info",
		IdleTimeout:     60 * time.Second,
		SendQueueSize:   64,
		WriteTimeout:    5 * time.Second,
		Titles: []TitleConfig{
			{Token: "dayt", Name: "Daytona USA", BindAddress: "0.0.0.0", Port: 9501, AdvertiseHost: "127.0.0.1", AdvertisePort: 9501, Capacity: 64, MOTD: "Welcome to Daytona USA"},
		},
		Database: DatabaseConfig{
			Host:    "127.0.0.1",
			Port:    5432,
			User:    "iwango",
			Password: "iwango",
			DBName:  "iwango",
			SSLMode: "disable",
		},
		Notify: NotifyConfig{
			MaxConcurrent:  5,
			LobbyJoinRate:  5 * time.Minute,
			RequestTimeout: 5 * time.Second,
		},
	}
}

// Load reads Config from a YAML file. If the file doesn't exist, it
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
