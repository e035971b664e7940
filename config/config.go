package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Values come from the YAML file named by
// PINBOARD_CONFIG, then from PINBOARD_* environment variables, which win.
type Config struct {
	MQTT        MQTTConfig      `yaml:"mqtt"`
	HTTP        HTTPConfig      `yaml:"http"`
	Database    DatabaseConfig  `yaml:"database"`
	Router      RouterConfig    `yaml:"router"`
	ProfilePath string          `yaml:"profile_path"`
	LogLevel    string          `yaml:"log_level"`
	Devices     []DeviceAccount `yaml:"devices"`
	Apps        []AppAccount    `yaml:"apps"`
}

type MQTTConfig struct {
	Address string `yaml:"address"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

// DatabaseConfig selects the dashboard store. An empty URL keeps dashboards
// in memory only.
type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	PersistTimeout time.Duration `yaml:"persist_timeout"`
}

type RouterConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// DeviceAccount lets one hardware device connect. The token is its MQTT
// username.
type DeviceAccount struct {
	Token     string `yaml:"token"`
	Password  string `yaml:"password"`
	Dashboard int    `yaml:"dashboard"`
	Device    int    `yaml:"device"`
}

// AppAccount lets an app connect as the owner of dashboards.
type AppAccount struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Owner    string `yaml:"owner"`
}

func defaults() Config {
	return Config{
		MQTT:     MQTTConfig{Address: ":1883"},
		HTTP:     HTTPConfig{Address: ":8080"},
		Database: DatabaseConfig{PersistTimeout: 5 * time.Second},
		Router:   RouterConfig{QueueSize: 64},
		LogLevel: "info",
	}
}

// Load reads .env if present, the YAML file named by PINBOARD_CONFIG and the
// environment overrides.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}
	return LoadFile(os.Getenv("PINBOARD_CONFIG"))
}

// LoadFile is Load without .env handling. An empty path uses defaults.
func LoadFile(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}

	cfg.MQTT.Address = getenvDefault("PINBOARD_MQTT_ADDR", cfg.MQTT.Address)
	cfg.HTTP.Address = getenvDefault("PINBOARD_HTTP_ADDR", cfg.HTTP.Address)
	cfg.Database.URL = getenvDefault("PINBOARD_DATABASE_URL", cfg.Database.URL)
	cfg.ProfilePath = getenvDefault("PINBOARD_PROFILE", cfg.ProfilePath)
	cfg.LogLevel = getenvDefault("PINBOARD_LOG_LEVEL", cfg.LogLevel)
	cfg.Router.QueueSize = getenvIntDefault("PINBOARD_QUEUE_SIZE", cfg.Router.QueueSize)

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	tokens := make(map[string]bool)
	for _, d := range c.Devices {
		switch {
		case d.Token == "":
			errs = append(errs, errors.New("device without token"))
		case tokens[d.Token]:
			errs = append(errs, fmt.Errorf("duplicate device token %q", d.Token))
		case d.Dashboard <= 0:
			errs = append(errs, fmt.Errorf("device %q: dashboard required", d.Token))
		}
		tokens[d.Token] = true
	}
	users := make(map[string]bool)
	for _, a := range c.Apps {
		switch {
		case a.Username == "":
			errs = append(errs, errors.New("app account without username"))
		case users[a.Username] || tokens[a.Username]:
			errs = append(errs, fmt.Errorf("duplicate username %q", a.Username))
		}
		users[a.Username] = true
	}
	if c.Router.QueueSize <= 0 {
		errs = append(errs, errors.New("router queue size must be positive"))
	}
	return errors.Join(errs...)
}

// Device finds a device account by token.
func (c Config) Device(token string) (DeviceAccount, bool) {
	for _, d := range c.Devices {
		if d.Token == token {
			return d, true
		}
	}
	return DeviceAccount{}, false
}

func (c Config) App(username string) (AppAccount, bool) {
	for _, a := range c.Apps {
		if a.Username == username {
			return a, true
		}
	}
	return AppAccount{}, false
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
