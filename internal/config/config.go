// Package config loads gateway settings from configs/config.yml, an optional
// .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel    string            `mapstructure:"log_level"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Serial      SerialConfig      `mapstructure:"serial"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	DB          DBConfig          `mapstructure:"db"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Influx      InfluxConfig      `mapstructure:"influx"`
	Redis       RedisConfig       `mapstructure:"redis"`
}

type HTTPConfig struct {
	Port           string        `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

type SerialConfig struct {
	Port              string        `mapstructure:"port"`
	BaudRate          int           `mapstructure:"baud_rate"`
	ReadBuffer        int           `mapstructure:"read_buffer"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
}

type IngestConfig struct {
	MaxHistory    int    `mapstructure:"max_history"`
	MaxFrameBytes int    `mapstructure:"max_frame_bytes"`
	LegacyJSON    bool   `mapstructure:"legacy_json"`
	Timezone      string `mapstructure:"timezone"`
	SinkQueue     int    `mapstructure:"sink_queue"`
}

type PersistenceConfig struct {
	Driver         string        `mapstructure:"driver"`
	Path           string        `mapstructure:"path"`
	BackupInterval time.Duration `mapstructure:"-"`
	RetentionDays  int           `mapstructure:"retention_days"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type InfluxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Channel  string        `mapstructure:"channel"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Location resolves Ingest.Timezone; empty or "Local" means the host zone.
func (c Config) Location() (*time.Location, error) {
	switch c.Ingest.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(c.Ingest.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", c.Ingest.Timezone, err)
		}
		return loc, nil
	}
}

var defaults = map[string]any{
	"log_level":                   "info",
	"http.port":                   "3000",
	"http.allowed_origins":        []string{"*"},
	"http.shutdown_grace":         "10s",
	"serial.port":                 "/dev/ttyUSB0",
	"serial.baud_rate":            9600,
	"serial.read_buffer":          256,
	"serial.reconnect_interval":   "5s",
	"ingest.max_history":          500,
	"ingest.max_frame_bytes":      4096,
	"ingest.legacy_json":          true,
	"ingest.timezone":             "Local",
	"ingest.sink_queue":           256,
	"persistence.driver":          "json",
	"persistence.path":            "data/daily-stats.json",
	"persistence.backup_interval": "1h",
	"persistence.retention_days":  30,
	"db.path":                     "data/gateway.db",
	"auth.enabled":                false,
	"auth.signing_key":            "",
	"auth.token_ttl":              "1h",
	"influx.enabled":              false,
	"influx.url":                  "http://localhost:8086",
	"influx.token":                "",
	"influx.org":                  "",
	"influx.bucket":               "sensors",
	"redis.enabled":               false,
	"redis.addr":                  "localhost:6379",
	"redis.password":              "",
	"redis.db":                    0,
	"redis.channel":               "sensor:readings",
	"redis.ttl":                   "0s",
}

// legacyEnv maps the flat variable names older deployments use.
var legacyEnv = map[string]string{
	"http.port":                   "PORT",
	"serial.port":                 "SERIAL_PORT",
	"serial.baud_rate":            "BAUD_RATE",
	"ingest.max_history":          "MAX_HISTORY",
	"persistence.backup_interval": "BACKUP_INTERVAL",
	"influx.token":                "INFLUXDB_TOKEN",
}

// Load reads configuration. dir is searched for config.yml; a missing file
// is fine, a malformed one is not. A .env in the working directory is
// loaded first when present.
func Load(dir string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	interval, err := parseInterval(v.GetString("persistence.backup_interval"))
	if err != nil {
		return Config{}, fmt.Errorf("persistence.backup_interval: %w", err)
	}
	cfg.Persistence.BackupInterval = interval

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parseInterval accepts Go durations ("30m") or a bare integer of milliseconds.
func parseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

func (c Config) validate() error {
	switch {
	case c.Serial.BaudRate <= 0:
		return fmt.Errorf("serial.baud_rate must be positive, got %d", c.Serial.BaudRate)
	case c.Ingest.MaxHistory <= 0:
		return fmt.Errorf("ingest.max_history must be positive, got %d", c.Ingest.MaxHistory)
	case c.Persistence.BackupInterval <= 0:
		return fmt.Errorf("persistence.backup_interval must be positive, got %s", c.Persistence.BackupInterval)
	case c.Persistence.RetentionDays <= 0:
		return fmt.Errorf("persistence.retention_days must be positive, got %d", c.Persistence.RetentionDays)
	case c.Persistence.Driver != "json" && c.Persistence.Driver != "sqlite":
		return fmt.Errorf("persistence.driver must be json or sqlite, got %q", c.Persistence.Driver)
	case c.Auth.Enabled && c.Auth.SigningKey == "":
		return errors.New("auth.signing_key is required when auth.enabled is true")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
