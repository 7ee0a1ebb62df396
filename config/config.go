// Package config loads the application configuration and opens the registry database.
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

type Config struct {
	Environment string
	HTTP        HTTPConfig
	Log         LogConfig
	Database    DatabaseConfig
	Seed        SeedConfig
	Redis       RedisConfig
	Jobs        JobsConfig
	Commands    CommandsConfig
	Dolphin     DolphinConfig
}

type HTTPConfig struct {
	Port int
}

type LogConfig struct {
	Dir   string
	Level string
}

type DatabaseConfig struct {
	Path string
}

// SeedConfig points at an optional db.json or YAML file imported at startup.
type SeedConfig struct {
	Path string
}

// RedisConfig selects the job store. An empty URL keeps jobs in memory.
type RedisConfig struct {
	URL string
}

type JobsConfig struct {
	TTL     time.Duration
	Workers int
	Queue   int
	Timeout time.Duration
}

type CommandsConfig struct {
	Timeout time.Duration
}

type DolphinConfig struct {
	MaxDepth int
	MaxDirs  int
}

// Load reads .env, config.yaml and EMUSYNC_* variables, in increasing precedence.
// configFile overrides the config.yaml lookup when set.
func Load(configFile string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	v.SetEnvPrefix("EMUSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if configFile == "" {
		configFile = v.GetString("config.path")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetDefault("environment", "development")
	v.SetDefault("http.port", 8080)
	v.SetDefault("log.dir", "log")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.path", "./data/emusync.db")
	v.SetDefault("seed.path", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("jobs.ttl", "15m")
	v.SetDefault("jobs.workers", 4)
	v.SetDefault("jobs.queue", 64)
	v.SetDefault("jobs.timeout", "2h")
	v.SetDefault("commands.timeout", "30m")
	v.SetDefault("dolphin.max_depth", 12)
	v.SetDefault("dolphin.max_dirs", 10000)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit file must exist; the default lookup is optional.
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Environment: v.GetString("environment"),
		HTTP: HTTPConfig{
			Port: v.GetInt("http.port"),
		},
		Log: LogConfig{
			Dir:   v.GetString("log.dir"),
			Level: v.GetString("log.level"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Seed: SeedConfig{
			Path: v.GetString("seed.path"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
		},
		Jobs: JobsConfig{
			TTL:     v.GetDuration("jobs.ttl"),
			Workers: v.GetInt("jobs.workers"),
			Queue:   v.GetInt("jobs.queue"),
			Timeout: v.GetDuration("jobs.timeout"),
		},
		Commands: CommandsConfig{
			Timeout: v.GetDuration("commands.timeout"),
		},
		Dolphin: DolphinConfig{
			MaxDepth: v.GetInt("dolphin.max_depth"),
			MaxDirs:  v.GetInt("dolphin.max_dirs"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d is out of range", c.HTTP.Port)
	}
	if c.Jobs.TTL <= 0 {
		return fmt.Errorf("jobs.ttl must be positive (set EMUSYNC_JOBS_TTL)")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be positive (set EMUSYNC_JOBS_WORKERS)")
	}
	if c.Jobs.Queue < 0 {
		return fmt.Errorf("jobs.queue must not be negative")
	}
	if c.Commands.Timeout < 0 {
		return fmt.Errorf("commands.timeout must not be negative")
	}
	if c.Dolphin.MaxDepth <= 0 || c.Dolphin.MaxDirs <= 0 {
		return fmt.Errorf("dolphin.max_depth and dolphin.max_dirs must be positive")
	}
	return nil
}

// IsDevelopment enables human-friendly console logging.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}
