package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"emusync/config"
)

// Version is set at build time.
var Version = "dev"

// setupLogging writes to stdout and to log/<timestamp>.log.
// Returns the log file handle (caller should Close it).
// The console logger is returned even when the file cannot be opened.
func setupLogging(cfg config.Config, level zerolog.Level) (zerolog.Logger, *os.File, error) {
	var console io.Writer = os.Stdout
	if cfg.IsDevelopment() {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	if err := os.MkdirAll(cfg.Log.Dir, 0o755); err != nil {
		return zerolog.New(console).With().Timestamp().Logger().Level(level), nil,
			fmt.Errorf("failed to create log directory: %w", err)
	}

	// log/2025-12-08_21-52-35.log
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(cfg.Log.Dir, timestamp+".log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.New(console).With().Timestamp().Logger().Level(level), nil,
			fmt.Errorf("failed to open log file: %w", err)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(console, logFile)).
		With().Timestamp().Logger().
		Level(level)
	logger.Debug().Str("path", logPath).Msg("logging to file")
	return logger, logFile, nil
}

func main() {
	app := &cli.App{
		Name:    "emusync",
		Usage:   "Push and pull emulator saves between a server and remote devices",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file (default: ./config.yaml if present)",
				EnvVars: []string{"EMUSYNC_CONFIG"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			level, err := zerolog.ParseLevel(cfg.Log.Level)
			if err != nil {
				return fmt.Errorf("invalid log.level %q: %w", cfg.Log.Level, err)
			}

			logger, logFile, err := setupLogging(cfg, level)
			if err != nil {
				// Console logging still works without the file.
				logger.Warn().Err(err).Msg("file logging disabled")
			}

			c.App.Metadata = map[string]interface{}{
				"env": &appEnv{cfg: cfg, logger: logger, logFile: logFile},
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if env, ok := c.App.Metadata["env"].(*appEnv); ok && env.logFile != nil {
				return env.logFile.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			importCommand(),
			devicesCommand(),
			checkCommand(),
		},
		Action: func(c *cli.Context) error {
			return serveCommand().Action(c)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "emusync: %v\n", err)
		os.Exit(1)
	}
}
