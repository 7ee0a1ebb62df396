package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"emusync/api"
	"emusync/config"
	"emusync/dolphin"
	"emusync/emulators"
	"emusync/jobstore"
	"emusync/models"
	"emusync/registry"
	"emusync/remote"
	"emusync/service"
)

const (
	ftpDialTimeout  = 10 * time.Second
	httpStopTimeout = 10 * time.Second
	jobStopTimeout  = 30 * time.Second
)

// appEnv is built once in Before and shared by every command.
type appEnv struct {
	cfg     config.Config
	logger  zerolog.Logger
	logFile *os.File
}

func envFrom(c *cli.Context) *appEnv {
	return c.App.Metadata["env"].(*appEnv)
}

func (e *appEnv) openRegistry() (*sql.DB, *registry.SQLRepository, error) {
	db, err := config.InitDatabase(e.cfg.Database.Path, e.logger)
	if err != nil {
		return nil, nil, err
	}
	return db, registry.NewSQLRepository(db, e.logger), nil
}

func (e *appEnv) openJobStore(ctx context.Context) (jobstore.Store, error) {
	if e.cfg.Redis.URL == "" {
		e.logger.Info().Dur("ttl", e.cfg.Jobs.TTL).Msg("using in-memory job store")
		return jobstore.NewMemoryStore(e.cfg.Jobs.TTL), nil
	}
	return jobstore.NewRedisStore(ctx, e.cfg.Redis.URL, e.cfg.Jobs.TTL, e.logger)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the sync workers",
		Action: func(c *cli.Context) error {
			return serve(c.Context, envFrom(c))
		},
	}
}

func serve(parent context.Context, env *appEnv) error {
	cfg, log := env.cfg, env.logger

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, repo, err := env.openRegistry()
	if err != nil {
		return err
	}
	defer db.Close()

	fs := afero.NewOsFs()
	if cfg.Seed.Path != "" {
		if _, err := registry.ImportFile(ctx, fs, cfg.Seed.Path, repo, log); err != nil {
			return err
		}
	}

	deviceManager := service.NewDeviceManager(repo, log)
	if err := deviceManager.Reload(ctx); err != nil {
		return err
	}

	// Without a server config the API still starts so it can be set through /api/admin.
	if server, err := deviceManager.ServerConfig(); err == nil {
		if results := registry.CheckServer(fs, server); !registry.Healthy(results) {
			for _, r := range results {
				if !r.OK() {
					log.Error().Err(r.Err).Str("check", r.Name).Str("path", r.Path).Msg("server check failed")
				}
			}
			return errors.New("server checks failed, run 'emusync check' for details")
		}
	}

	store, err := env.openJobStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	wsHub := api.NewWebSocketHub(log)
	go wsHub.Run(ctx)

	journal := service.NewJobJournal(store, wsHub)
	runner := remote.NewShellRunner(journal, cfg.Commands.Timeout, log)
	dial := remote.DialFTP(ftpDialTimeout)
	transfer := remote.NewTransfer(runner, journal, dial, fs, log)
	archive := dolphin.NewHandler(runner, fs, dolphin.Limits{MaxDepth: cfg.Dolphin.MaxDepth, MaxDirs: cfg.Dolphin.MaxDirs}, log)
	syncer := service.NewSyncer(transfer, archive, journal, log)
	prechecker := remote.NewPrechecker(runner, dial, log)

	dispatcher := service.NewDispatcher(cfg.Jobs.Workers, cfg.Jobs.Queue, cfg.Jobs.Timeout, log)
	jobs := service.NewJobManager(store, deviceManager, prechecker, syncer, dispatcher, wsHub, log)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.NewHandlers(jobs, deviceManager, repo, log), wsHub)

	httpServer := &http.Server{
		Addr:    net.JoinHostPort("", strconv.Itoa(cfg.HTTP.Port)),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			_ = dispatcher.Shutdown(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}

	httpCtx, cancel := context.WithTimeout(context.Background(), httpStopTimeout)
	defer cancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	jobCtx, cancelJobs := context.WithTimeout(context.Background(), jobStopTimeout)
	defer cancelJobs()
	if err := dispatcher.Shutdown(jobCtx); err != nil {
		log.Warn().Err(err).Msg("running jobs were cancelled")
	}

	log.Info().Msg("server stopped cleanly")
	return nil
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import devices and server config from a db.json or YAML file",
		ArgsUsage: "<file>",
		Action: func(c *cli.Context) error {
			env := envFrom(c)
			path := c.Args().First()
			if path == "" {
				path = env.cfg.Seed.Path
			}
			if path == "" {
				return errors.New("import needs a file argument or seed.path")
			}

			db, repo, err := env.openRegistry()
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := registry.ImportFile(c.Context, afero.NewOsFs(), path, repo, env.logger)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %s: %d created, %d updated, %d skipped, server config %s\n",
				color.YellowString("%s", path), stats.Created, stats.Updated, stats.Skipped, yesNo(stats.Server))
			return nil
		},
	}
}

func yesNo(b bool) string {
	if b {
		return color.GreenString("stored")
	}
	return color.YellowString("unchanged")
}

func devicesCommand() *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List the verified devices and their enabled emulators",
		Action: func(c *cli.Context) error {
			env := envFrom(c)
			db, repo, err := env.openRegistry()
			if err != nil {
				return err
			}
			defer db.Close()

			raw, err := repo.ListDevices(c.Context)
			if err != nil {
				return err
			}
			devices := registry.VerifyDevices(raw, env.logger)

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "OS", "Sync", "Address", "Emulators"})
			for _, d := range devices {
				t.AppendRow(table.Row{d.Name, d.OS, d.SyncType, fmt.Sprintf("%s@%s:%d", d.User, d.IP, d.Port), emulatorList(d)})
			}
			t.AppendFooter(table.Row{"", "", "", "Total", len(devices)})
			t.Render()

			if skipped := len(raw) - len(devices); skipped > 0 {
				fmt.Println(color.YellowString("%d device(s) skipped, see the log for details", skipped))
			}
			return nil
		},
	}
}

func emulatorList(d models.Device) string {
	enabled := emulators.Enabled(d)
	names := make([]string, len(enabled))
	for i, e := range enabled {
		names[i] = string(e)
	}
	return strings.Join(names, ", ")
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Verify the server folders exist and zip/unzip are installed",
		Action: func(c *cli.Context) error {
			env := envFrom(c)
			db, repo, err := env.openRegistry()
			if err != nil {
				return err
			}
			defer db.Close()

			server, err := repo.GetServer(c.Context)
			if err != nil {
				return err
			}
			if err := registry.VerifyServer(server); err != nil {
				fmt.Println(color.RedString("✗ %v", err))
			}

			results := registry.CheckServer(afero.NewOsFs(), server)
			for _, r := range results {
				if r.OK() {
					fmt.Printf("%s %-18s %s\n", color.GreenString("✓"), r.Name, r.Path)
				} else {
					fmt.Printf("%s %-18s %s (%v)\n", color.RedString("✗"), r.Name, r.Path, r.Err)
				}
			}
			if !registry.Healthy(results) {
				return cli.Exit("server checks failed", 1)
			}
			fmt.Println(color.GreenString("All checks passed"))
			return nil
		},
	}
}
