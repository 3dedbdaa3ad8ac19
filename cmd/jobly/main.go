package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rayjc/jobly/auth"
	"github.com/rayjc/jobly/config"
	joblylogger "github.com/rayjc/jobly/logger"
	"github.com/rayjc/jobly/migrations"
	"github.com/rayjc/jobly/server"
	"github.com/rayjc/jobly/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", config.GetConfigPath(), "Path to the YAML config file")
		logFile     = flag.String("logfile", "", "Path to log file. If not set, logs to stdout")
		pretty      = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
		addr        = flag.String("addr", "", "Listen address, overrides server.addr")
		writeConfig = flag.Bool("write-config", false, "Write the effective configuration to -config and exit")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	logger, err := joblylogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *writeConfig {
		if err := config.Save(cfg, *configPath); err != nil {
			return err
		}
		logger.Info().Str("path", *configPath).Msg("Configuration written")
		return nil
	}
	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("driver", cfg.Database.Driver).
		Msg("jobly starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // No remedy for db close errors

	if err := migrations.RunMigrations(db, cfg.Database.Driver, cfg.Database.MigrationsPath, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	dialect, err := store.DialectFor(cfg.Database.Driver)
	if err != nil {
		return err
	}
	st := store.New(db, dialect, logger)
	srv := server.New(
		server.Config{Addr: cfg.Server.Addr, Logger: logger},
		st,
		auth.NewIssuer(cfg.Auth.SecretKey, cfg.Auth.TokenTTL),
		auth.NewHasher(cfg.Auth.BcryptCost),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("jobly stopped")
	return nil
}
