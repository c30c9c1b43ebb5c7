package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/iwango/iwango-server/internal/config"
	"github.com/iwango/iwango-server/internal/gate"
	"github.com/iwango/iwango-server/internal/lobby"
	"github.com/iwango/iwango-server/internal/notify"
	"github.com/iwango/iwango-server/internal/store"
	"github.com/iwango/iwango-server/internal/title"
)

const ConfigPath = "config/iwango.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("IWANGO_CONFIG"); p != "" {
		cfgPath = p
	}
	if len(os.Args) > 1 && os.Args[1] != "" {
		cfgPath = os.Args[1]
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("iwango server starting", "log_level", cfg.LogLevel, "titles", len(cfg.Titles))

	st, err := store.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer st.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	catalog, err := title.NewCatalog(cfg.Titles)
	if err != nil {
		return fmt.Errorf("building title catalog: %w", err)
	}

	sink := notify.New(cfg.Notify.WebhookURL, cfg.Notify.MaxConcurrent, cfg.Notify.LobbyJoinRate, cfg.Notify.RequestTimeout)

	gateServer := gate.NewServer(cfg.GateBindAddress, catalog, st)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting gate server", "port", cfg.GatePort)
		if err := gateServer.Run(gctx, cfg.GatePort); err != nil {
			return fmt.Errorf("gate server: %w", err)
		}
		return nil
	})

	for _, t := range catalog.All() {
		t := t
		lobbyServer := lobby.NewServer(t, st, sink, cfg.SendQueueSize, cfg.WriteTimeout, cfg.IdleTimeout)

		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", t.BindAddress, t.Port))
		if err != nil {
			return fmt.Errorf("listening on title %q port %d: %w", t.Token, t.Port, err)
		}

		g.Go(func() error {
			slog.Info("starting lobby server", "title", t.Token, "name", t.Name, "port", t.Port)
			if err := lobbyServer.Run(gctx, ln); err != nil {
				return fmt.Errorf("lobby server %q: %w", t.Token, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
