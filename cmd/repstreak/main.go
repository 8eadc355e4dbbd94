package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/repstreak/internal/config"
	"github.com/claude/repstreak/internal/gamify"
	"github.com/claude/repstreak/internal/mcp"
	"github.com/claude/repstreak/internal/server"
	"github.com/claude/repstreak/internal/session"
	"github.com/claude/repstreak/internal/stats"
	"github.com/claude/repstreak/internal/storage"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	log.Info("RepStreak starting", "version", Version, "driver", cfg.Database.Driver)

	// Run migrations
	if cfg.Database.Driver == config.DriverPostgres {
		if err := storage.RunMigrations(cfg.Database.DSN(), "migrations"); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")
	}

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	// Connect database
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	db, closeDB, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer closeDB()
	log.Info("database connected")

	catalog := gamify.DefaultCatalog()
	if cfg.Stats.CatalogPath != "" {
		catalog, err = gamify.LoadCatalogFile(cfg.Stats.CatalogPath)
		if err != nil {
			log.Error("failed to load achievement catalog", "path", cfg.Stats.CatalogPath, "error", err)
			os.Exit(1)
		}
	}
	loc, err := cfg.Stats.Location()
	if err != nil {
		log.Error("invalid stats timezone", "error", err)
		os.Exit(1)
	}
	log.Info("stats engine ready", "achievements", len(catalog), "timezone", loc.String())

	engine := stats.NewEngine(db, catalog, loc, log)
	hub := session.NewHub(nil, log)
	hub.SetIdleTimeout(cfg.Session.IdleTimeout)
	go hub.Run(ctx)

	// Create server
	srv := server.New(engine, db, hub, cfg.Auth.APIKey, log)

	mcpSrv := mcp.New(mcp.Local{Engine: engine, History: db}, Version, log)
	srv.SetMCP(mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return mcp.WithUserID(ctx, server.UserID(r))
		}),
	))

	// Start server: tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		srv.SetTailscale(lc)

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig, "live_sessions", hub.Len())
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}
