package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/claude/repstreak/internal/config"
	"github.com/claude/repstreak/internal/gamify"
	"github.com/claude/repstreak/internal/mcp"
	"github.com/claude/repstreak/internal/stats"
	"github.com/claude/repstreak/internal/storage"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "RepStreak server URL for remote mode")
	configPath := flag.String("config", "", "config file for local mode (direct database access)")
	userID := flag.Int("user", 1, "user id to scope local mode to")
	flag.Parse()

	// stdout carries the MCP protocol
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var ds mcp.DataSource
	switch {
	case *serverURL != "":
		ds = mcp.NewHTTPClient(*serverURL)
		log.Info("mcp remote mode", "server", *serverURL)
	case *configPath != "":
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		db, closeDB, err := storage.Open(context.Background(), cfg.Database)
		if err != nil {
			log.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer closeDB()

		catalog := gamify.DefaultCatalog()
		if cfg.Stats.CatalogPath != "" {
			if catalog, err = gamify.LoadCatalogFile(cfg.Stats.CatalogPath); err != nil {
				log.Error("failed to load achievement catalog", "error", err)
				os.Exit(1)
			}
		}
		loc, _ := cfg.Stats.Location()
		ds = mcp.Local{Engine: stats.NewEngine(db, catalog, loc, log), History: db}
		log.Info("mcp local mode", "driver", cfg.Database.Driver, "user_id", *userID)
	default:
		fmt.Fprintf(os.Stderr, "Usage: repstreak-mcp -server <URL> | -config <config.yaml> [-user N]\n")
		os.Exit(1)
	}

	s := mcp.New(ds, Version, log)
	uid := *userID
	err := mcpserver.ServeStdio(s, mcpserver.WithStdioContextFunc(func(ctx context.Context) context.Context {
		return mcp.WithUserID(ctx, uid)
	}))
	if err != nil {
		log.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
