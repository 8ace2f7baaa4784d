package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/amccray/stigward/internal/config"
	"github.com/amccray/stigward/internal/database"
	"github.com/amccray/stigward/internal/engine"
	"github.com/amccray/stigward/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// A down engine is not fatal: imports, assignments, and reporting
	// still work, and audit requests fail individually.
	eng, err := engine.Connect(cfg.Engine.NATSURL, cfg.Engine.RequestTimeout())
	if err != nil {
		slog.Warn("audit engine unavailable", "url", cfg.Engine.NATSURL, "error", err)
	}
	defer eng.Close()

	srv := server.New(cfg, db, eng)

	if eng != nil {
		consumer, err := eng.StartConsumer(db, srv.Hub())
		if err != nil {
			slog.Error("failed to subscribe to completion events", "error", err)
			os.Exit(1)
		}
		defer consumer.Stop()
	}

	if err := srv.ListenAndServe(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
