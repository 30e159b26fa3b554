package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/wfunc/rpserver/config"
	"github.com/wfunc/rpserver/logger"
	"github.com/wfunc/rpserver/monitor"
	"github.com/wfunc/rpserver/persistence"
	"github.com/wfunc/rpserver/server"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize archive database (optional)
	var db persistence.Database
	if cfg.Database.Postgres.Enabled {
		db, err = persistence.NewGormPostgreSQL(
			cfg.Database.Postgres.Host,
			cfg.Database.Postgres.Port,
			cfg.Database.Postgres.User,
			cfg.Database.Postgres.Password,
			cfg.Database.Postgres.DBName,
		)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to database: %v", err)
		}
		logger.Log.Info("Archive database connection successful.")
	} else {
		logger.Log.Info("Archive database disabled, relay runs in-memory only.")
	}

	// Initialize metrics
	mon := monitor.NewMonitor("rpserver")

	// Initialize relay server
	gameServer := server.NewGameServer(cfg, db, mon)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Log.Infof("%v received, shutting down gracefully", sig)
		gameServer.Shutdown()
		logger.Sync()
		os.Exit(0)
	}()

	// Start server
	logger.Log.Infof("Starting %s on %s", cfg.Server.Name, cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
