package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/supporttools/SQLiteGuard/pkg/adminserver"
	"github.com/supporttools/SQLiteGuard/pkg/backup"
	"github.com/supporttools/SQLiteGuard/pkg/config"
	"github.com/supporttools/SQLiteGuard/pkg/metadata"
	"github.com/supporttools/SQLiteGuard/pkg/scheduler"
	"github.com/supporttools/SQLiteGuard/pkg/version"
)

func main() {
	log.Printf("Starting SQLiteGuard %s...", version.Version)

	config.LoadConfiguration()

	if err := config.ValidateConfig(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	if config.CFG.Debug {
		log.Println("Configuration loaded and validated successfully")
		config.DisplayConfiguration()
	}

	if err := metadata.Initialize(); err != nil {
		log.Fatalf("Failed to initialize metadata store: %v", err)
	}

	backupManager, err := backup.NewManager()
	if err != nil {
		log.Fatalf("Failed to initialize backup manager: %v", err)
	}

	sched, err := scheduler.NewScheduler(backupManager)
	if err != nil {
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}

	if err := sched.SetupJobs(); err != nil {
		log.Fatalf("Failed to setup scheduled jobs: %v", err)
	}

	sched.Start()

	adminSrv := adminserver.NewServer(backupManager, sched)
	httpServer := adminSrv.Start()

	setupSignalHandling(sched, httpServer)

	log.Println("SQLiteGuard is running. Press Ctrl+C to exit.")
	sched.WaitForever()
}

// setupSignalHandling configures graceful shutdown on SIGINT or SIGTERM
func setupSignalHandling(sched *scheduler.Scheduler, httpServer *http.Server) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-c
		fmt.Printf("Received signal %s, shutting down...\n", sig)
		sched.Stop()

		if httpServer != nil {
			if err := httpServer.Close(); err != nil {
				log.Printf("Error shutting down HTTP server: %v", err)
			}
		}

		os.Exit(0)
	}()
}
