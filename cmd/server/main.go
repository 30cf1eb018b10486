package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/olneyjr/flightdeck/internal/api"
	"github.com/olneyjr/flightdeck/internal/config"
	"github.com/olneyjr/flightdeck/internal/metrics"
	"github.com/olneyjr/flightdeck/internal/opensky"
	"github.com/olneyjr/flightdeck/internal/pipeline"
	"github.com/olneyjr/flightdeck/internal/storage/sqlite"
	"github.com/olneyjr/flightdeck/internal/websocket"
	"github.com/olneyjr/flightdeck/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting flightdeck server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Daily database file
	today := time.Now().Format("2006-01-02")
	dbFilename := fmt.Sprintf("flightdeck-%s.db", today)
	dbPath := filepath.Join(cfg.Storage.SQLiteBasePath, dbFilename)

	if err := os.MkdirAll(cfg.Storage.SQLiteBasePath, 0755); err != nil {
		log.Error("Failed to create database directory", logger.Error(err), logger.String("path", cfg.Storage.SQLiteBasePath))
		os.Exit(1)
	}

	storage, err := sqlite.NewSnapshotStorage(dbPath, log)
	if err != nil {
		log.Error("Failed to create SQLite storage", logger.Error(err))
		os.Exit(1)
	}
	defer storage.Close()
	log.Info("Using SQLite storage", logger.String("path", dbPath))

	// WebSocket server
	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	// Prometheus instruments
	collector := metrics.New()

	// OpenSky API client
	client := opensky.NewClient(opensky.Config{
		BaseURL:  cfg.OpenSky.APIBaseURL,
		TokenURL: cfg.OpenSky.TokenURL,
		Credentials: opensky.Credentials{
			ClientID:     cfg.OpenSky.ClientID,
			ClientSecret: cfg.OpenSky.ClientSecret,
		},
		Timeout: time.Duration(cfg.OpenSky.RequestTimeoutSecs) * time.Second,
	}, log)

	// Collection pipeline
	regions := make(map[string]opensky.BoundingBox, len(cfg.Pipeline.Regions))
	for name, region := range cfg.Pipeline.Regions {
		regions[name] = opensky.BoundingBox{
			LatMin: region.LatMin,
			LatMax: region.LatMax,
			LonMin: region.LonMin,
			LonMax: region.LonMax,
		}
	}

	pipelineService := pipeline.NewService(
		client,
		storage,
		regions,
		time.Duration(cfg.Pipeline.FetchIntervalSecs)*time.Second,
		wsServer,
		collector,
		log,
	)

	if err := pipelineService.Start(); err != nil {
		log.Error("Failed to start collection service", logger.Error(err))
		os.Exit(1)
	}

	// API router
	router := api.NewRouter(pipelineService, storage, cfg, wsServer, collector.Handler(), log)

	// One HTTP server per configured port
	var servers []*http.Server
	allPorts := []int{cfg.Server.Port}
	if len(cfg.Server.AdditionalPorts) > 0 {
		allPorts = append(allPorts, cfg.Server.AdditionalPorts...)
	}

	log.Info("Configured listener ports", logger.Any("ports", allPorts))

	for _, port := range allPorts {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, port)
		server := &http.Server{
			Addr:         addr,
			Handler:      router.Routes(),
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		}
		servers = append(servers, server)

		go func(s *http.Server) {
			log.Info("Starting HTTP server", logger.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP server error on startup", logger.String("addr", s.Addr), logger.Error(err))
			}
		}(server)
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	log.Info("Stopping collection service...")
	pipelineService.Stop()
	log.Info("Collection service stopped.")

	// Shutdown all HTTP servers
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("HTTP server shutdown error", logger.String("addr", srv.Addr), logger.Error(err))
			} else {
				log.Info("HTTP server shutdown complete", logger.String("addr", srv.Addr))
			}
		}(s)
	}
	wg.Wait()

	log.Info("Server fully stopped")
}
