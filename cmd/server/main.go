package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"quantgemini/internal/api"
	"quantgemini/internal/config"
	"quantgemini/internal/logging"
	"quantgemini/internal/observability"
	"quantgemini/pkg/quantgemini"
)

var getppid = os.Getppid
var sleep = time.Sleep
var exit = os.Exit

func main() {
	var configPath string
	var dataDir string
	var port int
	var host string
	var webDir string

	flag.StringVar(&configPath, "config", config.DefaultPath(), "Path to the YAML config file")
	flag.StringVar(&dataDir, "data-dir", "", "Directory for storing database and application data")
	flag.IntVar(&port, "port", 8000, "Port to run the server on")
	flag.StringVar(&host, "host", "127.0.0.1", "Host to bind the server to")
	flag.StringVar(&webDir, "web-dir", "", "Directory for SPA static files (optional)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "err", err)
		os.Exit(1)
	}
	// Explicit flags win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = port
		case "host":
			cfg.Server.Host = host
		case "web-dir":
			cfg.Server.WebDir = webDir
		}
	})
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "path", configPath, "err", err)
		os.Exit(1)
	}
	if dataDir != "" {
		config.SetRuntimeDataDir(dataDir)
	}

	resolvedDataDir, err := cfg.DataDirectory()
	if err != nil {
		slog.Error("failed to resolve data directory", "err", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.Log.Level)
	logger, writer, err := logging.NewLogger(filepath.Join(resolvedDataDir, "logs"), level)
	if err != nil {
		slog.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to close log writer", "err", err)
		}
	}()

	dbPath, err := cfg.DBPath()
	if err != nil {
		logger.Error("failed to resolve db path", "err", err)
		os.Exit(1)
	}
	if cfg.AI.GeminiAPIKey == "" {
		logger.Warn("no gemini api key configured; analyses need a per-request api_key")
	}

	metrics := observability.NewMetrics()
	opts := cfg.CoreOptions(dbPath, logger)
	opts.Observer = metrics
	core, err := quantgemini.OpenWithOptions(opts)
	if err != nil {
		logger.Error("failed to initialize core", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Error("failed to close core", "err", err)
		}
	}()

	if os.Getenv("QUANTGEMINI_PARENT_WATCH") == "1" {
		go watchParent(logger)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	handler := api.NewRouter(core, api.Options{
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        metrics,
	})
	if resolvedWebDir := resolveWebDir(cfg.Server.WebDir); resolvedWebDir != "" {
		logger.Info("serving SPA", "web_dir", resolvedWebDir)
		handler = api.WithSPA(handler, resolvedWebDir)
	}
	handler = middleware.Compress(5)(handler)

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// An analysis can run for the whole model timeout.
		WriteTimeout: cfg.AI.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server starting",
		"addr", addr,
		"db_path", dbPath,
		"grounding_model", cfg.AI.GroundingModel,
		"extraction_model", cfg.AI.ExtractionModel,
	)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}
}

func watchParent(logger *slog.Logger) {
	for {
		sleep(1 * time.Second)
		if getppid() == 1 {
			logger.Info("parent process exited; shutting down")
			exit(0)
		}
	}
}

func resolveWebDir(input string) string {
	if input != "" {
		if dirExists(input) {
			return input
		}
		return ""
	}

	candidates := []string{"static", "../static", "web/dist"}
	for _, candidate := range candidates {
		if dirExists(candidate) {
			return candidate
		}
	}
	if exe, err := os.Executable(); err == nil {
		base := filepath.Dir(exe)
		for _, candidate := range candidates {
			path := filepath.Join(base, candidate)
			if dirExists(path) {
				return path
			}
		}
	}
	return ""
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
