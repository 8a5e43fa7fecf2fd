package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/istrip-bridge/internal/ble"
	"github.com/chaz8081/istrip-bridge/internal/bridge"
	"github.com/chaz8081/istrip-bridge/internal/config"
	"github.com/chaz8081/istrip-bridge/internal/httpapi"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/istrip-bridge/config.yaml)")
	address := flag.String("address", "", "BLE device address (overrides config)")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *address != "" {
		cfg.Device.Address = *address
	}
	if *listen != "" {
		cfg.HTTP.Listen = *listen
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	setupLogging(cfg.LogLevel)
	printBanner(cfg)

	key, err := cfg.KeyBytes()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	adapter := ble.NewBlueZAdapter()
	br, err := bridge.New(adapter, cfg.Device.Address, key, bridge.Options{
		QueueCapacity: cfg.Queue.Capacity,
		Manager: ble.ManagerOptions{
			ServiceUUID:        cfg.Device.ServiceUUID,
			CharacteristicUUID: cfg.Device.CharacteristicUUID,
			BackoffMax:         cfg.Reconnect.MaxBackoffSeconds,
			FailureThreshold:   cfg.Reconnect.FailureThreshold,
			HealthInterval:     time.Duration(cfg.Health.IntervalSeconds) * time.Second,
			WriteRate:          cfg.Write.RatePerSecond,
			WriteBurst:         cfg.Write.Burst,
		},
	})
	if err != nil {
		log.Fatalf("bridge: %v", err)
	}

	if err := br.Start(); err != nil {
		log.Fatalf("bridge start: %v\n\nOn Linux, check that bluetoothd is running and the user is in the bluetooth group.", err)
	}
	log.Printf("Bridge started, connecting to %s", cfg.Device.Address)

	api := httpapi.NewServer(br, adapter)
	srv := &http.Server{Addr: cfg.HTTP.Listen, Handler: api.Handler()}

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("HTTP API listening on %s", cfg.HTTP.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	sig := <-sigCh
	log.Printf("Received %s, shutting down...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if err := br.Close(); err != nil {
		log.Printf("bridge close: %v", err)
	}
	log.Println("Goodbye!")
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// setupLogging points slog (used by the library packages) at the configured level.
func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== istrip-bridge ===")
	fmt.Printf("  Device:  %s\n", cfg.Device.Address)
	fmt.Printf("  Char:    %s\n", cfg.Device.CharacteristicUUID)
	fmt.Printf("  Queue:   %d commands\n", cfg.Queue.Capacity)
	fmt.Printf("  Backoff: up to %ds\n", cfg.Reconnect.MaxBackoffSeconds)
	fmt.Printf("  Health:  every %ds\n", cfg.Health.IntervalSeconds)
	fmt.Printf("  HTTP:    %s\n", cfg.HTTP.Listen)
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("=====================")
}
