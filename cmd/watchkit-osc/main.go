package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"watchkit/internal/ble"
	"watchkit/internal/config"
	"watchkit/internal/gesture"
	"watchkit/internal/oscbridge"
	"watchkit/internal/watch"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/watchkit/config.yaml)")
	nameFilter := flag.String("name-filter", "", "only connect to watches whose name contains this string")
	clientPort := flag.Int("client-port", 0, "UDP port OSC events are sent to (overrides config)")
	serverPort := flag.Int("server-port", 0, "UDP port /vib messages are received on (overrides config)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	testMode := flag.Bool("test", false, "stream synthetic data instead of connecting to a watch")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Flags override the file.
	if *nameFilter != "" {
		cfg.Watch.NameFilter = *nameFilter
	}
	if *clientPort != 0 {
		cfg.OSC.ClientPort = *clientPort
	}
	if *serverPort != 0 {
		cfg.OSC.ServerPort = *serverPort
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	printBanner(cfg, *testMode)

	var adapter ble.Adapter
	if *testMode {
		adapter = ble.NewSyntheticAdapter("")
	} else {
		adapter = ble.NewTinyGoAdapter()
	}

	session := watch.NewSession(adapter, watch.Options{
		NameFilter:   cfg.Watch.NameFilter,
		ScanTimeout:  cfg.Watch.ScanTimeout(),
		ReconnectMax: cfg.Watch.ReconnectMax,
		ClientName:   cfg.Watch.ClientName,
		Gesture: gesture.Config{
			TapWindow: cfg.Gesture.TapTimeout(),
			Flick: gesture.FlickConfig{
				InitiationThreshold: cfg.Gesture.FlickThreshold,
				Delay:               cfg.Gesture.FlickDelay(),
				Scale:               cfg.Gesture.FlickScale,
				LeftHanded:          cfg.Gesture.LeftHanded,
				ScreenRotated:       cfg.Gesture.ScreenRotated,
			},
		},
	})

	bridge := oscbridge.New(oscbridge.Config{
		Host:       cfg.OSC.Host,
		ClientPort: cfg.OSC.ClientPort,
		ServerPort: cfg.OSC.ServerPort,
	}, session)
	bridge.Attach(session.Dispatcher())

	if err := bridge.Start(); err != nil {
		log.Fatalf("osc: %v", err)
	}
	defer bridge.Stop()

	if err := session.Start(context.Background()); err != nil {
		log.Fatalf("session: %v", err)
	}

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
		session.Stop()
	case <-session.Done():
		if err := session.Err(); err != nil {
			bridge.Stop()
			log.Fatalf("session: %v", err)
		}
	}
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

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config, testMode bool) {
	fmt.Println("=== watchkit-osc ===")
	if testMode {
		fmt.Println("  Source:  synthetic (test mode)")
	} else if cfg.Watch.NameFilter != "" {
		fmt.Printf("  Source:  watch matching %q\n", cfg.Watch.NameFilter)
	} else {
		fmt.Println("  Source:  first compatible watch")
	}
	fmt.Printf("  OSC out: %s:%d\n", cfg.OSC.Host, cfg.OSC.ClientPort)
	fmt.Printf("  OSC in:  :%d\n", cfg.OSC.ServerPort)
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("====================")
}
