// BattleSpy - Battlefield 2 Online Services
// A self-hosted rewrite of the legacy GameSpy backend in Go.
//
// BattleSpy runs the five protocol services the game expects — login,
// profile search, the master server directory, list retrieval and CD-key
// validation — backed by a single SQLite database, plus a REST API for
// community sites and optional MQTT telemetry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/battlespy-project/battlespy/internal/api"
	"github.com/battlespy-project/battlespy/internal/cli"
	"github.com/battlespy-project/battlespy/internal/config"
	"github.com/battlespy-project/battlespy/internal/db"
	"github.com/battlespy-project/battlespy/internal/geo"
	"github.com/battlespy-project/battlespy/internal/license"
	"github.com/battlespy-project/battlespy/internal/login"
	"github.com/battlespy-project/battlespy/internal/master"
	"github.com/battlespy-project/battlespy/internal/metrics"
	"github.com/battlespy-project/battlespy/internal/search"
	"github.com/battlespy-project/battlespy/internal/telemetry"
	"github.com/battlespy-project/battlespy/internal/util"
)

const (
	AppName    = "BattleSpy"
	AppVersion = "1.0.0"
	Banner     = `
  ____        _   _   _      ____
 | __ )  __ _| |_| |_| | ___/ ___| _ __  _   _
 |  _ \ / _' | __| __| |/ _ \___ \| '_ \| | | |
 | |_) | (_| | |_| |_| |  __/___) | |_) | |_| |
 |____/ \__,_|\__|\__|_|\___|____/| .__/ \__, |
                                  |_|    |___/  v%s
 Battlefield 2 Online Services
`
)

func main() {
	// Print banner
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (will be reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting BattleSpy")

	// Load configuration
	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	logCfg := util.LogConfig{
		Level:      cfg.ApplicationData.Logging.Level,
		Directory:  cfg.ApplicationData.Logging.Directory,
		MaxSizeMB:  cfg.ApplicationData.Logging.MaxSizeMB,
		MaxBackups: cfg.ApplicationData.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	// Validate configuration
	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	// Log system info
	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	gamespy := cfg.GetGamespy()

	// Open the account/server database
	database, err := db.NewDatabase(gamespy.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", gamespy.DatabasePath).Msg("failed to open database")
	}
	defer database.Close()

	accounts, err := db.NewAccountStore(database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize account store")
	}
	serverStore, err := db.NewServerStore(database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize server store")
	}

	// Country resolution. The ip2nation database is optional; without it
	// every client resolves to the unknown country.
	var resolver geo.Resolver = geo.StaticResolver("")
	if gamespy.GeoDatabasePath != "" {
		geoDB, err := db.NewDatabase(gamespy.GeoDatabasePath)
		if err != nil {
			log.Warn().Err(err).Str("path", gamespy.GeoDatabasePath).
				Msg("failed to open geoip database, country resolution disabled")
		} else {
			defer geoDB.Close()
			resolver = geo.NewIP2NationResolver(geoDB)
		}
	} else {
		log.Warn().Msg("no geoip database configured, country resolution disabled")
	}

	m := metrics.New()

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the protocol services
	loginSrv := login.NewServer(login.Options{
		Addr:                cfg.Addr(gamespy.LoginPort),
		MaxClients:          gamespy.MaxLoginClients,
		FullMessage:         gamespy.ServerFullMessage,
		LoginTimeout:        time.Duration(gamespy.LoginTimeoutSec) * time.Second,
		KeepAliveInterval:   time.Duration(gamespy.KeepAliveIntervalSec) * time.Second,
		StatusFlushInterval: time.Duration(gamespy.StatusFlushIntervalSec) * time.Second,
	}, accounts, resolver, m)

	searchSrv := search.NewServer(cfg.Addr(gamespy.SearchPort), accounts, m)

	masterSrv := master.NewServer(master.Options{
		UDPAddr:       cfg.Addr(gamespy.MasterPort),
		ListAddr:      cfg.Addr(gamespy.ListPort),
		Workers:       gamespy.MasterWorkers,
		ServerTTL:     time.Duration(gamespy.ServerTTLSec) * time.Second,
		SweepInterval: time.Duration(gamespy.MasterSweepIntervalSec) * time.Second,
	}, serverStore, resolver, m)

	licenseSrv := license.NewServer(cfg.Addr(gamespy.CDKeyPort), gamespy.MasterWorkers, m)

	// Initialize REST API
	apiServer := api.NewServer(cfg, loginSrv, masterSrv, accounts, m)

	// Initialize MQTT telemetry
	var mqttPublisher *telemetry.MQTTPublisher
	if cfg.ApplicationData.MQTT.Enabled {
		mqttPublisher, err = telemetry.NewMQTTPublisher(cfg, func() telemetry.Snapshot {
			processing, authenticated := loginSrv.Counts()
			numAccounts, err := accounts.NumAccounts()
			if err != nil {
				log.Debug().Err(err).Msg("account count unavailable for telemetry")
			}
			return telemetry.Snapshot{
				SessionsOnline: authenticated,
				LoginsPending:  processing,
				ServersOnline:  masterSrv.Registry().Len(),
				Accounts:       numAccounts,
			}
		})
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	// Initialize CLI
	cliHandler := cli.NewCLI(cfg, accounts, loginSrv, masterSrv, cancel)

	// ---------------------------------------------------------------
	// Launch all concurrent tasks (the five protocol listeners plus
	// the REST API, MQTT telemetry and the operator console)
	// ---------------------------------------------------------------
	var wg sync.WaitGroup
	errCh := make(chan error, 10)

	// Task 1: Login service (fatal: without it nobody can play)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", gamespy.LoginPort).Msg("starting login service")
		if err := startWithRetry(ctx, "login service", loginSrv.Start, 15); err != nil {
			log.Error().Err(err).Msg("login service failed after retries")
			errCh <- fmt.Errorf("login service: %w", err)
		}
	}()

	// Task 2: Profile search service
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", gamespy.SearchPort).Msg("starting profile search service")
		if err := startWithRetry(ctx, "profile search", searchSrv.Start, 15); err != nil {
			log.Warn().Err(err).Msg("profile search service failed after retries (non-fatal)")
		}
	}()

	// Task 3: Master server heartbeat listener (fatal: the directory is the
	// point of the suite)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", gamespy.MasterPort).Msg("starting master server directory")
		if err := startWithRetry(ctx, "master directory", masterSrv.StartUDP, 15); err != nil {
			log.Error().Err(err).Msg("master directory failed after retries")
			errCh <- fmt.Errorf("master directory: %w", err)
		}
	}()

	// Task 4: Server list retrieval endpoint
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", gamespy.ListPort).Msg("starting server list endpoint")
		if err := startWithRetry(ctx, "server list", masterSrv.StartList, 15); err != nil {
			log.Warn().Err(err).Msg("server list endpoint failed after retries (non-fatal)")
		}
	}()

	// Task 5: CD-key validation service
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", gamespy.CDKeyPort).Msg("starting CD-key service")
		if err := startWithRetry(ctx, "CD-key service", licenseSrv.Start, 15); err != nil {
			log.Warn().Err(err).Msg("CD-key service failed after retries (non-fatal)")
		}
	}()

	// Task 6: REST API server
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", gamespy.APIPort).Msg("starting REST API server")
		if err := startWithRetry(ctx, "API server", apiServer.Start, 15); err != nil {
			log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
		}
	}()

	// Task 7: MQTT telemetry
	if mqttPublisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttPublisher.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	// Task 8: Interactive operator console
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting operator console")
		cliHandler.Start(ctx)
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	case <-ctx.Done():
		// Console quit command
	}

	log.Info().Msg("initiating graceful shutdown...")

	// Cancel the root context to signal all goroutines
	cancel()

	// Wait for all goroutines with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	log.Info().Msg("BattleSpy stopped")
}

// startWithRetry attempts to start a listener/server with retry on bind errors.
// Uses a fixed 3-second interval between retries. This gives enough time
// for the OS to release sockets after a process is force-killed.
// Returns nil on success, or the last error after all retries fail.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			time.Sleep(3 * time.Second)
		}
	}
	return lastErr
}
