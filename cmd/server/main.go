// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/trackbox/internal/api/connect"
	"github.com/osa030/trackbox/internal/app/access"
	"github.com/osa030/trackbox/internal/app/billing"
	"github.com/osa030/trackbox/internal/app/catalog"
	"github.com/osa030/trackbox/internal/app/coordinator"
	"github.com/osa030/trackbox/internal/infra/config"
	"github.com/osa030/trackbox/internal/infra/logger"
	"github.com/osa030/trackbox/internal/infra/media"
	"github.com/osa030/trackbox/internal/infra/metrics"
	"github.com/osa030/trackbox/internal/infra/revenuecat"
	"github.com/osa030/trackbox/internal/infra/settings"
)

var (
	app        = kingpin.New("trackbox-server", "trackbox playback daemon")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: from config)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available access filters and exit")

	// check-catalog command
	checkCatalogCmd = app.Command("check-catalog", "Fetch the catalog from the configured sources and exit")
)

func init() {
	// start command (default)
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override the logging section
	loggerConfig := logger.Config{
		Output: cfg.Logging.Output,
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	zlog.Info().Msgf("Config loaded: path=%s sources=%s", *configPath, strings.Join(cfg.SourceTypes(), ","))

	if command == checkCatalogCmd.FullCommand() {
		if err := checkCatalog(cfg); err != nil {
			zlog.Error().Msgf("Catalog check failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	// Settings store
	store, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open settings store")
	}
	defer store.Close()

	// Catalog sources
	source, err := catalog.NewChainFromConfig(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create catalog sources")
	}
	defer source.Close()

	// Media primitive
	resolver, err := media.NewResolver(cfg.Media)
	if err != nil {
		return errors.Wrap(err, "failed to create media resolver")
	}

	// Billing
	var billingClient billing.Client
	if cfg.Billing.Enabled {
		client, err := revenuecat.New(ctx, revenuecat.Config{
			BaseURL:    cfg.Billing.BaseURL,
			APIKey:     cfg.Billing.APIKey,
			AppUserID:  cfg.Billing.AppUserID,
			Timeout:    cfg.Billing.Timeout,
			MaxRetries: cfg.Billing.MaxRetries,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create billing client")
		}
		billingClient = client
	} else {
		zlog.Info().Msg("Billing disabled, premium modules are locked")
	}

	// Create session manager
	sessionMgr, err := coordinator.NewManager(cfg, coordinator.Options{
		Engine:     media.NewEngine(resolver),
		Source:     source,
		Prefetcher: resolver,
		Settings:   store,
		Billing:    billingClient,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create session manager")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return errors.Wrap(err, "failed to create metrics")
	}
	unsubscribeMetrics := sessionMgr.Playback().Subscribe(m.Observe)
	defer unsubscribeMetrics()

	// Create HTTP mux
	mux := http.NewServeMux()

	if cfg.Server.ControlToken == "" {
		zlog.Warn().Msg("Control token not configured, control API is unauthenticated")
	}
	servicePath, serviceHandler := apiconnect.NewPlayerServiceHandler(
		apiconnect.NewPlayerService(sessionMgr, cfg),
		connect.WithInterceptors(apiconnect.NewControlAuthInterceptor(cfg.Server.ControlToken)),
	)
	mux.Handle(servicePath, m.Middleware(serviceHandler))
	mux.Handle(cfg.Server.MetricsPath, metrics.Handler(registry))

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)

	if err := sessionMgr.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start session")
	}

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s metrics=%s", cfg.Server.Addr, cfg.Server.MetricsPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal, session end, or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-sessionMgr.Done():
		zlog.Info().Msg("Session ended, shutting down...")
	case err := <-serverErrCh:
		sessionMgr.Close()
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close session manager first to terminate active streams
	sessionMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// printFilters prints available access filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, f := range []access.Filter{&access.MediaRefFilter{}, access.NewPremiumFilter(nil, nil)} {
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// checkCatalog fetches the catalog once and prints a summary.
func checkCatalog(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	source, err := catalog.NewChainFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer source.Close()

	res := catalog.NewLoader(source).Load(ctx)
	if res.Failed {
		return res.Err
	}

	fmt.Printf("Modules (%d):\n", res.Catalog.Len())
	for _, m := range res.Catalog.Modules {
		premium := ""
		if m.Premium {
			premium = " [premium]"
		}
		fmt.Printf("  %s: %s%s (tracks: %d, duration: %s)\n", m.ID, m.Name, premium, len(m.Tracks), m.TotalDuration())
	}
	return nil
}
