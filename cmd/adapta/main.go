package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/thiagofdso/adapta-chat/internal/config"
	"github.com/thiagofdso/adapta-chat/internal/engine"
	"github.com/thiagofdso/adapta-chat/internal/export"
	"github.com/thiagofdso/adapta-chat/internal/metrics"
	"github.com/thiagofdso/adapta-chat/internal/prompt"
	"github.com/thiagofdso/adapta-chat/internal/provider"
	"github.com/thiagofdso/adapta-chat/internal/storage"
	"github.com/thiagofdso/adapta-chat/internal/tracer"
	"github.com/thiagofdso/adapta-chat/web/handlers"
)

var (
	dbPath    string
	cfgPath   string
	mockMode  bool
	debugMode bool
	appConfig *config.Config

	shutdownTracing func(context.Context) error
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "adapta",
	Short: "Multi-agent debate tool",
	Long: `adapta runs structured debates between several AI agents.

Every agent answers the topic in parallel, then refines its answer over a
number of rounds after reading the other agents' latest responses. A manager
backend finally synthesizes one conclusion from all final answers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgPath != "" {
			appConfig, err = config.LoadFrom(cfgPath)
		} else {
			appConfig, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		setupLogging(appConfig.Logging)

		shutdownTracing, err = tracer.Setup(cmd.Context(), appConfig.Tracing)
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdownTracing == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracing(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.adapta/adapta.db)")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default: ~/.adapta/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&mockMode, "mock", false, "Replace every backend with a simulated one")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(debateCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(backendsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

func setupLogging(cfg config.LoggingConfig) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch strings.ToLower(cfg.Level) {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn", "warning":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}
	if debugMode {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func getStorage() (*storage.SQLiteStorage, error) {
	path := dbPath
	if path == "" {
		path = config.ExpandPath(appConfig.Storage.Path)
	}
	if path == "" {
		path = config.DefaultDBPath()
	}

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, err
	}

	if err := store.Initialize(); err != nil {
		store.Close()
		return nil, err
	}

	return store, nil
}

func getRegistry(rec *metrics.Recorder) (*provider.Registry, error) {
	registry, err := provider.NewRegistryFromConfig(appConfig, rec, mockMode)
	if err != nil {
		return nil, err
	}
	if registry.Len() == 0 {
		return nil, errors.New("no backends available: set an API key (see `adapta config init`) or use --mock")
	}
	return registry, nil
}

// ============================================================================
// BACKENDS COMMAND
// ============================================================================

var checkBackends bool

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List available backends in assignment order",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := provider.NewRegistryFromConfig(appConfig, nil, mockMode)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		header := "NAME\tBACKEND\tSTATUS\tMANAGER"
		if checkBackends {
			header += "\tHEALTH"
		}
		fmt.Fprintln(w, header)

		for _, bc := range appConfig.Backends {
			status := "available"
			switch {
			case bc.Disabled:
				status = "disabled"
			case !registry.Has(bc.Name):
				status = "missing " + bc.APIKeyEnv
			}

			manager := ""
			if bc.Name == appConfig.Defaults.Manager {
				manager = "*"
			}

			line := fmt.Sprintf("%s\t%s\t%s\t%s", bc.Name, bc.Summary(), status, manager)
			if checkBackends {
				health := "-"
				if g, err := registry.Get(bc.Name); err == nil {
					hs := provider.HealthCheck(cmd.Context(), g, bc.Timeout)
					health = fmt.Sprintf("ok (%s)", hs.ResponseTime.Round(time.Millisecond))
					if !hs.Available {
						health = "failed: " + hs.Error
					}
				}
				line += "\t" + health
			}
			fmt.Fprintln(w, line)
		}
		return w.Flush()
	},
}

func init() {
	backendsCmd.Flags().BoolVar(&checkBackends, "check", false, "Send a health check prompt to each backend")
}

// ============================================================================
// CONFIG COMMAND
// ============================================================================

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		fmt.Printf("Config file: %s\n\n", path)

		d := appConfig.Defaults
		fmt.Println("Current settings:")
		fmt.Printf("  Agents: %d\n", d.Agents)
		fmt.Printf("  Rounds: %d\n", d.Rounds)
		fmt.Printf("  Manager: %s\n", d.Manager)
		fmt.Printf("  Final round: %s\n", d.FinalRound)
		fmt.Printf("  Output: %s (%s)\n", d.Output, d.Format)
		fmt.Printf("  Database: %s\n", appConfig.Storage.Path)
		fmt.Println("\nBackends:")
		for _, b := range appConfig.Backends {
			status := "enabled"
			if b.Disabled {
				status = "disabled"
			}
			fmt.Printf("  %s: %s %s (timeout: %s)\n", b.Name, b.Summary(), status, b.Timeout)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create example config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}

		if err := os.MkdirAll(dirOf(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(config.GenerateExample()), 0644); err != nil {
			return err
		}

		fmt.Printf("Created config at: %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func dirOf(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i > 0 {
		return path[:i]
	}
	return "."
}

// ============================================================================
// SERVE COMMAND
// ============================================================================

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("port") && appConfig.Server.Port != 0 {
			servePort = appConfig.Server.Port
		}

		store, err := getStorage()
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rec := metrics.NewRecorder(reg)

		registry, err := getRegistry(rec)
		if err != nil {
			return err
		}

		eng, err := newEngine(registry, store, rec, defaultPersister(), engine.Callbacks{})
		if err != nil {
			return err
		}

		fmt.Printf("\nStarting adapta server on http://localhost:%d\n\n", servePort)
		fmt.Println("Available endpoints:")
		fmt.Printf("  GET  http://localhost:%d/api/session  - Current session\n", servePort)
		fmt.Printf("  POST http://localhost:%d/api/session  - Start a debate\n", servePort)
		fmt.Printf("  GET  http://localhost:%d/api/debates  - Archived debates\n", servePort)
		fmt.Printf("  GET  http://localhost:%d/metrics      - Prometheus metrics\n", servePort)
		fmt.Println("\nPress Ctrl+C to stop the server")

		return startServer(cmd.Context(), handlers.New(eng, registry, store, reg), servePort)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8182, "Server port")
}

func startServer(ctx context.Context, h *handlers.Handler, port int) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// newEngine builds a debate engine from the loaded configuration.
func newEngine(registry *provider.Registry, store *storage.SQLiteStorage, rec *metrics.Recorder, persister engine.Persister, cb engine.Callbacks) (*engine.Engine, error) {
	mode, err := prompt.ParseFinalRoundMode(appConfig.Defaults.FinalRound)
	if err != nil {
		return nil, err
	}

	return engine.New(registry, engine.Options{
		Manager:    appConfig.Defaults.Manager,
		FinalRound: mode,
		Store:      store,
		Archive:    store,
		Persister:  persister,
		Metrics:    rec,
		Callbacks:  cb,
	}), nil
}

// defaultPersister writes transcripts where the config says to.
func defaultPersister() *export.FilePersister {
	output := appConfig.Defaults.Output
	if output == "" {
		output = export.DefaultTranscriptPath
	}
	format, err := export.ParseFormat(appConfig.Defaults.Format)
	if err != nil {
		format = export.FormatMarkdown
	}
	return &export.FilePersister{Path: config.ExpandPath(output), Format: format}
}
