package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"deployhook/internal/config"
	"deployhook/internal/history"
	"deployhook/internal/notify"
	"deployhook/internal/security"
	"deployhook/internal/server"
	"deployhook/pkg/fileutil"

	"github.com/m-mizutani/masq"
	"github.com/spf13/cobra"
)

var (
	configFile      string
	logFile         string
	dbPath          string
	host            string
	port            int
	shutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the HTTP server to receive GitHub webhook deliveries.

Each accepted delivery synchronizes the repository's working copy with its remote
branch and, when configured, runs the deployment command in the background.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	addConfigFlag(serveCmd)
	serveCmd.Flags().StringVar(&logFile, "log", getEnvOrDefault("DEPLOYHOOK_LOG_FILE", ""), "Also append logs to this file")
	serveCmd.Flags().StringVar(&dbPath, "db", getEnvOrDefault("DEPLOYHOOK_DB_PATH", "./deliveries.db"), "Path to SQLite delivery history (empty disables history)")
	serveCmd.Flags().StringVar(&host, "host", getEnvOrDefault("DEPLOYHOOK_HOST", ""), "Host to bind to (overrides config)")
	serveCmd.Flags().IntVarP(&port, "port", "p", getEnvOrDefaultInt("DEPLOYHOOK_PORT", 0), "Port to listen on (overrides config)")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "How long to wait for running commands on shutdown")
}

func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&configFile, "config", "c", getEnvOrDefault("DEPLOYHOOK_CONFIG_FILE", ""), "Path to config.toml (or .yaml) configuration file")
}

func runServe(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	logger, closeLog, err := setupLogging(logFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer closeLog()

	logger.Info("Starting deployhook", "version", version)

	logger.Info("Loading configuration", "config", path)
	cfg, warnings, err := config.LoadConfig(path)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	for _, w := range warnings {
		logger.Warn(w)
	}
	applyOverrides(cfg)

	logger.Info("Configuration validated successfully", "count", len(cfg.Repos))
	if len(cfg.Repos) == 0 {
		logger.Warn("No repositories configured in config file", "config", path)
		logger.Warn("The server will start but won't handle any deliveries until repositories are added")
	}
	for _, repo := range cfg.Repos {
		logger.Info("Repository configured", "repo", repo)
	}

	srv := server.NewServer(cfg, logger)

	if dbPath != "" {
		logger.Info("Initializing history database", "db", dbPath)
		hist, err := history.NewHistory(dbPath)
		if err != nil {
			logger.Error("Failed to initialize history database", "error", err)
			return fmt.Errorf("failed to initialize history database: %w", err)
		}
		srv.History = hist
	} else {
		logger.Info("Delivery history disabled")
	}

	if cfg.GitHubToken != "" {
		reporter, err := notify.NewReporter(cfg.GitHubToken, cfg.GitHubAPIURL, logger)
		if err != nil {
			return fmt.Errorf("failed to configure commit statuses: %w", err)
		}
		srv.Reporter = reporter
		logger.Info("Commit status reporting enabled")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx, cfg.Host, cfg.Port, shutdownTimeout); err != nil {
		logger.Error("Server failed", "error", err)
		return err
	}

	logger.Info("Stopped")
	return nil
}

// resolveConfigPath returns the --config value or the first default location
// that exists.
func resolveConfigPath(stderr io.Writer) (string, error) {
	if configFile != "" {
		return configFile, nil
	}

	searchPaths := fileutil.DefaultConfigCandidates()
	if path := fileutil.SearchPathsOptional(searchPaths); path != "" {
		return path, nil
	}

	fmt.Fprintf(stderr, "Error: No configuration file found in default locations:\n")
	for _, path := range searchPaths {
		fmt.Fprintf(stderr, "  - %s\n", path)
	}
	fmt.Fprintf(stderr, "Use --config flag to specify a custom location\n")
	return "", fmt.Errorf("configuration file not found")
}

// applyOverrides lets flags and the environment take precedence over the file.
func applyOverrides(cfg *config.Config) {
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}
	if token := os.Getenv("DEPLOYHOOK_GITHUB_TOKEN"); token != "" {
		cfg.GitHubToken = token
	}
}

// setupLogging configures a JSON slog logger writing to stdout and, when
// logPath is set, appending to that file. Secret-tagged fields are masked.
func setupLogging(logPath string) (*slog.Logger, func(), error) {
	var out io.Writer = os.Stdout
	closeFn := func() {}

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), security.PermDirectory); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, security.PermLogFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}

		out = io.MultiWriter(os.Stdout, file)
		closeFn = func() { file.Close() }
	}

	return newLogger(out), closeFn, nil
}

// newLogger returns a JSON logger that masks fields tagged masq:"secret".
func newLogger(out io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: masq.New(masq.WithTag("secret")),
	}))
}

// Helper functions for environment variables
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
