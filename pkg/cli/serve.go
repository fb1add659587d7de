package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mock-server/mockserver-sub017/pkg/config"
	"github.com/mock-server/mockserver-sub017/pkg/dashboard"
	"github.com/mock-server/mockserver-sub017/pkg/engine"
	"github.com/mock-server/mockserver-sub017/pkg/logging"
)

type serveFlags struct {
	configFile      string
	host            string
	port            int
	logLevel        string
	logFormat       string
	initPath        string
	watch           bool
	persist         bool
	persistedPath   string
	maxExpectations int
	maxLogEntries   int
	noMetrics       bool
	noDashboard     bool
}

// serveFlagVals is the package-level instance bound to cobra flags.
var serveFlagVals serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a mock server (foreground)",
	Long: `Start a mock server in the foreground. The server stops on SIGINT or SIGTERM.

Settings are resolved in this order, later ones winning: built-in defaults,
the --config file, MOCKSERVER_* environment variables, then flags.`,
	Example: `  # Start on the default port 1080
  mockserver serve

  # Load expectations from files and reload them when they change
  mockserver serve --init 'expectations/**/*.json' --watch

  # Persist expectations across restarts
  mockserver serve --persist --persisted-path state.json`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveFlagVals.configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	f.StringVar(&serveFlagVals.host, "host", "", "Listen host")
	f.IntVarP(&serveFlagVals.port, "port", "p", config.DefaultPort, "Listen port")
	f.StringVar(&serveFlagVals.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&serveFlagVals.logFormat, "log-format", "text", "Log format (text, json)")
	f.StringVar(&serveFlagVals.initPath, "init", "", "Initializer files: a path or glob, comma separated")
	f.BoolVar(&serveFlagVals.watch, "watch", false, "Reload initializer files when they change")
	f.BoolVar(&serveFlagVals.persist, "persist", false, "Write expectations to disk on every change")
	f.StringVar(&serveFlagVals.persistedPath, "persisted-path", "", "File expectations are persisted to")
	f.IntVar(&serveFlagVals.maxExpectations, "max-expectations", config.DefaultMaxExpectations, "Maximum stored expectations (0 for unlimited)")
	f.IntVar(&serveFlagVals.maxLogEntries, "max-log-entries", config.DefaultMaxLogEntries, "Maximum recorded requests")
	f.BoolVar(&serveFlagVals.noMetrics, "no-metrics", false, "Disable the Prometheus endpoint")
	f.BoolVar(&serveFlagVals.noDashboard, "no-dashboard", false, "Disable the dashboard stream")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveServeConfig(cmd, os.LookupEnv)
	if err != nil {
		return err
	}

	logs := dashboard.NewLogBroadcaster(logging.ParseLevel(cfg.LogLevel))
	logCfg := cfg.LoggingConfig()
	logCfg.Output = cmd.ErrOrStderr()
	if cfg.Dashboard {
		logCfg.Extra = []slog.Handler{logs}
	}
	log := logging.New(logCfg)

	srv, err := engine.NewServer(cfg,
		engine.WithLogger(log),
		engine.WithLogBroadcaster(logs),
		engine.WithVersion(Version),
	)
	if err != nil {
		return err
	}
	if err := srv.LoadInitializers(); err != nil {
		log.Warn("initializer files not fully loaded", "path", cfg.InitializationPath, "error", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

// resolveServeConfig layers the config file, the environment and the flags
// that were set over the defaults.
func resolveServeConfig(cmd *cobra.Command, lookup func(string) (string, bool)) (*config.ServerConfig, error) {
	cfg := config.Default()
	if serveFlagVals.configFile != "" {
		loaded, err := config.Load(serveFlagVals.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Host = serveFlagVals.host
	}
	if f.Changed("port") {
		cfg.Port = serveFlagVals.port
	}
	if f.Changed("log-level") {
		cfg.LogLevel = serveFlagVals.logLevel
	}
	if f.Changed("log-format") {
		cfg.LogFormat = serveFlagVals.logFormat
	}
	if f.Changed("init") {
		cfg.InitializationPath = serveFlagVals.initPath
	}
	if f.Changed("watch") {
		cfg.WatchInitialization = serveFlagVals.watch
	}
	if f.Changed("persist") {
		cfg.PersistExpectations = serveFlagVals.persist
	}
	if f.Changed("persisted-path") {
		cfg.PersistedExpectationsPath = serveFlagVals.persistedPath
	}
	if f.Changed("max-expectations") {
		cfg.MaxExpectations = serveFlagVals.maxExpectations
	}
	if f.Changed("max-log-entries") {
		cfg.MaxLogEntries = serveFlagVals.maxLogEntries
	}
	if f.Changed("no-metrics") {
		cfg.Metrics = !serveFlagVals.noMetrics
	}
	if f.Changed("no-dashboard") {
		cfg.Dashboard = !serveFlagVals.noDashboard
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
