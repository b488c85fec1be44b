package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/PDB-Sieve/internal/config"
	"github.com/turtacn/PDB-Sieve/internal/domain/webfilter"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/storage/minio"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// BuildInfo holds version information injected at build time.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	NoColor      bool
	NoCache      bool
	Timeout      time.Duration
	BaseURL      string
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config       *config.Config
	ConfigPath   string
	Logger       logging.Logger
	Metrics      *prom.SieveMetrics
	Collector    prom.MetricsCollector
	OutputFormat string
	Verbose      bool
	NoColor      bool
	Timeout      time.Duration

	search    webfilter.SearchService
	objects   *minio.MinIOClient
	publisher *kafka.Producer
	noCache   bool
	closers   []func() error
	override  webfilter.SearchService
	objectAPI minio.ObjectAPI
	writer    kafka.WriterInterface
}

// Option customizes the root command.  Used by tests and embedders.
type Option func(*rootState)

type rootState struct {
	search    webfilter.SearchService
	objectAPI minio.ObjectAPI
	writer    kafka.WriterInterface
}

// WithSearchService replaces the configured remote search service.
func WithSearchService(svc webfilter.SearchService) Option {
	return func(s *rootState) { s.search = svc }
}

// WithObjectAPI replaces the S3 endpoint behind s3:// inputs and exports.
func WithObjectAPI(api minio.ObjectAPI) Option {
	return func(s *rootState) { s.objectAPI = api }
}

// WithKafkaWriter replaces the broker connection of the retained-structure
// publisher.
func WithKafkaWriter(w kafka.WriterInterface) Option {
	return func(s *rootState) { s.writer = w }
}

// NewRootCommand creates the root command with its global flags and
// subcommands.
func NewRootCommand(options ...Option) *cobra.Command {
	opts := &RootOptions{}
	state := &rootState{}
	for _, o := range options {
		o(state)
	}

	cmd := &cobra.Command{
		Use:   "pdbsieve",
		Short: "pdbsieve selects macromolecular structure records by chain type, method and remote search",
		Long: "pdbsieve evaluates structure-record predicates over JSON Lines record files.\n" +
			"Predicates cover polymer chain linkage types, experimental methods and\n" +
			"RCSB PDB advanced or chemical structure searches.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts, state)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPostRun(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./pdbsieve.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json, table)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	pf.BoolVar(&opts.NoCache, "no-cache", false, "bypass the redis query cache")
	pf.DurationVar(&opts.Timeout, "timeout", 10*time.Minute, "global operation timeout")
	pf.StringVar(&opts.BaseURL, "search-url", "", "search service base URL (overrides config)")

	cmd.AddCommand(
		NewFilterCmd(),
		NewQueryCmd(),
		NewCacheCmd(),
		NewVersionCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions, state *rootState) error {
	switch strings.ToLower(opts.OutputFormat) {
	case "text", "json", "table":
	default:
		return errors.Newf(errors.CodeInvalidParam, "unsupported output format %q", opts.OutputFormat)
	}
	if opts.NoColor {
		color.NoColor = true
	}

	cfg, path, err := initConfig(opts)
	if err != nil {
		return errors.Wrap(err, errors.CodeUnknown, "config initialization failed")
	}

	logger, err := initLogger(cmd, cfg, path, opts)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "logger initialization failed")
	}
	logging.SetDefault(logger)

	cliCtx := &CLIContext{
		Config:       cfg,
		ConfigPath:   path,
		Logger:       logger,
		OutputFormat: strings.ToLower(opts.OutputFormat),
		Verbose:      opts.Verbose,
		NoColor:      opts.NoColor,
		Timeout:      opts.Timeout,
		noCache:      opts.NoCache,
		override:     state.search,
		objectAPI:    state.objectAPI,
		writer:       state.writer,
	}

	if err := initMetrics(cliCtx); err != nil {
		return err
	}

	if path != "" {
		if err := config.Watch(path, logger, func(c *config.Config) {
			if !cmd.Flags().Changed("log-level") && !opts.Verbose {
				logger.SetLevel(c.Log.Level)
			}
		}); err != nil {
			logger.Warn("config watch disabled", logging.Err(err))
		}
	}

	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
	return nil
}

func persistentPostRun(cmd *cobra.Command) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil
	}
	return cliCtx.Close()
}

// Close releases connections and servers opened for the command.
func (c *CLIContext) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	_ = c.Logger.Sync()
	return first
}

func (c *CLIContext) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// initConfig loads configuration with priority flags > env > file > defaults.
// It returns the path of the file used, if any.
func initConfig(opts *RootOptions) (*config.Config, string, error) {
	path := opts.ConfigPath
	if path == "" {
		searchPaths := []string{"./pdbsieve.yaml"}
		if home, err := os.UserHomeDir(); err == nil {
			searchPaths = append(searchPaths, filepath.Join(home, ".pdbsieve", "config.yaml"))
		}
		searchPaths = append(searchPaths, "/etc/pdbsieve/config.yaml")
		for _, p := range searchPaths {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
				break
			}
		}
	}

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, "", err
	}
	if opts.BaseURL != "" {
		cfg.Search.BaseURL = opts.BaseURL
		if err := cfg.Validate(); err != nil {
			return nil, "", err
		}
	}
	return cfg, path, nil
}

// initLogger creates a console logger on stderr so stdout carries only
// command results.
func initLogger(cmd *cobra.Command, cfg *config.Config, path string, opts *RootOptions) (logging.Logger, error) {
	level := cfg.Log.Level
	if cmd.Flags().Changed("log-level") || level == "" {
		level = strings.ToLower(opts.LogLevel)
	}
	if opts.Verbose {
		level = logging.LevelDebug
	}
	format := cfg.Log.Format
	if path == "" && os.Getenv("PDBSIEVE_LOG_FORMAT") == "" {
		format = "console"
	}

	return logging.NewLogger(logging.LogConfig{
		Level:       level,
		Format:      format,
		OutputPaths: cfg.Log.OutputPaths,
	})
}

// GetCLIContext extracts CLIContext from a cobra command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.ErrCodeValidation, "command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New(errors.ErrCodeValidation, "CLIContext not found in command context")
	}
	return cliCtx, nil
}

// Execute is the main entry point for the CLI application.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}
