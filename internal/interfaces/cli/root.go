// Package cli is the lsoma command line: global flags, configuration and
// logger initialization, and one subcommand per pipeline stage.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/turtacn/lsoma/internal/config"
	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lsoma/internal/infrastructure/storage"
	"github.com/turtacn/lsoma/internal/infrastructure/storage/minio"
	"github.com/turtacn/lsoma/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type cliContextKey struct{}

// RootOptions holds the global flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	Store        storage.Store
	OutputFormat string
}

// NewRootCommand creates the root command with its global flags and every
// subcommand attached.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lsoma",
		Short: "Locate and size elderly-care facility sites from census data",
		Long: "lsoma scores census sections by demographic resonance with a target\n" +
			"profile, clusters the best of them and relaxes the selection constraints\n" +
			"until enough viable facility sites are found.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./lsoma.yaml when present)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error); overrides log.level")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "result format (text, json, table)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "shorthand for --log-level debug")

	cmd.AddCommand(
		newTargetCmd(),
		newMatrixCmd(),
		newScoreCmd(),
		newClusterCmd(),
		newExpandCmd(),
		newVersionCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	switch opts.OutputFormat {
	case "text", "json", "table":
	default:
		return errors.New(errors.ErrCodeBadRequest, "unknown output format").WithDetailf("output=%s", opts.OutputFormat)
	}

	cfg, err := initConfig(opts)
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg, opts)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}

	cc := &CLIContext{Config: cfg, Logger: logger, Store: store, OutputFormat: opts.OutputFormat}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))
	return nil
}

// initConfig loads the flagged file, else ./lsoma.yaml or
// $HOME/.lsoma/config.yaml when present, else environment and defaults.
func initConfig(opts *RootOptions) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.Load(opts.ConfigPath)
	}
	search := []string{"lsoma.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		search = append(search, filepath.Join(home, ".lsoma", "config.yaml"))
	}
	for _, p := range search {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	return config.LoadFromEnv()
}

// initLogger writes to stderr so that results on stdout stay pipeable.
func initLogger(cfg *config.Config, opts *RootOptions) (logging.Logger, error) {
	lc := cfg.Log
	switch {
	case opts.Verbose:
		lc.Level = logging.LevelDebug
	case opts.LogLevel != "":
		lc.Level = opts.LogLevel
	}
	if len(lc.OutputPaths) == 0 {
		lc.OutputPaths = []string{"stderr"}
	}
	l, err := logging.NewLogger(lc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "logger initialization failed")
	}
	return l, nil
}

// initStorage routes local paths to the filesystem and s3:// URIs to MinIO
// when enabled.
func initStorage(ctx context.Context, cfg *config.Config, log logging.Logger) (*storage.Router, error) {
	router := storage.NewRouter(nil)
	if cfg.Storage.MinIO.Enabled {
		store, err := minio.Connect(ctx, cfg.Storage.MinIO, log)
		if err != nil {
			return nil, err
		}
		router.Register(storage.SchemeS3, store)
	}
	return router, nil
}

// GetCLIContext extracts the CLIContext set by the root command.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "command context is nil")
	}
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		return nil, errors.New(errors.ErrCodeInternal, "CLIContext not found in command context")
	}
	return cc, nil
}

// Execute runs the command line with os.Args and returns the process exit
// status.
func Execute(ctx context.Context) int {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		PrintError(root, err)
		return errors.ExitCodeForCode(errors.GetCode(err))
	}
	return 0
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		// Skip config loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "lsoma %s (commit: %s, built: %s)\n", Version, GitCommit, BuildDate)
			return nil
		},
	}
}
