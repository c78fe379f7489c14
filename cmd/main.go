package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/keiba/internal/config"
	"github.com/okian/keiba/internal/domain/marks"
	"github.com/okian/keiba/internal/domain/race"
	"github.com/okian/keiba/pkg/logger"
	"github.com/okian/keiba/pkg/metrics"
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// cli carries the state shared by the subcommands of one invocation.
type cli struct {
	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "keiba",
		Short: "Collect and reconcile horse race predictions into one record per race",
		Long: `keiba gathers per-race prediction data from several upstream sources,
derives fixed-length rank arrays from them and merges everything into one
record per race, persisted as JSON (or SQLite) with a daily aggregate.

Configuration is read from defaults, an optional YAML file named by
KEIBA_CONFIG and KEIBA_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}
	root.AddCommand(
		c.racesCmd(),
		c.predictionsCmd(),
		c.imagesCmd(),
		c.serveCmd(),
	)
	return root
}

// setup loads configuration and initialises logging.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(logger.WithOutput(cmd.ErrOrStderr()), logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	metrics.Init(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithRefreshInterval(time.Duration(cfg.MetricsRefreshMS)*time.Millisecond),
		metrics.WithConstLabels(cfg.MetricsLabels),
	)
	c.cfg = cfg
	c.log = logger.Get().Named("cli")

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(cmd.Context(), "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}

func (c *cli) racesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "races DATE",
		Short: "Derive the rank fields of every race held on DATE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(args[0])
			if err != nil {
				return err
			}
			return c.run(cmd.Context(), runRaces, date, false)
		},
	}
}

func (c *cli) predictionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predictions DATE",
		Short: "Merge the engine prediction of every race held on DATE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(args[0])
			if err != nil {
				return err
			}
			return c.run(cmd.Context(), runPredictions, date, false)
		},
	}
}

func (c *cli) imagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "images",
		Short: "Read the ai_mark field from the prediction images in image_dir",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd.Context(), runImages, "", true)
		},
	}
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the persisted records and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
}

// parseDate accepts any date form the metadata reader understands.
func parseDate(s string) (string, error) {
	d, err := marks.NormalizeDate(s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	if err := race.ValidateDate(d); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}
