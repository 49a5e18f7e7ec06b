package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Swind/go-frame-observer/config"
	"github.com/Swind/go-frame-observer/core"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "fanoutd",
		Short:         "Frame observer fanout daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (.toml, .yaml, .json); built-in defaults when empty")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level override: debug|info|warn|error")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline and serve /metrics and /debug endpoints until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, cfg, logger)
		},
	}

	var format string
	configCmd := &cobra.Command{
		Use:     "config",
		Short:   "Print the effective configuration",
		Example: "  fanoutd config\n  fanoutd --config fanoutd.yaml config --format json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			b, err := cfg.Marshal(format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	configCmd.Flags().StringVar(&format, "format", "toml", "Output format: toml|yaml|json")

	root.AddCommand(runCmd, configCmd)
	return root
}

// load returns the file config (or defaults) with flag overrides applied.
func (o *rootOptions) load() (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newLogger builds the zerolog logger described by cfg.
func newLogger(cfg config.Config, w io.Writer) (*core.ZerologLogger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if w == nil {
		w = os.Stderr
	}
	if cfg.LogFormat == "console" {
		return core.NewConsoleLogger(w, level), nil
	}
	zl := zerolog.New(w).Level(level).With().Timestamp().Str("service", "fanoutd").Logger()
	return core.NewZerologLogger(zl), nil
}

func runDaemon(ctx context.Context, cfg config.Config, logger *core.ZerologLogger) error {
	d, err := newDaemon(cfg, logger)
	if err != nil {
		return err
	}
	return d.Run(ctx)
}
