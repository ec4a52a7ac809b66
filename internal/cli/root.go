package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/procwatch/internal/config"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	var (
		configFile  string
		logLevel    = envOr("PROCWATCH_LOG_LEVEL", "info")
		logFormat   = envOr("PROCWATCH_LOG_FORMAT", logFormatAuto)
		metricsAddr = os.Getenv("PROCWATCH_METRICS_ADDR")
	)

	ctx := &context{
		configFile:  &configFile,
		logLevel:    &logLevel,
		logFormat:   &logFormat,
		metricsAddr: &metricsAddr,
		runID:       uuid.NewString(),
	}

	root := &cobra.Command{
		Use:   "procwatch",
		Short: "Kill processes that stop showing signs of life",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
			if err != nil {
				return err
			}
			ctx.logger = logger.With("run_id", ctx.runID)
			return nil
		},
	}

	root.PersistentFlags().
		StringVarP(&configFile, "file", "f", "procwatch.yaml", "Path to watch definition")
	root.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", logFormat, "Log format (auto, text, json)")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", metricsAddr, "Serve Prometheus metrics on this address while running")

	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newUpCmd(ctx))
	root.AddCommand(newAttachCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return
	}
	stop()

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintln(os.Stderr, exit.err)
		}
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

type context struct {
	configFile  *string
	logLevel    *string
	logFormat   *string
	metricsAddr *string
	runID       string

	logger *slog.Logger
}

func (c *context) loadConfig() (*config.File, error) {
	return config.Load(*c.configFile)
}

func (c *context) log() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// exitError makes Execute exit with code. err, when set, is printed first.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
