package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mostlygeek/pubsub/config"
	"github.com/mostlygeek/pubsub/event"
	"github.com/mostlygeek/pubsub/logmon"
	"github.com/mostlygeek/pubsub/script"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newRootCmd() *cobra.Command {
	var configPath, logLevel string

	root := &cobra.Command{
		Use:           "pubsubctl",
		Short:         "Replay publish/subscribe scenarios against an in-process dispatcher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (.yaml, .yml or .toml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace|debug|info|warn|error (overrides config)")

	loadConfig := func() (config.Config, error) {
		cfg := config.Default()
		if configPath != "" {
			var err error
			if cfg, err = config.LoadConfig(configPath); err != nil {
				return cfg, fmt.Errorf("error loading config: %w", err)
			}
		}
		if logLevel != "" {
			level := strings.ToLower(logLevel)
			if _, err := zerolog.ParseLevel(level); err != nil {
				return cfg, fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
			}
			cfg.LogLevel = level
		}
		return cfg, nil
	}

	var dumpMetrics bool
	var historyPath string
	runCmd := &cobra.Command{
		Use:     "run <script>",
		Short:   "Run a scenario script and print every handler call as a JSON line",
		Example: "  pubsubctl run script/testdata/click.yaml --metrics",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runScript(cmd.Context(), cfg, runOptions{
				scriptPath:  args[0],
				metrics:     dumpMetrics || cfg.Metrics.Enabled,
				historyPath: historyPath,
				stdout:      cmd.OutOrStdout(),
				stderr:      cmd.ErrOrStderr(),
			})
		},
	}
	runCmd.Flags().BoolVar(&dumpMetrics, "metrics", false, "print dispatcher metrics after the run")
	runCmd.Flags().StringVar(&historyPath, "log-history", "", "write the log output of the run to this file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version of build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "version: %s (%s), built at %s\n", version, commit, date)
		},
	}

	root.AddCommand(runCmd, versionCmd)
	return root
}

type runOptions struct {
	scriptPath  string
	metrics     bool
	historyPath string
	stdout      io.Writer
	stderr      io.Writer
}

func runScript(ctx context.Context, cfg config.Config, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := script.Load(opts.scriptPath)
	if err != nil {
		return err
	}

	logMonitor := logmon.NewLogMonitorWriter(opts.stderr)
	logger := cfg.NewLogger(logMonitor)

	var runner *script.Runner
	dispatcherOpts := []event.Option{
		event.WithLogger(logger.With().Str("component", "event").Logger()),
		event.WithErrorHandler(func(herr *event.HandlerError) { runner.ErrorHook()(herr) }),
	}

	reg := prometheus.NewRegistry()
	if opts.metrics {
		m, err := event.NewMetrics(reg, cfg.Metrics.Namespace)
		if err != nil {
			return err
		}
		dispatcherOpts = append(dispatcherOpts, event.WithMetrics(m))
	}

	if cfg.Tracing.Enabled {
		tp, err := newTracerProvider(ctx, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("error setting up tracing: %w", err)
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("tracer shutdown failed")
			}
		}()
		dispatcherOpts = append(dispatcherOpts, event.WithTracer(tp.Tracer("pubsubctl")))
	}

	runner = script.NewRunner(event.NewDispatcher(dispatcherOpts...), opts.stdout)
	logger.Debug().Str("script", opts.scriptPath).Int("steps", len(s.Steps)).Msg("running script")

	result, runErr := runner.Run(s)
	logger.Info().
		Int("calls", len(result.Calls)).
		Int("rejected", result.Rejected).
		Int("failures", result.Failures).
		Msg("script finished")

	if opts.metrics {
		if err := writeMetrics(opts.stdout, reg); err != nil {
			return err
		}
	}

	if opts.historyPath != "" {
		if err := os.WriteFile(opts.historyPath, logMonitor.GetHistory(), 0o644); err != nil {
			return fmt.Errorf("error writing log history: %w", err)
		}
	}
	return runErr
}

func writeMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func newTracerProvider(ctx context.Context, cfg config.TracingConfig) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
	), nil
}
