package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime/pprof"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-kernels/internal/envconfig"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	otel        bool
	cpuProfile  string
	metricsAddr string
	threads     int
	tuning      bool
	tunedParams string
	obfuscate   bool
	debug       bool

	closers []func()
}

func main() {
	// Initialize logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	cmd, opts := NewCLI()
	err := cmd.ExecuteContext(context.Background())
	opts.teardown()
	cobra.CheckErr(err)
}

// NewCLI builds the command tree. The returned options must be torn down
// after the command has run.
func NewCLI() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "kernelbench",
		Short:         "Run, verify and benchmark tensor kernels",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&opts.otel, "otel", false, "Enable OpenTelemetry tracing (stdout)")
	flags.StringVar(&opts.cpuProfile, "cpuprofile", "", "Write cpu profile to file")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9100)")
	flags.IntVar(&opts.threads, "threads", int(envconfig.Threads()), "Worker threads for CPU kernels (0 uses GOMAXPROCS)")
	flags.BoolVar(&opts.tuning, "tuning", envconfig.Tuning(), "Search local work sizes on first launch")
	flags.StringVar(&opts.tunedParams, "tuned-params", envconfig.TunedParams(), "File tuned local work sizes are loaded from and saved to")
	flags.BoolVar(&opts.obfuscate, "obfuscate", envconfig.Obfuscate(), "Hash kernel entry point names")
	flags.BoolVar(&opts.debug, "debug", envconfig.Debug(), "Show debug logging")

	rootCmd.AddCommand(
		newReduceCmd(opts),
		newConvCmd(opts),
		newSplitCmd(opts),
		newLWSCmd(),
		newGenCmd(),
		newEnvCmd(),
		newServeCmd(opts),
	)
	return rootCmd, opts
}

func (o *rootOptions) setup() error {
	level := envconfig.LogLevel()
	if o.debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if o.otel {
		shutdown, err := initTracer()
		if err != nil {
			return fmt.Errorf("initialize tracer: %w", err)
		}
		o.closers = append(o.closers, func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Failed to shut down tracer")
			}
		})
	}

	if o.cpuProfile != "" {
		f, err := os.Create(o.cpuProfile)
		if err != nil {
			return fmt.Errorf("create cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("start cpu profile: %w", err)
		}
		o.closers = append(o.closers, func() {
			pprof.StopCPUProfile()
			f.Close()
		})
	}

	if o.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: o.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", o.metricsAddr).Msg("Metrics endpoint failed")
			}
		}()
		log.Info().Str("addr", o.metricsAddr).Msg("Serving metrics")
		o.closers = append(o.closers, func() { srv.Close() })
	}
	return nil
}

// teardown releases what setup acquired, last first.
func (o *rootOptions) teardown() {
	for _, fn := range slices.Backward(o.closers) {
		fn()
	}
	o.closers = nil
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("kernelbench"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
