// Command ragtime runs a JavaScript file, or inline code, to completion.
//
//	ragtime [options] <script.js> [args...]
//	ragtime --eval <code>
//
// The exit status is the one passed to process.exit, 1 after an uncaught
// error, otherwise 0.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/go-ragtime/config"
	"github.com/joeycumines/go-ragtime/internal/logging"
	"github.com/joeycumines/go-ragtime/ragtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// exitInterrupted is the status after SIGINT or SIGTERM.
const exitInterrupted = 130

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type flags struct {
	evalSet     bool
	eval        string
	configPath  string
	metricsAddr string
	logLevel    string
}

// bind registers the flags. Parsing stops at the script path, so the
// script's own arguments pass through untouched.
func (f *flags) bind(fs *pflag.FlagSet) {
	fs.SetInterspersed(false)
	fs.StringVarP(&f.eval, `eval`, `e`, ``, `evaluate inline code instead of a script file`)
	fs.StringVar(&f.configPath, `config`, ``, `TOML configuration file`)
	fs.StringVar(&f.metricsAddr, `metrics-addr`, ``, `serve Prometheus metrics on this address`)
	fs.StringVar(&f.logLevel, `log-level`, ``, `runtime log level (overrides configuration)`)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var (
		f    flags
		code int
	)
	cmd := &cobra.Command{
		Use:           ragtime.Name + ` [options] [script.js] [args...]`,
		Short:         `Run JavaScript with timers, files, streams and sockets`,
		Version:       `v` + ragtime.Version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.evalSet = cmd.Flags().Changed(`eval`)
			if !f.evalSet && len(args) == 0 {
				_ = cmd.Usage()
				return errors.New("no script or --eval provided")
			}
			var err error
			code, err = execute(cmd.Context(), &f, args, stdout, stderr)
			return err
		},
	}
	cmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f.bind(cmd.Flags())

	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return code
}

func execute(ctx context.Context, f *flags, args []string, stdout, stderr io.Writer) (int, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return 1, err
	}
	if f.metricsAddr != `` {
		cfg.MetricsAddr = f.metricsAddr
	}
	if f.logLevel != `` {
		cfg.LogLevel = f.logLevel
	}
	logger, err := logging.New(stderr, cfg.LogLevel)
	if err != nil {
		return 1, err
	}

	argv := append([]string{ragtime.Name}, args...)
	rt, err := ragtime.New(append(cfg.RuntimeOptions(),
		ragtime.WithLogger(logger),
		ragtime.WithStdout(stdout),
		ragtime.WithStderr(stderr),
		ragtime.WithArgv(argv...),
	)...)
	if err != nil {
		return 1, err
	}

	if f.evalSet {
		err = rt.Eval(f.eval)
	} else {
		err = rt.RunFile(args[0])
	}
	if err != nil {
		return 1, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var code int
	g.Go(func() error {
		defer cancel()
		var err error
		code, err = rt.Run(gctx)
		if err != nil && ctx.Err() != nil {
			code, err = exitInterrupted, nil
		}
		return err
	})

	if cfg.MetricsAddr != `` {
		ln, err := net.Listen(`tcp`, cfg.MetricsAddr)
		if err != nil {
			cancel()
			_ = g.Wait()
			return 1, fmt.Errorf("metrics: %w", err)
		}
		logger.Info().Str(`addr`, ln.Addr().String()).Log(`serving metrics`)
		srv := metricsServer(rt)
		g.Go(func() error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return 1, err
	}
	return code, nil
}

func metricsServer(rt *ragtime.Runtime) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		ragtime.NewCollector(rt),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle(`/metrics`, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
