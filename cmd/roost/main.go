// Command roost runs a demo endpoint against the broker named in its configuration.
// It consumes Greeting messages, publishes one and sends one to itself, and prints
// every greeting it receives until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casualjim/roost"
	"github.com/casualjim/roost/config"
	"github.com/casualjim/roost/metrics"
	"github.com/casualjim/roost/observer"
	"github.com/casualjim/roost/pkg/slogx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phsym/zeroslog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var osExit = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("roost failed", slogx.Error(err))
		osExit(1)
	}
}

func setupLogging(w io.Writer, lc config.Log) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	var log zerolog.Logger
	if lc.JSON {
		log = zerolog.New(w).With().Timestamp().Logger()
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Stamp}).With().Timestamp().Logger()
	}
	slog.SetDefault(slog.New(zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level})))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("roost", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "endpoint file, defaults to $"+config.EnvConfig)
	envFile := fs.String("env", "", "env file loaded before the endpoint file, defaults to .env")
	count := fs.Int("count", 0, "exit after this many greetings were received, 0 runs until interrupted")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.Load(*configPath, envFiles...)
	if err != nil {
		return err
	}
	setupLogging(stderr, cfg.Log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ep, err := roost.FromConfig(cfg, roost.WithObservers(
		observer.Logging(slog.Default()),
		metrics.New(reg),
	))
	if err != nil {
		return err
	}

	p := newPrinter(stdout)
	if err := roost.Consume(ep, "greeter", p.greeting); err != nil {
		return errors.Join(err, ep.Close())
	}

	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if *count > 0 {
		p.onReceived = func(n int64) {
			if n >= int64(*count) {
				cancel()
			}
		}
	}

	if err := ep.Start(runCtx); err != nil {
		return errors.Join(err, ep.Close())
	}

	self := ep.Context().InputAddress()
	if err := ep.Publish(runCtx, Greeting{From: "roost", Text: "hello, subscribers"}); err != nil {
		slog.Error("publish failed", slogx.Error(err))
	}
	if err := ep.Send(runCtx, self, Greeting{From: "roost", Text: "hello, me"}); err != nil {
		slog.Error("send failed", slogx.Error(err))
	}

	<-runCtx.Done()
	stopCtx := context.WithoutCancel(ctx)
	return errors.Join(ep.Stop(stopCtx), ep.Close())
}

func metricsRouter(mc config.Metrics, reg *prometheus.Registry) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, mc.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return r
}

func serveMetrics(mc config.Metrics, reg *prometheus.Registry) *http.Server {
	srv := &http.Server{Addr: mc.Listen, Handler: metricsRouter(mc, reg), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slogx.Error(err))
		}
	}()
	slog.Info("serving metrics", slog.String("addr", mc.Listen), slog.String("path", mc.Path))
	return srv
}

