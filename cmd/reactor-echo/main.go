// File: cmd/reactor-echo/main.go
// Author: momentics <momentics@gmail.com>
//
// Echo server running one reactor loop per OS thread.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-reactor/affinity"
	"github.com/momentics/hioload-reactor/control"
	"github.com/momentics/hioload-reactor/reactor"
)

type config struct {
	addr        string
	loops       int
	tick        time.Duration
	maxEvents   int
	bufSize     int
	idle        time.Duration
	pin         bool
	logLevel    string
	logFormat   string
	metricsAddr string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := &config{}
	cmd := &cobra.Command{
		Use:           "reactor-echo",
		Short:         "TCP echo server on the hioload reactor",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, cfg, log); err != nil {
				log.WithError(err).Error("server failed")
				return err
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.addr, "addr", "0.0.0.0:9002", "listen address")
	f.IntVar(&cfg.loops, "loops", runtime.NumCPU(), "number of loops, one per OS thread")
	f.DurationVar(&cfg.tick, "tick", time.Millisecond, "timer wheel tick")
	f.IntVar(&cfg.maxEvents, "max-events", 0, "kernel batch size, 0 derives it from the fd limit")
	f.IntVar(&cfg.bufSize, "buf-size", 4096, "per-connection buffer size")
	f.DurationVar(&cfg.idle, "idle-timeout", 0, "close connections idle this long, 0 disables")
	f.BoolVar(&cfg.pin, "pin", false, "pin loop i to CPU i")
	f.StringVar(&cfg.logLevel, "log-level", "info", "log level")
	f.StringVar(&cfg.logFormat, "log-format", "text", "log format: text or json")
	f.StringVar(&cfg.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func newLogger(cfg *config) (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.logLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	switch cfg.logFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.logFormat)
	}
	return log, nil
}

func run(ctx context.Context, cfg *config, log *logrus.Logger) error {
	addr, err := netip.ParseAddrPort(cfg.addr)
	if err != nil {
		return err
	}
	if cfg.loops < 1 {
		cfg.loops = 1
	}

	metrics := control.NewMetrics("reactor")
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	probes := control.NewDebugProbes()
	control.RegisterPlatformProbes(probes)
	control.RegisterCounterProbe(probes, reg)
	probes.RegisterProbe("loops", func() any { return cfg.loops })
	probes.RegisterProbe("addr", func() any { return addr.String() })

	g, ctx := errgroup.WithContext(ctx)
	if cfg.metricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdown)
		})
	}

	for i := 0; i < cfg.loops; i++ {
		id := i
		g.Go(func() error {
			return runLoop(ctx, cfg, id, addr, metrics, log.WithField("loop", id))
		})
	}

	log.WithFields(logrus.Fields{
		"addr":  addr.String(),
		"loops": cfg.loops,
	}).Info("echo server started")
	err = g.Wait()
	log.WithFields(probes.Fields()).Info("echo server stopped")
	return err
}

// runLoop owns one OS thread for the lifetime of its loop.
func runLoop(ctx context.Context, cfg *config, id int, addr netip.AddrPort, rec reactor.Recorder, log *logrus.Entry) error {
	if cfg.pin {
		unlock, err := affinity.Pin(id % runtime.NumCPU())
		if err != nil {
			log.WithError(err).Warn("cpu pinning unavailable")
			runtime.LockOSThread()
			unlock = runtime.UnlockOSThread
		}
		defer unlock()
	} else {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	l, err := reactor.New(
		reactor.WithMaxEvents(cfg.maxEvents),
		reactor.WithTick(cfg.tick),
		reactor.WithLogger(log),
		reactor.WithRecorder(rec),
	)
	if err != nil {
		return err
	}
	srv, err := newServer(l, addr, cfg, log)
	if err != nil {
		_ = l.Close()
		return err
	}
	runErr := l.Run(ctx)
	srv.shutdown()
	if err := l.Close(); err != nil {
		log.WithError(err).Warn("loop close failed")
	}
	return runErr
}

// drainTicks bounds the cycles spent completing close callbacks.
const drainTicks = 1000

// maxIdleBuffers caps the connection buffers a loop keeps for reuse.
const maxIdleBuffers = 1024

func drain(l *reactor.Loop) {
	for i := 0; i < drainTicks && l.Bound() > 0; i++ {
		if err := l.RunOnce(false); err != nil {
			return
		}
	}
}

func idleTicks(cfg *config) uint64 {
	if cfg.idle <= 0 {
		return 0
	}
	return uint64(cfg.idle / cfg.tick)
}
