package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/fluxcache/cache"
	"github.com/IvanBrykalov/fluxcache/codec"
	"github.com/IvanBrykalov/fluxcache/internal/config"
	"github.com/IvanBrykalov/fluxcache/internal/logging"
	"github.com/IvanBrykalov/fluxcache/internal/util"
	pmet "github.com/IvanBrykalov/fluxcache/metrics/prom"
	"github.com/IvanBrykalov/fluxcache/monitor"
	"github.com/IvanBrykalov/fluxcache/protocol"
	"github.com/IvanBrykalov/fluxcache/server"
)

const metricsNamespace = "fluxcache"

func serveAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("addr") {
		cfg.Server.Addr = c.String("addr")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, cfg, log)
}

// app holds the wired components of one server process.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	reg     *prometheus.Registry
	mon     *monitor.Monitor
	store   *cache.Store
	janitor *cache.Janitor
	srv     *server.Server
	codec   codec.Codec
}

// build wires every component from cfg without touching the network.
func build(cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, reg: prometheus.NewRegistry()}
	a.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var err error
	if a.codec, err = codec.New(cfg.Store.Codec, cfg.Store.MaxValueBytes); err != nil {
		return nil, err
	}
	pol, err := cache.PolicyByName(cfg.Store.EvictionPolicy)
	if err != nil {
		return nil, err
	}
	hash, err := util.HasherByName(cfg.Store.Hash)
	if err != nil {
		return nil, err
	}

	var sampler monitor.Sampler
	if ps, err := monitor.NewProcSampler(cfg.Monitor.ProcfsPath); err != nil {
		log.Warn("memory sampling unavailable, pressure eviction disabled", "error", err)
		sampler = monitor.Unavailable(err)
	} else {
		sampler = ps
	}
	a.mon, err = monitor.New(monitor.Options{
		Interval:   cfg.Monitor.Interval,
		Thresholds: cfg.Monitor.Thresholds(),
		Sampler:    sampler,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	a.store, err = cache.New(cache.Options{
		CapacityBytes:        cfg.Store.CapacityBytes,
		Shards:               cfg.Store.ShardCount,
		MaxValueBytes:        cfg.Store.MaxValueBytes,
		MaxKeyBytes:          cfg.Store.MaxKeyBytes,
		Codec:                a.codec,
		CompressionThreshold: cfg.Store.CompressionThresholdBytes,
		Policy:               pol,
		Hash:                 hash,
		ElevatedFraction:     cfg.Monitor.ElevatedFraction,
		CriticalFraction:     cfg.Monitor.CriticalFraction,
		Pressure:             a.mon,
		Metrics:              pmet.New(a.reg, metricsNamespace, "store", nil),
		Logger:               log,
	})
	if err != nil {
		return nil, err
	}
	a.reg.MustRegister(pmet.NewStatsCollector(metricsNamespace, "store", nil, a.store.Stats))

	a.janitor = cache.NewJanitor(a.store, cache.JanitorOptions{
		SweepInterval:    cfg.Store.ExpirySweepInterval,
		PressureInterval: cfg.Monitor.Interval,
		Source:           a.mon,
		Logger:           log,
	})

	a.srv, err = server.New(a.store, server.Config{
		Addr:              cfg.Server.Addr,
		MaxConns:          cfg.Server.MaxConns,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		MaxPendingBytes:   cfg.Server.MaxPendingBytes,
		RateLimit:         cfg.Server.RateLimit,
		RateBurst:         cfg.Server.RateBurst,
		SocketBufferBytes: cfg.Server.SocketBufferBytes,
		DrainTimeout:      cfg.Server.DrainTimeout,
		Limits: protocol.Limits{
			MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
			MaxKeyBytes:    cfg.Store.MaxKeyBytes,
			MaxValueBytes:  cfg.Store.MaxValueBytes,
		},
		Logger:  log,
		Metrics: pmet.NewServer(a.reg, metricsNamespace, "server", nil),
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("close store", "error", err)
	}
	if z, ok := a.codec.(*codec.Zstd); ok {
		_ = z.Close()
	}
}

// run serves until ctx is done, then drains connections and closes the
// store. Bind failures are returned before anything starts.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	a, err := build(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	ln, err := a.srv.Listen(ctx)
	if err != nil {
		return err
	}
	var mln net.Listener
	if cfg.Metrics.Addr != "" {
		var lc net.ListenConfig
		if mln, err = lc.Listen(ctx, "tcp", cfg.Metrics.Addr); err != nil {
			_ = ln.Close()
			return fmt.Errorf("metrics: listen %s: %w", cfg.Metrics.Addr, err)
		}
	}

	log.Info("starting fluxcache",
		"version", version,
		"commit", commit,
		"addr", ln.Addr().String(),
		"shards", cfg.Store.ShardCount,
		"capacity_bytes", cfg.Store.CapacityBytes,
		"policy", cfg.Store.EvictionPolicy,
		"codec", cfg.Store.Codec,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.mon.Run(gctx) })
	g.Go(func() error { return a.janitor.Run(gctx) })
	g.Go(func() error { return a.srv.Serve(gctx, ln) })
	if mln != nil {
		hs := &http.Server{
			Handler:           metricsMux(a.reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("metrics endpoint", "addr", mln.Addr().String())
			if err := hs.Serve(mln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "active_conns", a.srv.ActiveConns())
		if err := a.srv.Shutdown(context.Background()); err != nil {
			log.Warn("drain incomplete", "error", err)
		}
		return nil
	})

	err = g.Wait()
	log.Info("stopped")
	return err
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}
