package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"

	"github.com/linkscope/linkscope/agent/internal/alerts"
	"github.com/linkscope/linkscope/agent/internal/api"
	"github.com/linkscope/linkscope/agent/internal/config"
	"github.com/linkscope/linkscope/agent/internal/exporter"
	"github.com/linkscope/linkscope/agent/internal/health"
	"github.com/linkscope/linkscope/agent/internal/history"
	"github.com/linkscope/linkscope/agent/internal/monitor"
	"github.com/linkscope/linkscope/agent/internal/probe"
	"github.com/linkscope/linkscope/agent/internal/store"
	"github.com/linkscope/linkscope/agent/internal/ws"
)

// shutdownTimeout bounds how long servers and a running scheduled test get
// to finish after a signal.
const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("linkscope-agent starting", "config", *configPath)

	cfg, watch, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.SlogLevel())
	slog.Info("config loaded",
		"probe_mode", cfg.Probes.Mode,
		"interval", cfg.Monitor.Interval,
		"schedule", cfg.Monitor.Schedule.Cron,
		"history", cfg.History.Path,
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	probes, err := newProbeSet(cfg.Probes)
	if err != nil {
		slog.Error("failed to build probes", "err", err)
		os.Exit(1)
	}
	defer probes.Close()
	hist, err := openHistory(cfg.History)
	if err != nil {
		slog.Error("failed to open history", "err", err)
		os.Exit(1)
	}

	st := store.New()
	mon := monitor.New(st, probes, hist, monitor.Options{
		Interval:     cfg.Monitor.Interval,
		PhaseTimeout: cfg.Monitor.PhaseTimeout,
		MaxHistory:   cfg.History.MaxEntries,
	})

	sched := monitor.NewScheduler(mon, cfg.Monitor.Schedule.Timeout)
	if err := sched.Apply(cfg.Monitor.Schedule.Cron, cfg.Monitor.Schedule.Save); err != nil {
		slog.Error("failed to apply test schedule", "err", err)
		os.Exit(1)
	}
	sched.Start()

	// Alerts engine: evaluates rules on every snapshot change.
	alertEngine := alerts.New(cfg.Alerts)
	alertUpdates, stopAlerts := st.Subscribe()
	defer stopAlerts()
	go alertEngine.Run(ctx, alertUpdates)

	// WebSocket hub: pushes snapshots and full-test progress to UI clients.
	hub := ws.New(st, cfg.Server.AllowedOrigins)
	go hub.Run(ctx)
	mon.OnProgress(func(p monitor.Progress) { hub.Publish(ws.EventProgress, p) })

	// Combined HTTP server: REST API, WebSocket stream and /metrics.
	router := api.New(api.Deps{
		Store:     st,
		Monitor:   mon,
		Scheduler: sched,
		History:   hist,
		Alerts:    alertEngine,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	})
	router.GET("/ws/stream", gin.WrapH(hub))
	router.GET("/metrics", gin.WrapH(exporter.Handler(st)))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	// gRPC health service reflecting connectivity.
	var grpcSrv *grpc.Server
	if cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			slog.Error("failed to listen on gRPC port", "port", cfg.Server.GRPCPort, "err", err)
			os.Exit(1)
		}
		rep := health.New(st)
		grpcSrv = grpc.NewServer(grpc.UnaryInterceptor(health.LoggingInterceptor()))
		rep.Register(grpcSrv)
		go rep.Run(ctx)
		go func() {
			slog.Info("gRPC health listening", "port", cfg.Server.GRPCPort)
			if err := grpcSrv.Serve(lis); err != nil {
				slog.Error("gRPC server stopped", "err", err)
			}
		}()
	}

	// The background cycle reuses the last measured throughput, so the
	// assessment runs first when both are enabled.
	go func() {
		if cfg.Monitor.InitialAssessment {
			if err := mon.InitialAssessment(ctx); err != nil {
				slog.Warn("initial assessment failed", "err", err)
			}
		}
		if cfg.Monitor.Autostart && ctx.Err() == nil {
			mon.StartMonitoring()
		}
	}()

	if watch {
		go func() {
			if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
				applyReload(updated, &level, mon, sched, alertEngine)
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("linkscope-agent shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	mon.StopMonitoring()
	sched.Stop(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	alertEngine.Wait()
}

// loadConfig loads path, falling back to defaults when the file does not
// exist. watch reports whether the file exists and can be watched.
func loadConfig(path string) (cfg *config.Config, watch bool, err error) {
	cfg, err = config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config file not found, using defaults", "path", path)
		return config.Default(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// applyReload pushes the hot-reloadable settings into the running agent.
// Probe targets, history and listener ports need a restart.
func applyReload(cfg *config.Config, level *slog.LevelVar, mon *monitor.Monitor, sched *monitor.Scheduler, eng *alerts.Engine) {
	level.Set(cfg.SlogLevel())
	mon.SetInterval(cfg.Monitor.Interval)
	eng.SetRules(cfg.Alerts)
	if err := sched.Apply(cfg.Monitor.Schedule.Cron, cfg.Monitor.Schedule.Save); err != nil {
		slog.Error("config reload: test schedule not applied", "err", err)
	}
	slog.Info("config hot-reloaded",
		"interval", cfg.Monitor.Interval,
		"rules", len(cfg.Alerts.Rules),
		"schedule", cfg.Monitor.Schedule.Cron,
	)
}

func newProbeSet(cfg config.ProbesConfig) (probe.Set, error) {
	if cfg.Mode == "simulated" {
		slog.Warn("using simulated probes; measurements are synthetic", "seed", cfg.Seed)
		return probe.NewSimulated(cfg.Seed), nil
	}
	set, err := probe.NewReal(cfg.Options())
	if err != nil {
		return nil, err
	}
	return set, nil
}

func openHistory(cfg config.HistoryConfig) (history.Repository, error) {
	if cfg.Path == "" {
		return history.NewMemoryStore(), nil
	}
	file, err := history.OpenFile(cfg.Path, cfg.MaxEntries)
	if err != nil {
		return nil, err
	}
	return file, nil
}
