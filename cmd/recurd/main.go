// recurd - recurrence scheduling daemon
//
// recurd keeps a set of task schedules, works out when each next falls due
// and emits a due event for every occurrence. Assignments arrive over NATS
// JetStream (or are pulled over HTTP), and due events go back out the same
// way through a local bbolt queue so none are lost across restarts.
//
// Lifecycle:
//  1. Load configuration from YAML (--config)
//  2. Open the schedule store (bbolt or Redis) and the due-event queue
//  3. Connect to NATS when configured, otherwise use the HTTP control plane
//  4. Seed assignments from schedules_file, if set
//  5. Start scheduler, dispatcher, poller and the metrics endpoint
//  6. Notify systemd and wait for SIGTERM/SIGINT
//  7. Coordinated shutdown with timeout
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"github.com/doughall/recurd/internal/client"
	"github.com/doughall/recurd/internal/config"
	"github.com/doughall/recurd/internal/events"
	"github.com/doughall/recurd/internal/logging"
	"github.com/doughall/recurd/internal/metrics"
	natsinternal "github.com/doughall/recurd/internal/nats"
	"github.com/doughall/recurd/internal/poller"
	"github.com/doughall/recurd/internal/schedfile"
	"github.com/doughall/recurd/internal/scheduler"
	"github.com/doughall/recurd/internal/shutdown"
	"github.com/doughall/recurd/internal/store"
	"github.com/doughall/recurd/internal/systemd"
	"github.com/doughall/recurd/internal/version"
)

// How long to wait for graceful shutdown.
const shutdownTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", config.DefaultConfigPath, "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info("recurd"))
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to load configuration from %s: %v\n", *configPath, err)
		return 1
	}

	logger := logging.SetupLogger(cfg.LogLevel)
	logger.Info("recurd starting",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
		slog.String("config_path", *configPath),
		slog.String("node_id", cfg.NodeID),
		slog.String("store_backend", cfg.StoreBackend),
		slog.Bool("nats", cfg.NATSEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	coordinator := shutdown.NewCoordinator(logger)
	notifier := systemd.NewNotifier(logger)

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		logger.Error("failed to create data directory",
			slog.String("path", cfg.DataDir),
			slog.String("error", err.Error()),
		)
		return 1
	}

	st, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		logger.Error("failed to open schedule store", slog.String("error", err.Error()))
		return 1
	}
	coordinator.Register("store", shutdown.CloseFunc(st.Close))

	queue, err := events.OpenQueue(cfg.QueuePath())
	if err != nil {
		logger.Error("failed to open due-event queue", slog.String("error", err.Error()))
		st.Close()
		return 1
	}
	coordinator.Register("queue", shutdown.CloseFunc(queue.Close))

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)
	sched := scheduler.NewScheduler(st, queue, reg, cfg.TickInterval(), logger)
	handler := natsinternal.NewHandler(sched, logger)

	httpClient := client.NewClient(cfg.ServerURL, logger)
	httpClient.SetAPIKey(cfg.APIKey)
	httpClient.SetNodeID(cfg.NodeID)

	var (
		publisher     events.Publisher = httpClient
		natsClient    *natsinternal.Client
		natsPublisher *natsinternal.Publisher
	)
	if cfg.NATSEnabled() {
		natsClient = natsinternal.NewClient(natsinternal.Config{
			Servers:  cfg.NATSServers,
			NKeySeed: cfg.NATSNKeySeed,
			TenantID: cfg.TenantID,
			NodeID:   cfg.NodeID,
		}, logger)

		if err := natsClient.Connect(ctx); err != nil {
			if cfg.ServerURL == "" || cfg.APIKey == "" {
				logger.Error("failed to connect to NATS", slog.String("error", err.Error()))
				coordinator.Shutdown(context.Background())
				return 1
			}
			logger.Warn("failed to connect to NATS, using HTTP",
				slog.String("error", err.Error()),
			)
			natsClient = nil
		} else {
			natsPublisher = natsinternal.NewPublisher(natsClient, logger)
			natsClient.SetHandler(handler)
			publisher = natsPublisher
			coordinator.Register("nats", natsClient)
		}
	}

	if cfg.SchedulesFile != "" {
		if err := seedSchedules(ctx, sched, cfg.SchedulesFile, logger); err != nil {
			logger.Error("failed to seed schedules", slog.String("error", err.Error()))
			coordinator.Shutdown(context.Background())
			return 1
		}
	}

	dispatcher := events.NewDispatcher(queue, publisher, reg, cfg.DispatchInterval(), logger)
	coordinator.Register("dispatcher", dispatcher)
	coordinator.Register("scheduler", sched)

	poll := poller.NewPoller(httpClient,
		time.Duration(cfg.PollInterval)*time.Second,
		time.Duration(cfg.JitterSeconds)*time.Second,
		logger,
	)
	poll.SetScheduleCounter(sched)
	if natsPublisher != nil {
		poll.SetHeartbeatPublisher(natsPublisher)
	} else {
		poll.SetAssignmentApplier(handler)
	}
	coordinator.Register("poller", poll)

	if cfg.MetricsAddr != "" {
		srv := metricsServer(cfg.MetricsAddr, logger)
		coordinator.Register("metrics", shutdown.Func(srv.Shutdown))
	}

	go sched.Run(ctx)
	go dispatcher.Run(ctx)
	go poll.Run(ctx)
	if natsClient != nil {
		go natsClient.Run(ctx)
	}

	notifier.Ready()
	if n, err := sched.Tracked(ctx); err == nil {
		notifier.Status(fmt.Sprintf("tracking %d schedules", n))
	}
	notifier.StartWatchdog(ctx, poll.IsHealthy)
	logger.Info("recurd ready")

	<-ctx.Done()
	logger.Info("shutdown signal received, starting graceful shutdown")
	notifier.Stopping()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown completed with errors", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("recurd stopped")
	return 0
}

// seedSchedules assigns every entry of the seed file. Entries that can no
// longer fire are skipped rather than failing the start.
func seedSchedules(ctx context.Context, sched *scheduler.Scheduler, path string, logger *slog.Logger) error {
	assignments, err := schedfile.LoadSeed(path)
	if err != nil {
		return err
	}
	for _, a := range assignments {
		if _, err := sched.Assign(ctx, a.TaskID, a.Schedule); err != nil {
			if errors.Is(err, scheduler.ErrNoOccurrence) {
				logger.Warn("seeded schedule has no future occurrence",
					slog.String("task_id", a.TaskID),
				)
				continue
			}
			return err
		}
	}
	logger.Info("seeded schedules",
		slog.String("path", path),
		slog.Int("count", len(assignments)),
	)
	return nil
}

func metricsServer(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(prometheus.DefaultGatherer))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics endpoint listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", slog.String("error", err.Error()))
		}
	}()
	return srv
}
