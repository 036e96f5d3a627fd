// Package systemd wraps coreos/go-systemd for a Type=notify recurd unit:
// readiness and stopping notifications, a status line and watchdog pings.
// Every call is a no-op outside systemd (no NOTIFY_SOCKET).
package systemd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages and logs through its logger.
type Notifier struct {
	logger *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{logger: logger.With(slog.String("component", "systemd"))}
}

// Ready sends READY=1. It reports whether systemd received the message.
func (n *Notifier) Ready() bool {
	return n.notify(daemon.SdNotifyReady, "ready")
}

// Stopping sends STOPPING=1 so systemd waits for the process to exit.
func (n *Notifier) Stopping() bool {
	return n.notify(daemon.SdNotifyStopping, "stopping")
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(status string) bool {
	return n.notify("STATUS="+status, "status")
}

func (n *Notifier) notify(state, name string) bool {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.logger.Warn("failed to send systemd notification",
			slog.String("state", name),
			slog.String("error", err.Error()),
		)
		return false
	}
	if sent {
		n.logger.Debug("sent systemd notification", slog.String("state", name))
	}
	return sent
}

// HealthCheckFunc reports whether the service is healthy enough to ping the
// watchdog.
type HealthCheckFunc func() bool

// StartWatchdog pings the systemd watchdog every half WatchdogSec while
// healthCheck passes, until ctx is cancelled. It returns false without
// starting anything when the unit has no watchdog.
func (n *Notifier) StartWatchdog(ctx context.Context, healthCheck HealthCheckFunc) bool {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		n.logger.Debug("watchdog not enabled")
		return false
	}

	pingInterval := interval / 2
	n.logger.Info("starting systemd watchdog",
		slog.Duration("watchdog_interval", interval),
		slog.Duration("ping_interval", pingInterval),
	)
	go n.watchdogLoop(ctx, pingInterval, healthCheck)
	return true
}

func (n *Notifier) watchdogLoop(ctx context.Context, interval time.Duration, healthCheck HealthCheckFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !healthCheck() {
				// A missed ping lets systemd restart the service.
				n.logger.Warn("health check failed, skipping watchdog ping")
				continue
			}
			n.notify(daemon.SdNotifyWatchdog, "watchdog")
		}
	}
}

// IsRunningUnderSystemd returns true if the process was started by systemd.
func IsRunningUnderSystemd() bool {
	return os.Getenv("NOTIFY_SOCKET") != ""
}
