// Command watch connects to the event gateway as a dashboard client and
// prints the threat stream to stdout. It exercises the full client
// lifecycle: connect, heartbeat supervision, bounded reconnection, and
// session revocation.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelshield/realtime/internal/client"
	"github.com/sentinelshield/realtime/internal/config"
	"github.com/sentinelshield/realtime/internal/envelope"
	"github.com/sentinelshield/realtime/internal/identity"
	"github.com/sentinelshield/realtime/internal/logger"
)

func main() {
	log := logger.New(true)
	defer log.Sync()

	var cfg config.Watcher
	if err := config.Parse(&cfg); err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	ids := identity.NewStatic(identity.Context{
		TenantID: cfg.TenantID,
		UserID:   cfg.UserID,
		Token:    cfg.Token,
	})

	revoked := make(chan struct{})
	m := client.New(client.Config{
		Host:   cfg.Host,
		Secure: cfg.Secure,
		Logger: log,
	}, ids, func() {
		// In the dashboard this navigates to the login page.
		close(revoked)
	})

	m.Connect()
	defer m.Disconnect()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	seen := 0
	for {
		select {
		case <-ticker.C:
			snap := m.Snapshot()
			events := m.Events()
			if seen > len(events) {
				// Buffer eviction moved the window.
				seen = len(events)
			}
			for _, env := range events[seen:] {
				log.Info("event",
					zap.String("type", string(env.Type)),
					zap.ByteString("data", env.Data))
			}
			seen = len(events)
			log.Debug("status",
				zap.String("state", string(snap.State)),
				zap.Int("attempts", snap.Attempts),
				zap.Int("threats", m.CountOfType(envelope.TypeThreatDetected)),
				zap.Int("audits", m.CountOfType(envelope.TypeAuditLog)))

		case <-revoked:
			log.Warn("session revoked, exiting")
			return

		case <-sigCh:
			log.Info("interrupted, disconnecting")
			return
		}
	}
}
