// Package natsconn opens the process-wide NATS connection.
package natsconn

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"credence/internal/platform/config"
)

// Connect dials NATS. Returns nil if the URL is empty (NATS not configured).
func Connect(cfg config.NATS, logger *slog.Logger) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("credence"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}
