// Package httpserver builds the public HTTP listener.
package httpserver

import (
	"net/http"
	"time"

	"credence/internal/platform/config"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 2 * time.Minute
)

// New returns a server for handler. Zero timeouts in cfg leave the
// corresponding limit unset.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       idleTimeout,
	}
}
