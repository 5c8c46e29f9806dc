package session

import (
	"log/slog"
	"time"

	"github.com/rickgao/salestore/internal/auth"
	"github.com/rickgao/salestore/internal/notify"
	"github.com/rickgao/salestore/internal/series"
)

// DefaultWaitTimeout bounds WAIT_SIMULTANEOUS and WAIT_CONSECUTIVE.
const DefaultWaitTimeout = 60 * time.Second

// Services is the shared server state handed to every session.
type Services struct {
	Registry *series.Registry
	Users    *auth.Directory
	Hub      *notify.Hub

	// WaitTimeout bounds blocking waits. Zero means DefaultWaitTimeout.
	WaitTimeout time.Duration

	Logger *slog.Logger
}

func (s *Services) waitTimeout() time.Duration {
	if s.WaitTimeout <= 0 {
		return DefaultWaitTimeout
	}
	return s.WaitTimeout
}

func (s *Services) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
