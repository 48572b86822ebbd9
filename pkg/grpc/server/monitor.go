package server

import (
	"context"
	"time"
)

// ProbeFunc checks backend liveness and reports whether it is up.
type ProbeFunc func(ctx context.Context) bool

// Monitor probes immediately and then every interval, publishing each result
// on BackendService. It returns when ctx is done.
func (s *Server) Monitor(ctx context.Context, interval time.Duration, probe ProbeFunc) {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	s.SetBackendOnline(probe(ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("backend monitor stopped")
			return
		case <-ticker.C:
			s.SetBackendOnline(probe(ctx))
		}
	}
}
