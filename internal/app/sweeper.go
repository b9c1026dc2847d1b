package app

import (
	"context"
	"time"

	"github.com/dkeye/Beam/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSweepInterval = 15 * time.Second
	DefaultIdleTimeout   = 90 * time.Second
)

// Sweeper tears down sessions whose publisher vanished without a stop
// request or a clean disconnect event.
type Sweeper struct {
	Engine      *Engine
	Interval    time.Duration
	IdleTimeout time.Duration
}

// Run blocks until ctx is cancelled, sweeping every Interval.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Str("module", "app.sweeper").Dur("interval", interval).Msg("idle sweep started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.sweeper").Msg("idle sweep stopped")
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *Sweeper) sweep(now time.Time) {
	idle := s.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	for _, sess := range s.Engine.Registry.Snapshot() {
		switch sess.State() {
		case domain.StateNegotiating, domain.StateConnected:
		default:
			continue
		}
		if since := sess.IdleFor(now); since > idle {
			log.Warn().
				Str("module", "app.sweeper").
				Str("sid", string(sess.ID)).
				Dur("idle", since).
				Msg("evicting idle session")
			s.Engine.Stop(sess.ID)
		}
	}
}
