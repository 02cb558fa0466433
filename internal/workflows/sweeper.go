package workflows

import (
	"log/slog"
	"time"

	"github.com/JaimeStill/arbiter/pkg/lifecycle"
)

// Sweeper runs the engine's automatic-action sweep on a fixed interval as a
// background task, independent of request handling.
type Sweeper struct {
	engine   System
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper driving the given engine.
func NewSweeper(engine System, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		engine:   engine,
		interval: interval,
		logger:   logger.With("system", "sweeper"),
	}
}

// Start launches the sweep loop. The loop stops when the lifecycle context
// is cancelled; an in-flight sweep runs to completion before shutdown hooks
// observe the stop.
func (s *Sweeper) Start(lc *lifecycle.Coordinator) error {
	s.logger.Info("starting sweeper", "interval", s.interval)

	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-lc.Context().Done():
				return
			case <-ticker.C:
				s.engine.ProcessAutomaticActions(lc.Context())
			}
		}
	}()

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		<-done
		s.logger.Info("sweeper stopped")
	})

	return nil
}
