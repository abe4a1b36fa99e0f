package world

import (
	"context"
	"time"
)

// Run drives the fixed-cadence clock until ctx is cancelled or Stop is
// called. Shutdown happens between ticks, never mid-step, and closes
// every registered connection.
func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	dt := interval.Seconds()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.registry.CloseAll()
			return ctx.Err()
		case <-w.stop:
			w.registry.CloseAll()
			return nil
		case now := <-ticker.C:
			w.StepOnce(now, dt)
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }
