package voice

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Reconciler periodically drops playback sessions whose voice connection
// went away without a disconnect event.
type Reconciler struct {
	manager *Manager
	cron    *cron.Cron
	logger  *slog.Logger
}

// NewReconciler schedules Manager.Reconcile on spec (e.g. "@every 1m").
func NewReconciler(manager *Manager, spec string, logger *slog.Logger) (*Reconciler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		manager: manager,
		cron:    cron.New(),
		logger:  logger.With("component", "voice_reconciler"),
	}
	if _, err := r.cron.AddFunc(spec, r.run); err != nil {
		return nil, fmt.Errorf("scheduling reconciler %q: %w", spec, err)
	}
	return r, nil
}

// Start begins the schedule in its own goroutine.
func (r *Reconciler) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reconciler) run() {
	if n := r.manager.Reconcile(); n > 0 {
		r.logger.Info("reconciled playback sessions", "dropped", n)
	}
}
