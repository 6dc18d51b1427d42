package services

import (
	"context"
	"log/slog"

	"github.com/Sub-lime-time/initial-setup/internal/certs"
)

// Dispatcher runs the dependent-service list after a certificate
// update. Every entry is best-effort: a failed copy or restart is
// logged and the loop moves on, in contrast to the fail-fast
// reconciliation phase.
type Dispatcher struct {
	services []DependentService
	logger   *slog.Logger
}

func NewDispatcher(services []DependentService, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		services: services,
		logger:   logger,
	}
}

// RestartDependents applies the canonical pair to every detected
// service and restarts it. Returns the number of services that failed,
// for logging only; failures never abort the run.
func (d *Dispatcher) RestartDependents(ctx context.Context, pair certs.Pair) int {
	failed := 0

	for _, svc := range d.services {
		if !svc.Detect(ctx) {
			d.logger.Debug("Service not present, skipping", "service", svc.Name())
			continue
		}

		if err := svc.Apply(ctx, pair); err != nil {
			d.logger.Warn("Failed to apply certificate pair", "service", svc.Name(), "error", err)
			failed++
			continue
		}

		if err := svc.Restart(ctx); err != nil {
			d.logger.Warn("Failed to restart service", "service", svc.Name(), "error", err)
			failed++
			continue
		}

		d.logger.Info("Restarted dependent service", "service", svc.Name())
	}

	return failed
}
