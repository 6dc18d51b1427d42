package certs

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Sub-lime-time/initial-setup/internal/config"
)

// Reconciler propagates the newest certificate pair between the
// Let's Encrypt source, the shared network cache and the per-host
// canonical location, based on modification timestamps.
//
// Masters push source -> cache and source -> canonical; clients pull
// cache -> canonical. Only canonical updates count as a change for the
// purpose of service restarts.
type Reconciler struct {
	cfg    config.CertsConfig
	roles  config.RoleTable
	logger *slog.Logger
}

func NewReconciler(cfg config.CertsConfig, roles config.RoleTable, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		cfg:    cfg,
		roles:  roles,
		logger: logger,
	}
}

func (r *Reconciler) CanonicalPair() Pair {
	return PairIn(r.cfg.CanonicalDir, r.cfg.Domain, r.cfg.Naming)
}

func (r *Reconciler) Reconcile(hostname string) (bool, error) {
	role := r.roles.Resolve(hostname)
	r.logger.Info("Reconciling certificates",
		"hostname", hostname,
		"role", role,
		"domain", r.cfg.Domain,
	)

	if role == config.RoleMaster {
		return r.reconcileMaster()
	}
	return r.reconcileClient()
}

func (r *Reconciler) reconcileMaster() (bool, error) {
	source, err := r.requirePair(r.cfg.SourceDir, "source")
	if err != nil {
		return false, err
	}

	cache := PairIn(r.cfg.CacheDir, r.cfg.Domain, r.cfg.Naming)
	newer, err := source.NewerThan(cache)
	if err != nil {
		return false, err
	}
	if newer {
		if err := os.MkdirAll(r.cfg.CacheDir, 0755); err != nil {
			return false, fmt.Errorf("create cache dir %s: %w", r.cfg.CacheDir, err)
		}
		if err := source.CopyTo(cache); err != nil {
			return false, fmt.Errorf("update cache copy: %w", err)
		}
		r.logger.Info("Updated shared cache copy", "dir", r.cfg.CacheDir)
	}

	return r.applyCanonical(source)
}

func (r *Reconciler) reconcileClient() (bool, error) {
	cache, err := r.requirePair(r.cfg.CacheDir, "shared cache")
	if err != nil {
		return false, err
	}

	return r.applyCanonical(cache)
}

// applyCanonical overwrites the canonical pair from upstream when
// upstream is newer. This is the only copy that flips the changed flag.
func (r *Reconciler) applyCanonical(upstream Pair) (bool, error) {
	canonical := r.CanonicalPair()

	newer, err := upstream.NewerThan(canonical)
	if err != nil {
		return false, err
	}
	if !newer {
		r.logger.Info("Canonical copy is up to date", "dir", r.cfg.CanonicalDir)
		return false, nil
	}

	if err := os.MkdirAll(r.cfg.CanonicalDir, 0755); err != nil {
		return false, fmt.Errorf("create canonical dir %s: %w", r.cfg.CanonicalDir, err)
	}
	if err := upstream.CopyTo(canonical); err != nil {
		return false, fmt.Errorf("update canonical copy: %w", err)
	}

	r.logger.Info("Updated canonical copy", "dir", r.cfg.CanonicalDir)
	return true, nil
}

func (r *Reconciler) requirePair(dir, what string) (Pair, error) {
	if _, err := os.Stat(dir); err != nil {
		return Pair{}, fmt.Errorf("%s directory %s is not accessible: %w", what, dir, err)
	}

	pair := PairIn(dir, r.cfg.Domain, r.cfg.Naming)
	if !pair.Exists() {
		return Pair{}, fmt.Errorf("%s pair for %s not found in %s", what, r.cfg.Domain, dir)
	}
	return pair, nil
}
