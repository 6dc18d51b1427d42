package pkgmgr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Sub-lime-time/initial-setup/pkg/executor"
)

// dpkg and apt report lock contention with one of these fragments.
var lockErrorFragments = []string{
	"could not get lock",
	"lock-frontend",
	"is another process using it",
}

// Apt installs packages idempotently. Lock contention is the only
// retried error class: a fixed poll interval, bounded by maxAttempts
// (0 retries indefinitely).
type Apt struct {
	runner      executor.Runner
	logger      *slog.Logger
	lockPoll    time.Duration
	maxAttempts int
}

func NewApt(runner executor.Runner, logger *slog.Logger, lockPoll time.Duration, maxAttempts int) *Apt {
	return &Apt{
		runner:      runner,
		logger:      logger,
		lockPoll:    lockPoll,
		maxAttempts: maxAttempts,
	}
}

func (a *Apt) IsInstalled(ctx context.Context, pkg string) bool {
	_, err := a.runner.RunQuiet(ctx, "dpkg", "-s", pkg)
	return err == nil
}

// EnsureInstalled installs the packages that are not already present.
func (a *Apt) EnsureInstalled(ctx context.Context, packages ...string) error {
	var missing []string
	for _, pkg := range packages {
		if a.IsInstalled(ctx, pkg) {
			a.logger.Debug("Package already installed", "package", pkg)
			continue
		}
		missing = append(missing, pkg)
	}

	if len(missing) == 0 {
		return nil
	}

	a.logger.Info("Installing packages", "packages", missing)
	return a.install(ctx, missing)
}

func (a *Apt) install(ctx context.Context, packages []string) error {
	args := append([]string{"install", "-y", "-qq"}, packages...)

	for attempt := 1; ; attempt++ {
		result, err := a.runner.RunQuiet(ctx, "apt-get", args...)
		if err == nil {
			return nil
		}

		if !isLockError(err, result) {
			return fmt.Errorf("apt-get install %s: %w", strings.Join(packages, " "), err)
		}

		if a.maxAttempts > 0 && attempt >= a.maxAttempts {
			return fmt.Errorf("apt lock still held after %d attempts: %w", attempt, err)
		}

		a.logger.Warn("Package manager lock held, waiting",
			"attempt", attempt,
			"poll", a.lockPoll,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.lockPoll):
		}
	}
}

func isLockError(err error, result *executor.Result) bool {
	output := strings.ToLower(err.Error())
	if result != nil {
		output += " " + strings.ToLower(result.Stderr)
	}
	for _, fragment := range lockErrorFragments {
		if strings.Contains(output, fragment) {
			return true
		}
	}
	return false
}
