package scripts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Sub-lime-time/initial-setup/internal/config"
	"github.com/Sub-lime-time/initial-setup/pkg/executor"
)

// Mirror copies maintenance scripts and cron fragments from the
// NFS-mounted share onto the local host with rsync. An absent share is
// a missing precondition and aborts the run.
type Mirror struct {
	mirrors []config.ScriptMirror
	runner  executor.Runner
	logger  *slog.Logger
}

func NewMirror(mirrors []config.ScriptMirror, runner executor.Runner, logger *slog.Logger) *Mirror {
	return &Mirror{
		mirrors: mirrors,
		runner:  runner,
		logger:  logger,
	}
}

func (m *Mirror) Sync(ctx context.Context) error {
	for _, mirror := range m.mirrors {
		if err := m.syncOne(ctx, mirror); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mirror) syncOne(ctx context.Context, mirror config.ScriptMirror) error {
	if _, err := os.Stat(mirror.SourceDir); err != nil {
		return fmt.Errorf("script share %s is not accessible: %w", mirror.SourceDir, err)
	}

	if err := os.MkdirAll(mirror.DestDir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", mirror.DestDir, err)
	}

	// Trailing slash: mirror the directory contents, not the directory.
	source := strings.TrimSuffix(mirror.SourceDir, "/") + "/"

	result, err := m.runner.Run(ctx, "rsync", "-a", "--delete", source, mirror.DestDir)
	if err != nil {
		return fmt.Errorf("rsync %s -> %s: %w", mirror.SourceDir, mirror.DestDir, err)
	}

	m.logger.Info("Mirrored scripts",
		"source", mirror.SourceDir,
		"dest", mirror.DestDir,
		"duration", result.Duration,
	)
	return nil
}
