package dotfiles

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sub-lime-time/initial-setup/internal/config"
	"github.com/Sub-lime-time/initial-setup/pkg/executor"
)

// Syncer keeps the dotfiles checkout aligned with its origin: clone on
// first run, fetch and hard-reset afterwards. Local edits are not
// preserved; the repository is the source of truth.
type Syncer struct {
	cfg        config.DotfilesConfig
	runner     executor.Runner
	logger     *slog.Logger
	bashrcPath string
}

func NewSyncer(cfg config.DotfilesConfig, runner executor.Runner, logger *slog.Logger) *Syncer {
	return &Syncer{
		cfg:        cfg,
		runner:     runner,
		logger:     logger,
		bashrcPath: defaultBashrcPath(),
	}
}

func defaultBashrcPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bashrc")
}

func (s *Syncer) Sync(ctx context.Context) error {
	if s.cfg.RepoURL == "" || s.cfg.TargetDir == "" {
		return fmt.Errorf("dotfiles.repoURL and dotfiles.targetDir are required")
	}

	if _, err := os.Stat(filepath.Join(s.cfg.TargetDir, ".git")); os.IsNotExist(err) {
		if err := s.clone(ctx); err != nil {
			return err
		}
	} else if err := s.update(ctx); err != nil {
		return err
	}

	return s.ensureProfileInclude()
}

// ensureProfileInclude makes .bashrc source the configured file from the
// checkout, appending the line only when it is not already there.
func (s *Syncer) ensureProfileInclude() error {
	if s.cfg.ProfileInclude == "" {
		return nil
	}
	if s.bashrcPath == "" {
		return fmt.Errorf("cannot determine .bashrc path")
	}

	includePath := filepath.Join(s.cfg.TargetDir, s.cfg.ProfileInclude)
	if _, err := os.Stat(includePath); err != nil {
		return fmt.Errorf("profile include %s is not accessible: %w", includePath, err)
	}

	line := ". " + includePath
	existing, err := os.ReadFile(s.bashrcPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", s.bashrcPath, err)
	}
	for _, l := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(l) == line {
			return nil
		}
	}

	f, err := os.OpenFile(s.bashrcPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.bashrcPath, err)
	}
	defer f.Close()

	content := line + "\n"
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		content = "\n" + content
	}
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("append to %s: %w", s.bashrcPath, err)
	}

	s.logger.Info("Added profile include", "include", includePath)
	return nil
}

func (s *Syncer) clone(ctx context.Context) error {
	s.logger.Info("Cloning dotfiles", "url", s.cfg.RepoURL, "target", s.cfg.TargetDir)

	if err := os.MkdirAll(filepath.Dir(s.cfg.TargetDir), 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	if _, err := s.runner.Run(ctx, "git", "clone", "--depth", "1", s.cfg.RepoURL, s.cfg.TargetDir); err != nil {
		return fmt.Errorf("git clone failed: %w", err)
	}
	return nil
}

func (s *Syncer) update(ctx context.Context) error {
	s.logger.Info("Updating dotfiles", "dir", s.cfg.TargetDir)

	if _, err := s.runner.Run(ctx, "git", "-C", s.cfg.TargetDir, "fetch", "origin"); err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}

	if _, err := s.runner.Run(ctx, "git", "-C", s.cfg.TargetDir, "reset", "--hard", "origin/HEAD"); err != nil {
		return fmt.Errorf("git reset failed: %w", err)
	}
	return nil
}
