package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sub-lime-time/initial-setup/internal/config"
	"github.com/Sub-lime-time/initial-setup/internal/pkgmgr"
	"github.com/Sub-lime-time/initial-setup/internal/sysinfo"
	"github.com/Sub-lime-time/initial-setup/pkg/executor"
)

// Bootstrapper performs the initial OS setup: base packages, timezone,
// hostname and SSH authorized keys. Every step checks current state
// first and only acts on a difference.
type Bootstrapper struct {
	cfg                config.BootstrapConfig
	apt                *pkgmgr.Apt
	runner             executor.Runner
	logger             *slog.Logger
	authorizedKeysPath string
}

func New(cfg config.BootstrapConfig, apt *pkgmgr.Apt, runner executor.Runner, logger *slog.Logger) *Bootstrapper {
	return &Bootstrapper{
		cfg:                cfg,
		apt:                apt,
		runner:             runner,
		logger:             logger,
		authorizedKeysPath: defaultAuthorizedKeysPath(),
	}
}

func defaultAuthorizedKeysPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "authorized_keys")
}

func (b *Bootstrapper) Run(ctx context.Context) error {
	if len(b.cfg.Packages) > 0 {
		if err := b.apt.EnsureInstalled(ctx, b.cfg.Packages...); err != nil {
			return fmt.Errorf("install base packages: %w", err)
		}
	}

	if err := b.ensureTimezone(ctx); err != nil {
		return err
	}

	if err := b.ensureHostname(ctx); err != nil {
		return err
	}

	if err := b.ensureAuthorizedKeys(); err != nil {
		return err
	}

	b.logger.Info("Bootstrap completed")
	return nil
}

func (b *Bootstrapper) ensureTimezone(ctx context.Context) error {
	if b.cfg.Timezone == "" {
		return nil
	}

	result, err := b.runner.RunQuiet(ctx, "timedatectl", "show", "-p", "Timezone", "--value")
	if err == nil && strings.TrimSpace(result.Stdout) == b.cfg.Timezone {
		b.logger.Debug("Timezone already set", "timezone", b.cfg.Timezone)
		return nil
	}

	b.logger.Info("Setting timezone", "timezone", b.cfg.Timezone)
	if _, err := b.runner.Run(ctx, "timedatectl", "set-timezone", b.cfg.Timezone); err != nil {
		return fmt.Errorf("set timezone: %w", err)
	}
	return nil
}

func (b *Bootstrapper) ensureHostname(ctx context.Context) error {
	if b.cfg.Hostname == "" {
		return nil
	}

	if sysinfo.Hostname() == strings.ToLower(b.cfg.Hostname) {
		b.logger.Debug("Hostname already set", "hostname", b.cfg.Hostname)
		return nil
	}

	b.logger.Info("Setting hostname", "hostname", b.cfg.Hostname)
	if _, err := b.runner.Run(ctx, "hostnamectl", "set-hostname", b.cfg.Hostname); err != nil {
		return fmt.Errorf("set hostname: %w", err)
	}
	return nil
}

// ensureAuthorizedKeys appends the configured public keys to
// authorized_keys, skipping entries already present.
func (b *Bootstrapper) ensureAuthorizedKeys() error {
	if len(b.cfg.AuthorizedKeys) == 0 {
		return nil
	}
	if b.authorizedKeysPath == "" {
		return fmt.Errorf("cannot determine authorized_keys path")
	}

	if err := os.MkdirAll(filepath.Dir(b.authorizedKeysPath), 0700); err != nil {
		return fmt.Errorf("create .ssh dir: %w", err)
	}

	existing, err := os.ReadFile(b.authorizedKeysPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read authorized_keys: %w", err)
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(existing), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			present[line] = true
		}
	}

	var missing []string
	for _, key := range b.cfg.AuthorizedKeys {
		if key = strings.TrimSpace(key); key != "" && !present[key] {
			missing = append(missing, key)
		}
	}

	if len(missing) == 0 {
		b.logger.Debug("Authorized keys already present")
		return nil
	}

	f, err := os.OpenFile(b.authorizedKeysPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open authorized_keys: %w", err)
	}
	defer f.Close()

	content := strings.Join(missing, "\n") + "\n"
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		content = "\n" + content
	}
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("append authorized_keys: %w", err)
	}

	b.logger.Info("Added SSH authorized keys", "count", len(missing))
	return nil
}
