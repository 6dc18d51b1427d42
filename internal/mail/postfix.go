package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sub-lime-time/initial-setup/internal/config"
	"github.com/Sub-lime-time/initial-setup/internal/pkgmgr"
	"github.com/Sub-lime-time/initial-setup/pkg/executor"
)

const (
	defaultConfigDir = "/etc/postfix"
	defaultRelayPort = 587
	saslPasswdName   = "sasl_passwd"
)

// Postfix configures the host as an authenticated SMTP relay client.
// Settings go through postconf so main.cf stays postfix-managed; the
// SASL credential file is only rewritten (and postmapped) when its
// content differs, and postfix is reloaded only after an actual change.
type Postfix struct {
	cfg    config.MailConfig
	apt    *pkgmgr.Apt
	runner executor.Runner
	logger *slog.Logger
}

func NewPostfix(cfg config.MailConfig, apt *pkgmgr.Apt, runner executor.Runner, logger *slog.Logger) *Postfix {
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = defaultConfigDir
	}
	if cfg.RelayPort == 0 {
		cfg.RelayPort = defaultRelayPort
	}
	return &Postfix{
		cfg:    cfg,
		apt:    apt,
		runner: runner,
		logger: logger,
	}
}

func (p *Postfix) Configure(ctx context.Context) error {
	if p.cfg.RelayHost == "" {
		return fmt.Errorf("mail.relayHost is required")
	}
	if p.cfg.SASLUser == "" || len(p.cfg.SecretCommand) == 0 {
		return fmt.Errorf("mail.saslUser and mail.secretCommand are required")
	}

	if err := p.apt.EnsureInstalled(ctx, "postfix", "libsasl2-modules"); err != nil {
		return fmt.Errorf("install postfix: %w", err)
	}

	password, err := p.fetchRelayPassword(ctx)
	if err != nil {
		return err
	}

	changed, err := p.applySettings(ctx)
	if err != nil {
		return err
	}

	credsChanged, err := p.writeSASLPasswd(ctx, password)
	if err != nil {
		return err
	}
	changed = changed || credsChanged

	if !changed {
		p.logger.Info("Postfix relay configuration already current")
		return nil
	}

	if _, err := p.runner.Run(ctx, "systemctl", "reload", "postfix"); err != nil {
		return fmt.Errorf("reload postfix: %w", err)
	}

	p.logger.Info("Postfix relay configuration applied", "relayHost", p.cfg.RelayHost)
	return nil
}

// fetchRelayPassword runs the configured secrets-manager CLI and takes
// its stdout as the SASL password. An empty result is fatal.
func (p *Postfix) fetchRelayPassword(ctx context.Context) (string, error) {
	result, err := p.runner.RunQuiet(ctx, p.cfg.SecretCommand[0], p.cfg.SecretCommand[1:]...)
	if err != nil {
		return "", fmt.Errorf("fetch relay password: %w", err)
	}

	password := strings.TrimSpace(result.Stdout)
	if password == "" {
		return "", fmt.Errorf("secrets manager returned an empty relay password")
	}
	return password, nil
}

func (p *Postfix) relaySettings() [][2]string {
	return [][2]string{
		{"relayhost", fmt.Sprintf("[%s]:%d", p.cfg.RelayHost, p.cfg.RelayPort)},
		{"smtp_sasl_auth_enable", "yes"},
		{"smtp_sasl_password_maps", "hash:" + filepath.Join(p.cfg.ConfigDir, saslPasswdName)},
		{"smtp_sasl_security_options", "noanonymous"},
		{"smtp_tls_security_level", "encrypt"},
	}
}

func (p *Postfix) applySettings(ctx context.Context) (bool, error) {
	changed := false

	for _, setting := range p.relaySettings() {
		key, value := setting[0], setting[1]

		current, err := p.runner.RunQuiet(ctx, "postconf", "-h", key)
		if err == nil && strings.TrimSpace(current.Stdout) == value {
			continue
		}

		if _, err := p.runner.Run(ctx, "postconf", "-e", fmt.Sprintf("%s = %s", key, value)); err != nil {
			return changed, fmt.Errorf("postconf %s: %w", key, err)
		}
		p.logger.Debug("Updated postfix setting", "key", key)
		changed = true
	}

	return changed, nil
}

func (p *Postfix) writeSASLPasswd(ctx context.Context, password string) (bool, error) {
	path := filepath.Join(p.cfg.ConfigDir, saslPasswdName)
	content := []byte(fmt.Sprintf("[%s]:%d %s:%s\n", p.cfg.RelayHost, p.cfg.RelayPort, p.cfg.SASLUser, password))

	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, content) {
		return false, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	if err := os.WriteFile(path, content, 0600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}

	if _, err := p.runner.Run(ctx, "postmap", path); err != nil {
		return false, fmt.Errorf("postmap %s: %w", path, err)
	}

	p.logger.Info("Updated SASL credential map")
	return true, nil
}
