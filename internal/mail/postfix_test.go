package mail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sub-lime-time/initial-setup/internal/config"
	"github.com/Sub-lime-time/initial-setup/internal/pkgmgr"
	"github.com/Sub-lime-time/initial-setup/pkg/executor"
)

type relayRunner struct {
	commands  []string
	responses map[string]string
	errors    map[string]error
}

func newRelayRunner() *relayRunner {
	r := &relayRunner{
		responses: make(map[string]string),
		errors:    make(map[string]error),
	}
	// postfix and libsasl2-modules present by default
	r.responses["dpkg -s"] = "Status: install ok installed"
	r.responses["secret-tool lookup"] = "hunter2\n"
	return r
}

func (r *relayRunner) run(name string, args ...string) (*executor.Result, error) {
	cmd := name + " " + strings.Join(args, " ")
	r.commands = append(r.commands, cmd)
	for substr, err := range r.errors {
		if strings.Contains(cmd, substr) {
			return &executor.Result{ExitCode: 1}, err
		}
	}
	for substr, out := range r.responses {
		if strings.Contains(cmd, substr) {
			return &executor.Result{Stdout: out}, nil
		}
	}
	return &executor.Result{}, nil
}

func (r *relayRunner) Run(_ context.Context, name string, args ...string) (*executor.Result, error) {
	return r.run(name, args...)
}

func (r *relayRunner) RunQuiet(_ context.Context, name string, args ...string) (*executor.Result, error) {
	return r.run(name, args...)
}

func (r *relayRunner) hasCommand(substr string) bool {
	for _, cmd := range r.commands {
		if strings.Contains(cmd, substr) {
			return true
		}
	}
	return false
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPostfix(t *testing.T, runner executor.Runner) *Postfix {
	t.Helper()
	cfg := config.MailConfig{
		RelayHost:     "smtp.fastmail.com",
		SASLUser:      "relay@lab.home.arpa",
		SecretCommand: []string{"secret-tool", "lookup", "service", "smtp-relay"},
		ConfigDir:     t.TempDir(),
	}
	apt := pkgmgr.NewApt(runner, testLogger(), time.Millisecond, 3)
	return NewPostfix(cfg, apt, runner, testLogger())
}

func TestConfigure(t *testing.T) {
	t.Run("AppliesSettingsAndReloads", func(t *testing.T) {
		runner := newRelayRunner()
		runner.errors["postconf -h"] = fmt.Errorf("unset")
		p := newTestPostfix(t, runner)

		if err := p.Configure(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !runner.hasCommand("postconf -e relayhost = [smtp.fastmail.com]:587") {
			t.Error("expected relayhost to be set")
		}
		if !runner.hasCommand("postmap") {
			t.Error("expected postmap of sasl_passwd")
		}
		if !runner.hasCommand("systemctl reload postfix") {
			t.Error("expected postfix reload after changes")
		}

		data, err := os.ReadFile(filepath.Join(p.cfg.ConfigDir, saslPasswdName))
		if err != nil {
			t.Fatalf("read sasl_passwd: %v", err)
		}
		want := "[smtp.fastmail.com]:587 relay@lab.home.arpa:hunter2\n"
		if string(data) != want {
			t.Errorf("sasl_passwd = %q, want %q", string(data), want)
		}
	})

	t.Run("NoChangeNoReload", func(t *testing.T) {
		runner := newRelayRunner()
		p := newTestPostfix(t, runner)
		for _, setting := range p.relaySettings() {
			runner.responses["postconf -h "+setting[0]] = setting[1] + "\n"
		}
		saslPath := filepath.Join(p.cfg.ConfigDir, saslPasswdName)
		if err := os.WriteFile(saslPath, []byte("[smtp.fastmail.com]:587 relay@lab.home.arpa:hunter2\n"), 0600); err != nil {
			t.Fatalf("seed sasl_passwd: %v", err)
		}

		if err := p.Configure(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if runner.hasCommand("postconf -e") {
			t.Error("no settings should be rewritten")
		}
		if runner.hasCommand("systemctl reload") {
			t.Error("no reload expected without changes")
		}
	})

	t.Run("SecretFetchFailureIsFatal", func(t *testing.T) {
		runner := newRelayRunner()
		runner.errors["secret-tool"] = fmt.Errorf("locked collection")
		p := newTestPostfix(t, runner)

		if err := p.Configure(context.Background()); err == nil {
			t.Fatal("expected error when the secrets manager fails")
		}
		if runner.hasCommand("postconf -e") {
			t.Error("no settings should be touched when credentials are unavailable")
		}
	})

	t.Run("EmptySecretIsFatal", func(t *testing.T) {
		runner := newRelayRunner()
		runner.responses["secret-tool lookup"] = "\n"
		p := newTestPostfix(t, runner)

		if err := p.Configure(context.Background()); err == nil {
			t.Fatal("expected error for empty relay password")
		}
	})

	t.Run("MissingRelayHostIsFatal", func(t *testing.T) {
		runner := newRelayRunner()
		p := newTestPostfix(t, runner)
		p.cfg.RelayHost = ""

		if err := p.Configure(context.Background()); err == nil {
			t.Fatal("expected error for missing relay host")
		}
	})
}
