package scripts

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sub-lime-time/initial-setup/internal/config"
	"github.com/Sub-lime-time/initial-setup/pkg/executor"
)

type rsyncRunner struct {
	commands []string
}

func (r *rsyncRunner) run(name string, args ...string) (*executor.Result, error) {
	r.commands = append(r.commands, name+" "+strings.Join(args, " "))
	return &executor.Result{}, nil
}

func (r *rsyncRunner) Run(_ context.Context, name string, args ...string) (*executor.Result, error) {
	return r.run(name, args...)
}

func (r *rsyncRunner) RunQuiet(_ context.Context, name string, args ...string) (*executor.Result, error) {
	return r.run(name, args...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMirrorSync(t *testing.T) {
	t.Run("RunsRsyncPerMirror", func(t *testing.T) {
		runner := &rsyncRunner{}
		source := t.TempDir()
		dest := filepath.Join(t.TempDir(), "scripts")

		m := NewMirror([]config.ScriptMirror{{SourceDir: source, DestDir: dest}}, runner, testLogger())
		if err := m.Sync(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(runner.commands) != 1 {
			t.Fatalf("expected 1 rsync, got %d", len(runner.commands))
		}
		cmd := runner.commands[0]
		if !strings.Contains(cmd, "rsync -a --delete") {
			t.Errorf("unexpected rsync invocation %q", cmd)
		}
		if !strings.Contains(cmd, source+"/ ") {
			t.Errorf("expected trailing slash on source in %q", cmd)
		}
	})

	t.Run("MissingShareAborts", func(t *testing.T) {
		runner := &rsyncRunner{}
		missing := filepath.Join(t.TempDir(), "nfs-not-mounted")

		m := NewMirror([]config.ScriptMirror{{SourceDir: missing, DestDir: t.TempDir()}}, runner, testLogger())
		if err := m.Sync(context.Background()); err == nil {
			t.Fatal("expected error for missing script share")
		}
		if len(runner.commands) != 0 {
			t.Error("rsync must not run when the share is absent")
		}
	})
}
