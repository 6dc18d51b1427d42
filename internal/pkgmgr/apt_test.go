package pkgmgr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Sub-lime-time/initial-setup/pkg/executor"
)

// seqRunner answers each matching command from a queue, so lock
// contention that clears after a few polls can be simulated.
type seqRunner struct {
	commands  []string
	installed map[string]bool
	failures  int
	lockErr   error
	finalErr  error
}

func newSeqRunner() *seqRunner {
	return &seqRunner{
		installed: make(map[string]bool),
		lockErr:   fmt.Errorf("could not get lock /var/lib/dpkg/lock-frontend"),
	}
}

func (s *seqRunner) run(name string, args ...string) (*executor.Result, error) {
	cmd := name + " " + strings.Join(args, " ")
	s.commands = append(s.commands, cmd)

	if name == "dpkg" && len(args) == 2 {
		if s.installed[args[1]] {
			return &executor.Result{}, nil
		}
		return &executor.Result{ExitCode: 1}, fmt.Errorf("package not installed")
	}

	if name == "apt-get" {
		if s.failures > 0 {
			s.failures--
			return &executor.Result{ExitCode: 100}, s.lockErr
		}
		if s.finalErr != nil {
			return &executor.Result{ExitCode: 100}, s.finalErr
		}
		return &executor.Result{}, nil
	}

	return &executor.Result{}, nil
}

func (s *seqRunner) Run(_ context.Context, name string, args ...string) (*executor.Result, error) {
	return s.run(name, args...)
}

func (s *seqRunner) RunQuiet(_ context.Context, name string, args ...string) (*executor.Result, error) {
	return s.run(name, args...)
}

func (s *seqRunner) countCommands(substr string) int {
	count := 0
	for _, cmd := range s.commands {
		if strings.Contains(cmd, substr) {
			count++
		}
	}
	return count
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApt(runner executor.Runner, maxAttempts int) *Apt {
	return NewApt(runner, testLogger(), time.Millisecond, maxAttempts)
}

func TestEnsureInstalled(t *testing.T) {
	t.Run("SkipsPresentPackages", func(t *testing.T) {
		runner := newSeqRunner()
		runner.installed["rsync"] = true
		runner.installed["postfix"] = true

		if err := newTestApt(runner, 3).EnsureInstalled(context.Background(), "rsync", "postfix"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if runner.countCommands("apt-get") != 0 {
			t.Error("should not run apt-get when everything is installed")
		}
	})

	t.Run("InstallsOnlyMissing", func(t *testing.T) {
		runner := newSeqRunner()
		runner.installed["rsync"] = true

		if err := newTestApt(runner, 3).EnsureInstalled(context.Background(), "rsync", "postfix"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if runner.countCommands("apt-get install -y -qq postfix") != 1 {
			t.Errorf("expected a single apt-get install of postfix, got commands %v", runner.commands)
		}
	})

	t.Run("RetriesThroughLockContention", func(t *testing.T) {
		runner := newSeqRunner()
		runner.failures = 2

		if err := newTestApt(runner, 5).EnsureInstalled(context.Background(), "postfix"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := runner.countCommands("apt-get"); got != 3 {
			t.Errorf("expected 3 apt-get attempts, got %d", got)
		}
	})

	t.Run("GivesUpAfterMaxAttempts", func(t *testing.T) {
		runner := newSeqRunner()
		runner.failures = 10

		err := newTestApt(runner, 3).EnsureInstalled(context.Background(), "postfix")
		if err == nil || !strings.Contains(err.Error(), "3 attempts") {
			t.Fatalf("expected lock exhaustion error, got %v", err)
		}
		if got := runner.countCommands("apt-get"); got != 3 {
			t.Errorf("expected 3 apt-get attempts, got %d", got)
		}
	})

	t.Run("NonLockErrorIsNotRetried", func(t *testing.T) {
		runner := newSeqRunner()
		runner.finalErr = fmt.Errorf("unable to locate package typo-name")

		err := newTestApt(runner, 5).EnsureInstalled(context.Background(), "typo-name")
		if err == nil {
			t.Fatal("expected install error")
		}
		if got := runner.countCommands("apt-get"); got != 1 {
			t.Errorf("expected a single apt-get attempt, got %d", got)
		}
	})

	t.Run("CancelledContextStopsPolling", func(t *testing.T) {
		runner := newSeqRunner()
		runner.failures = 100

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := newTestApt(runner, 0).EnsureInstalled(ctx, "postfix")
		if err == nil {
			t.Fatal("expected context error")
		}
	})
}
