package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/Sub-lime-time/initial-setup/internal/di"
	"github.com/Sub-lime-time/initial-setup/internal/sysinfo"
)

const usage = `Usage: initial-setup <command> [flags]

Commands:
  certs       Reconcile the local certificate pair and restart dependents
  distribute  Push the canonical pair to every remote fleet host
  bootstrap   Install base packages, timezone, hostname and SSH keys
  mail        Configure the Postfix relay
  dotfiles    Clone or update the dotfiles checkout
  scripts     Mirror shared script directories onto this host
  facts       Print host facts

Flags:
  --force     With certs: run the restart dispatch even when nothing changed
  --version   Print version and exit
`

func main() {
	_ = godotenv.Load()

	force := pflag.Bool("force", false, "run restart dispatch even when the pair is unchanged")
	version := pflag.Bool("version", false, "print version and exit")
	pflag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	pflag.Parse()

	if *version {
		fmt.Println("initial-setup", di.Version)
		return
	}

	if pflag.NArg() < 1 {
		pflag.Usage()
		os.Exit(1)
	}
	command := pflag.Arg(0)

	app, err := di.InitializeApplication()
	if err != nil {
		fmt.Fprintln(os.Stderr, "initialization failed:", err)
		os.Exit(1)
	}

	app.Logger.Info("Starting initial-setup", "version", di.Version, "command", command)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	if err := run(ctx, app, command, *force); err != nil {
		app.Logger.Error("Command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, app *di.Application, command string, force bool) error {
	switch command {
	case "certs":
		return runCerts(ctx, app, force)
	case "distribute":
		return runDistribute(app)
	case "bootstrap":
		return app.Bootstrapper.Run(ctx)
	case "mail":
		return app.Postfix.Configure(ctx)
	case "dotfiles":
		return app.Dotfiles.Sync(ctx)
	case "scripts":
		return app.Scripts.Sync(ctx)
	case "facts":
		printFacts(app)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// runCerts is the single entry point both for local runs and for the
// remote trigger sent by distribute.
func runCerts(ctx context.Context, app *di.Application, force bool) error {
	if err := app.Fleet.EnsureDirectories(); err != nil {
		return err
	}

	reconcile := func() (bool, error) {
		return app.Reconciler.Reconcile(sysinfo.Hostname())
	}
	dispatch := func(ctx context.Context) int {
		return app.Dispatcher.RestartDependents(ctx, app.Reconciler.CanonicalPair())
	}
	return reconcileAndRestart(ctx, app.Logger, reconcile, dispatch, force)
}

// reconcileAndRestart gates the restart dispatch on the reconcile
// outcome. The dispatch only runs after a successful reconcile, when
// the canonical pair changed or force is set; a reconcile error aborts
// before any restart, force or not. Restart failures are logged per
// service and do not fail the run.
func reconcileAndRestart(ctx context.Context, logger *slog.Logger, reconcile func() (bool, error), dispatch func(ctx context.Context) int, force bool) error {
	changed, err := reconcile()
	if err != nil {
		return err
	}

	if !changed && !force {
		logger.Info("Certificate pair already current, skipping restarts")
		return nil
	}

	failed := dispatch(ctx)
	if failed > 0 {
		logger.Warn("Some dependent services failed to restart", "failed", failed)
	}
	return nil
}

func runDistribute(app *di.Application) error {
	failed, err := app.Distributor.PushAll()
	if err != nil {
		return err
	}
	if failed > 0 {
		app.Logger.Warn("Some hosts were not updated", "failed", failed)
	}
	return nil
}

func printFacts(app *di.Application) {
	facts := sysinfo.Collect()
	fmt.Printf("hostname:     %s\n", facts.Hostname)
	fmt.Printf("role:         %s\n", app.Fleet.Roles.Resolve(facts.Hostname))
	fmt.Printf("os:           %s %s\n", facts.OS, facts.OSVersion)
	fmt.Printf("kernel:       %s\n", facts.Kernel)
	fmt.Printf("architecture: %s\n", facts.Architecture)
}
