package di

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/google/wire"
	"github.com/lmittmann/tint"

	"github.com/Sub-lime-time/initial-setup/internal/bootstrap"
	"github.com/Sub-lime-time/initial-setup/internal/certs"
	"github.com/Sub-lime-time/initial-setup/internal/config"
	"github.com/Sub-lime-time/initial-setup/internal/distribute"
	"github.com/Sub-lime-time/initial-setup/internal/dotfiles"
	"github.com/Sub-lime-time/initial-setup/internal/mail"
	"github.com/Sub-lime-time/initial-setup/internal/pkgmgr"
	"github.com/Sub-lime-time/initial-setup/internal/scripts"
	"github.com/Sub-lime-time/initial-setup/internal/services"
	"github.com/Sub-lime-time/initial-setup/pkg/executor"
)

const Version = "0.1.0"

var ConfigSet = wire.NewSet(
	config.Load,
	ProvideFleet,
)

var LoggerSet = wire.NewSet(
	ProvideLogger,
)

var ExecutorSet = wire.NewSet(
	ProvideExecutor,
	wire.Bind(new(executor.Runner), new(*executor.Executor)),
)

var MaintenanceSet = wire.NewSet(
	ProvideApt,
	ProvideReconciler,
	ProvideDispatcher,
	ProvideDistributor,
	ProvideBootstrapper,
	ProvidePostfix,
	ProvideDotfiles,
	ProvideScripts,
)

var AppSet = wire.NewSet(
	ConfigSet,
	LoggerSet,
	ExecutorSet,
	MaintenanceSet,
	wire.Struct(new(Application), "*"),
)

func ProvideFleet(cfg *config.Config) (*config.Fleet, error) {
	return config.LoadFleet(cfg.FleetFile)
}

func ProvideLogger(cfg *config.Config) *slog.Logger {
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}

	return slog.New(handler).With("runId", uuid.NewString())
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func ProvideExecutor(cfg *config.Config, logger *slog.Logger) *executor.Executor {
	return executor.New("", cfg.CommandTimeout, logger)
}

func ProvideApt(cfg *config.Config, runner executor.Runner, logger *slog.Logger) *pkgmgr.Apt {
	return pkgmgr.NewApt(runner, logger, cfg.AptLockPoll, cfg.AptLockMaxAttempts)
}

func ProvideReconciler(fleet *config.Fleet, logger *slog.Logger) *certs.Reconciler {
	return certs.NewReconciler(fleet.Certs, fleet.Roles, logger)
}

func ProvideDispatcher(fleet *config.Fleet, runner executor.Runner, logger *slog.Logger) *services.Dispatcher {
	return services.NewDispatcher(services.FromBindings(fleet.Services, fleet.Certs, runner, logger), logger)
}

func ProvideDistributor(cfg *config.Config, fleet *config.Fleet, logger *slog.Logger) *distribute.Distributor {
	return distribute.New(fleet.Certs, fleet.Remotes, cfg.SSHTimeout, logger)
}

func ProvideBootstrapper(fleet *config.Fleet, apt *pkgmgr.Apt, runner executor.Runner, logger *slog.Logger) *bootstrap.Bootstrapper {
	return bootstrap.New(fleet.Bootstrap, apt, runner, logger)
}

func ProvidePostfix(fleet *config.Fleet, apt *pkgmgr.Apt, runner executor.Runner, logger *slog.Logger) *mail.Postfix {
	return mail.NewPostfix(fleet.Mail, apt, runner, logger)
}

func ProvideDotfiles(fleet *config.Fleet, runner executor.Runner, logger *slog.Logger) *dotfiles.Syncer {
	return dotfiles.NewSyncer(fleet.Dotfiles, runner, logger)
}

func ProvideScripts(fleet *config.Fleet, runner executor.Runner, logger *slog.Logger) *scripts.Mirror {
	return scripts.NewMirror(fleet.Scripts, runner, logger)
}

type Application struct {
	Config       *config.Config
	Fleet        *config.Fleet
	Logger       *slog.Logger
	Reconciler   *certs.Reconciler
	Dispatcher   *services.Dispatcher
	Distributor  *distribute.Distributor
	Bootstrapper *bootstrap.Bootstrapper
	Postfix      *mail.Postfix
	Dotfiles     *dotfiles.Syncer
	Scripts      *scripts.Mirror
}
