package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Sub-lime-time/initial-setup/internal/certs"
	"github.com/Sub-lime-time/initial-setup/internal/config"
	"github.com/Sub-lime-time/initial-setup/pkg/executor"
)

// DependentService is one consumer of the canonical certificate pair.
// Detect answers whether the service is present on this host, Apply
// copies the pair into the service's expected location, Restart makes
// the service pick it up. Each implementation is independently fallible.
type DependentService interface {
	Name() string
	Detect(ctx context.Context) bool
	Apply(ctx context.Context, pair certs.Pair) error
	Restart(ctx context.Context) error
}

type SystemdService struct {
	unit    string
	action  string
	destDir string
	cfg     config.CertsConfig
	runner  executor.Runner
}

func (s *SystemdService) Name() string {
	return "systemd/" + s.unit
}

func (s *SystemdService) Detect(ctx context.Context) bool {
	// systemctl cat fails for units without a unit file.
	_, err := s.runner.RunQuiet(ctx, "systemctl", "cat", s.unit)
	return err == nil
}

func (s *SystemdService) Apply(ctx context.Context, pair certs.Pair) error {
	return copyPairInto(pair, s.destDir, s.cfg)
}

func (s *SystemdService) Restart(ctx context.Context) error {
	action := s.action
	if action == "" {
		action = "restart"
	}
	if _, err := s.runner.Run(ctx, "systemctl", action, s.unit); err != nil {
		return fmt.Errorf("systemctl %s %s: %w", action, s.unit, err)
	}
	return nil
}

type DockerService struct {
	container string
	destDir   string
	cfg       config.CertsConfig
	runner    executor.Runner
}

func (s *DockerService) Name() string {
	return "docker/" + s.container
}

func (s *DockerService) Detect(ctx context.Context) bool {
	_, err := s.runner.RunQuiet(ctx, "docker", "inspect", "--format", "{{.State.Running}}", s.container)
	return err == nil
}

func (s *DockerService) Apply(ctx context.Context, pair certs.Pair) error {
	return copyPairInto(pair, s.destDir, s.cfg)
}

func (s *DockerService) Restart(ctx context.Context) error {
	if _, err := s.runner.Run(ctx, "docker", "restart", s.container); err != nil {
		return fmt.Errorf("docker restart %s: %w", s.container, err)
	}
	return nil
}

func copyPairInto(pair certs.Pair, destDir string, cfg config.CertsConfig) error {
	if destDir == "" {
		return nil
	}
	dst := certs.PairIn(destDir, cfg.Domain, cfg.Naming)
	if err := pair.CopyTo(dst); err != nil {
		return fmt.Errorf("copy pair into %s: %w", destDir, err)
	}
	return nil
}

// FromBindings builds the dependent-service list from the fleet config.
// Unknown kinds are rejected earlier by config validation.
func FromBindings(bindings []config.ServiceBinding, cfg config.CertsConfig, runner executor.Runner, logger *slog.Logger) []DependentService {
	services := make([]DependentService, 0, len(bindings))
	for _, b := range bindings {
		switch b.Kind {
		case "systemd":
			services = append(services, &SystemdService{
				unit:    b.Name,
				action:  b.Action,
				destDir: b.DestDir,
				cfg:     cfg,
				runner:  runner,
			})
		case "docker":
			services = append(services, &DockerService{
				container: b.Name,
				destDir:   b.DestDir,
				cfg:       cfg,
				runner:    runner,
			})
		default:
			logger.Warn("Skipping service binding with unknown kind", "kind", b.Kind, "name", b.Name)
		}
	}
	return services
}
