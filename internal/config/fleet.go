package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Role string

const (
	RoleMaster Role = "master"
	RoleClient Role = "client"
)

// RoleTable maps fully-qualified hostnames to their fleet role.
// Hosts not present in the table are clients.
type RoleTable map[string]Role

func (t RoleTable) Resolve(hostname string) Role {
	if t[hostname] == RoleMaster {
		return RoleMaster
	}
	return RoleClient
}

type NamingScheme string

const (
	// NamingDomain stores pairs as <domain>.crt / <domain>.key.
	NamingDomain NamingScheme = "domain"
	// NamingLetsEncrypt stores pairs as fullchain.pem / privkey.pem.
	NamingLetsEncrypt NamingScheme = "letsencrypt"
)

type CertsConfig struct {
	Domain       string       `yaml:"domain"`
	SourceDir    string       `yaml:"sourceDir"`
	CacheDir     string       `yaml:"cacheDir"`
	CanonicalDir string       `yaml:"canonicalDir"`
	Naming       NamingScheme `yaml:"naming"`
}

type ServiceBinding struct {
	// Kind is "systemd" or "docker".
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`
	// DestDir, when set, receives a copy of the canonical pair before
	// the restart is issued.
	DestDir string `yaml:"destDir"`
	// Action is "restart" (default) or "reload"; docker bindings only
	// support restart.
	Action string `yaml:"action"`
}

type RemoteHost struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	KeyPath  string `yaml:"keyPath"`
	Password string `yaml:"password"`
}

type MailConfig struct {
	RelayHost string `yaml:"relayHost"`
	RelayPort int    `yaml:"relayPort"`
	SASLUser  string `yaml:"saslUser"`
	// SecretCommand is the secrets-manager CLI invocation that prints
	// the SASL password on stdout, e.g. ["bw", "get", "password", "smtp-relay"].
	SecretCommand []string `yaml:"secretCommand"`
	ConfigDir     string   `yaml:"configDir"`
}

type DotfilesConfig struct {
	RepoURL   string `yaml:"repoURL"`
	TargetDir string `yaml:"targetDir"`
	// ProfileInclude, when set, names a file inside the checkout that
	// gets sourced from the user's .bashrc.
	ProfileInclude string `yaml:"profileInclude"`
}

type ScriptMirror struct {
	SourceDir string `yaml:"sourceDir"`
	DestDir   string `yaml:"destDir"`
}

type BootstrapConfig struct {
	Packages       []string `yaml:"packages"`
	Timezone       string   `yaml:"timezone"`
	Hostname       string   `yaml:"hostname"`
	AuthorizedKeys []string `yaml:"authorizedKeys"`
}

type Fleet struct {
	Roles     RoleTable        `yaml:"roles"`
	Certs     CertsConfig      `yaml:"certs"`
	Services  []ServiceBinding `yaml:"services"`
	Remotes   []RemoteHost     `yaml:"remotes"`
	Mail      MailConfig       `yaml:"mail"`
	Dotfiles  DotfilesConfig   `yaml:"dotfiles"`
	Scripts   []ScriptMirror   `yaml:"scripts"`
	Bootstrap BootstrapConfig  `yaml:"bootstrap"`
}

func LoadFleet(path string) (*Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fleet config %s: %w", path, err)
	}

	var fleet Fleet
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return nil, fmt.Errorf("invalid fleet config %s: %w", path, err)
	}

	if err := fleet.validate(); err != nil {
		return nil, fmt.Errorf("fleet config %s: %w", path, err)
	}

	return &fleet, nil
}

func (f *Fleet) validate() error {
	if f.Certs.Domain == "" {
		return fmt.Errorf("certs.domain is required")
	}
	if f.Certs.SourceDir == "" || f.Certs.CacheDir == "" || f.Certs.CanonicalDir == "" {
		return fmt.Errorf("certs.sourceDir, certs.cacheDir and certs.canonicalDir are required")
	}

	if f.Certs.Naming == "" {
		f.Certs.Naming = NamingDomain
	}
	if f.Certs.Naming != NamingDomain && f.Certs.Naming != NamingLetsEncrypt {
		return fmt.Errorf("certs.naming must be %q or %q, got %q", NamingDomain, NamingLetsEncrypt, f.Certs.Naming)
	}

	for i, svc := range f.Services {
		if svc.Kind != "systemd" && svc.Kind != "docker" {
			return fmt.Errorf("services[%d].kind must be systemd or docker, got %q", i, svc.Kind)
		}
		if svc.Name == "" {
			return fmt.Errorf("services[%d].name is required", i)
		}
		if svc.Kind == "docker" && svc.Action == "reload" {
			return fmt.Errorf("services[%d]: docker bindings only support restart", i)
		}
	}

	return nil
}

// EnsureDirectories creates the per-host canonical directory and checks
// it is writable before any reconciliation starts.
func (f *Fleet) EnsureDirectories() error {
	if err := ensureWritableDir(f.Certs.CanonicalDir); err != nil {
		return fmt.Errorf("failed to ensure directory %s: %w", f.Certs.CanonicalDir, err)
	}
	return nil
}
