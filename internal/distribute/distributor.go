package distribute

import (
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/Sub-lime-time/initial-setup/internal/certs"
	"github.com/Sub-lime-time/initial-setup/internal/config"
)

const (
	defaultSSHPort = 22
	// remoteReconcileCmd makes the remote host apply the freshly pushed
	// pair to its canonical location and restart its dependents.
	remoteReconcileCmd = "initial-setup certs"
)

// Distributor pushes the canonical certificate pair into the shared
// cache directory of each remote fleet host over SSH/SFTP and triggers
// the remote reconcile. Per-host failures are logged and skipped, like
// the service dispatcher; a missing local pair is fatal up front.
type Distributor struct {
	cfg     config.CertsConfig
	remotes []config.RemoteHost
	timeout time.Duration
	logger  *slog.Logger
}

func New(cfg config.CertsConfig, remotes []config.RemoteHost, timeout time.Duration, logger *slog.Logger) *Distributor {
	return &Distributor{
		cfg:     cfg,
		remotes: remotes,
		timeout: timeout,
		logger:  logger,
	}
}

// PushAll distributes to every configured remote. Returns the number of
// hosts that failed.
func (d *Distributor) PushAll() (int, error) {
	pair := certs.PairIn(d.cfg.CanonicalDir, d.cfg.Domain, d.cfg.Naming)
	if !pair.Exists() {
		return 0, fmt.Errorf("canonical pair for %s not found in %s", d.cfg.Domain, d.cfg.CanonicalDir)
	}

	failed := 0
	for _, remote := range d.remotes {
		if err := pushFn(d, remote, pair); err != nil {
			d.logger.Warn("Failed to distribute to host", "host", remote.Host, "error", err)
			failed++
			continue
		}
		d.logger.Info("Distributed certificate pair", "host", remote.Host)
	}

	return failed, nil
}

func (d *Distributor) push(remote config.RemoteHost, pair certs.Pair) error {
	client, err := d.connect(remote)
	if err != nil {
		return fmt.Errorf("ssh connect: %w", err)
	}
	defer client.Close()

	if err := writeRemotePairFn(client, d.cfg, pair); err != nil {
		return fmt.Errorf("write remote pair: %w", err)
	}

	if err := runCommandFn(client, remoteReconcileCmd); err != nil {
		return fmt.Errorf("remote reconcile: %w", err)
	}
	return nil
}

func (d *Distributor) connect(remote config.RemoteHost) (*ssh.Client, error) {
	var authMethods []ssh.AuthMethod
	if remote.KeyPath != "" {
		keyData, err := os.ReadFile(remote.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if remote.Password != "" {
		authMethods = append(authMethods, ssh.Password(remote.Password))
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no ssh auth methods configured for %s", remote.Host)
	}

	port := remote.Port
	if port == 0 {
		port = defaultSSHPort
	}

	sshConfig := &ssh.ClientConfig{
		User:            remote.User,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.timeout,
	}

	return dialFn("tcp", net.JoinHostPort(remote.Host, fmt.Sprintf("%d", port)), sshConfig)
}

var (
	dialFn            = ssh.Dial
	pushFn            = (*Distributor).push
	runCommandFn      = runCommand
	writeRemotePairFn = writeRemotePair
)

// writeRemotePair stages both files under temporary names in the remote
// cache directory and renames them only after both writes succeed,
// preserving the local modification times so the remote mtime
// comparison sees the pushed pair as newest.
func writeRemotePair(client *ssh.Client, cfg config.CertsConfig, pair certs.Pair) error {
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("create sftp client: %w", err)
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(cfg.CacheDir); err != nil {
		return fmt.Errorf("create remote cache dir: %w", err)
	}

	remote := certs.PairIn(cfg.CacheDir, cfg.Domain, cfg.Naming)
	files := [][2]string{
		{pair.CertPath, remote.CertPath},
		{pair.KeyPath, remote.KeyPath},
	}

	var staged []string
	for _, f := range files {
		tmpPath := f[1] + ".tmp"
		if err := stageRemoteFile(sftpClient, f[0], tmpPath); err != nil {
			removeRemote(sftpClient, staged)
			return err
		}
		staged = append(staged, tmpPath)
	}

	for i, f := range files {
		if err := sftpClient.PosixRename(staged[i], f[1]); err != nil {
			removeRemote(sftpClient, staged[i:])
			return fmt.Errorf("rename %s: %w", f[1], err)
		}
	}

	return nil
}

func stageRemoteFile(client *sftp.Client, localPath, remotePath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", localPath, err)
	}

	file, err := client.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("create %s: %w", remotePath, err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", remotePath, err)
	}
	if err := file.Chmod(0600); err != nil {
		file.Close()
		return fmt.Errorf("chmod %s: %w", remotePath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", remotePath, err)
	}

	if err := client.Chtimes(remotePath, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("preserve mtime on %s: %w", remotePath, err)
	}

	return nil
}

func removeRemote(client *sftp.Client, paths []string) {
	for _, p := range paths {
		_ = client.Remove(p)
	}
}

func runCommand(client *ssh.Client, cmd string) error {
	session, err := client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stderr = &stderr
	if err := session.Run(cmd); err != nil {
		return fmt.Errorf("command failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
