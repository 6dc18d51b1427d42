package certs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Sub-lime-time/initial-setup/internal/config"
)

const (
	letsEncryptCertName = "fullchain.pem"
	letsEncryptKeyName  = "privkey.pem"
)

// Pair is a certificate/private-key file pair at one location. The two
// files are always read and replaced as a unit.
type Pair struct {
	CertPath string
	KeyPath  string
}

func PairIn(dir, domain string, naming config.NamingScheme) Pair {
	if naming == config.NamingLetsEncrypt {
		return Pair{
			CertPath: filepath.Join(dir, letsEncryptCertName),
			KeyPath:  filepath.Join(dir, letsEncryptKeyName),
		}
	}
	return Pair{
		CertPath: filepath.Join(dir, domain+".crt"),
		KeyPath:  filepath.Join(dir, domain+".key"),
	}
}

func (p Pair) Exists() bool {
	for _, path := range []string{p.CertPath, p.KeyPath} {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

// ModTime returns the pair's modification timestamp, the newer of the
// two files.
func (p Pair) ModTime() (time.Time, error) {
	certInfo, err := os.Stat(p.CertPath)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s: %w", p.CertPath, err)
	}
	keyInfo, err := os.Stat(p.KeyPath)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s: %w", p.KeyPath, err)
	}

	mtime := certInfo.ModTime()
	if keyInfo.ModTime().After(mtime) {
		mtime = keyInfo.ModTime()
	}
	return mtime, nil
}

// NewerThan reports whether p should replace other: p is strictly newer,
// or other is absent. Both files of p must exist.
func (p Pair) NewerThan(other Pair) (bool, error) {
	srcTime, err := p.ModTime()
	if err != nil {
		return false, err
	}

	if !other.Exists() {
		return true, nil
	}

	dstTime, err := other.ModTime()
	if err != nil {
		return false, err
	}

	return srcTime.After(dstTime), nil
}

// CopyTo replaces dst with p's contents. Both files are staged to
// temporary names and renamed only after both writes succeed, preserving
// the source modification times so repeated runs are no-ops.
func (p Pair) CopyTo(dst Pair) error {
	certTmp, err := stageCopy(p.CertPath, dst.CertPath)
	if err != nil {
		return err
	}
	keyTmp, err := stageCopy(p.KeyPath, dst.KeyPath)
	if err != nil {
		os.Remove(certTmp)
		return err
	}

	if err := os.Rename(certTmp, dst.CertPath); err != nil {
		os.Remove(certTmp)
		os.Remove(keyTmp)
		return fmt.Errorf("rename %s: %w", dst.CertPath, err)
	}
	if err := os.Rename(keyTmp, dst.KeyPath); err != nil {
		os.Remove(keyTmp)
		return fmt.Errorf("rename %s: %w", dst.KeyPath, err)
	}
	return nil
}

func stageCopy(srcPath, dstPath string) (string, error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", srcPath, err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	tmpPath := dstPath + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return "", fmt.Errorf("create %s: %w", tmpPath, err)
	}

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("copy to %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close %s: %w", tmpPath, err)
	}

	if err := os.Chtimes(tmpPath, info.ModTime(), info.ModTime()); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("preserve mtime on %s: %w", tmpPath, err)
	}

	return tmpPath, nil
}
