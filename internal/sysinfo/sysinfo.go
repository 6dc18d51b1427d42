package sysinfo

import (
	"bufio"
	"os"
	"runtime"
	"strings"

	"golang.org/x/sys/unix"
)

const etcOSRelease = "/etc/os-release"

type Facts struct {
	Hostname     string
	OS           string
	OSVersion    string
	Kernel       string
	Architecture string
}

func Collect() *Facts {
	osName, osVersion := readOSRelease(etcOSRelease)

	return &Facts{
		Hostname:     Hostname(),
		OS:           osName,
		OSVersion:    osVersion,
		Kernel:       readKernelVersion(),
		Architecture: runtime.GOARCH,
	}
}

// Hostname returns the lower-cased host name as reported by the kernel.
// Role lookup keys on the fully-qualified name, which Ubuntu hosts report
// when /etc/hostname carries the FQDN.
func Hostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(hostname))
}

// readOSRelease prefers PRETTY_NAME and falls back to the ID and
// VERSION_ID fields when it is absent.
func readOSRelease(path string) (name, version string) {
	name = "linux"

	f, err := os.Open(path)
	if err != nil {
		return name, ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "PRETTY_NAME=") {
			s := strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), "\"")
			parts := strings.SplitN(s, " ", 2)
			if len(parts) >= 1 {
				name = parts[0]
			}
			if len(parts) >= 2 {
				version = strings.Trim(parts[1], " ()")
			}
			return name, version
		}
		if strings.HasPrefix(line, "ID=") {
			name = strings.Trim(strings.TrimPrefix(line, "ID="), "\"")
		}
		if strings.HasPrefix(line, "VERSION_ID=") {
			version = strings.Trim(strings.TrimPrefix(line, "VERSION_ID="), "\"")
		}
	}
	return name, version
}

func readKernelVersion() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return ""
	}
	return unix.ByteSliceToString(u.Release[:])
}
