package runtime

import (
	"os"
	"path/filepath"
	"strings"
)

// HostKind distinguishes a packaged install from a browser-style host.
type HostKind string

const (
	HostPackaged HostKind = "packaged"
	HostBrowser  HostKind = "browser"
)

// HostEnv is the environment variable that forces the host kind.
const HostEnv = "CODEPAD_HOST"

// ProbeEnv abstracts the process environment for DetectHost.
type ProbeEnv struct {
	Getenv     func(string) string
	Executable func() (string, error)
	Stat       func(string) (os.FileInfo, error)
}

// SystemProbe reads the real process environment.
func SystemProbe() ProbeEnv {
	return ProbeEnv{Getenv: os.Getenv, Executable: os.Executable, Stat: os.Stat}
}

// ParseHost maps a config or env value to a HostKind; ok is false for "auto" or unknown.
func ParseHost(v string) (HostKind, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "packaged", "desktop", "local":
		return HostPackaged, true
	case "browser", "web", "remote":
		return HostBrowser, true
	default:
		return "", false
	}
}

// DetectHost decides the host kind: the CODEPAD_HOST variable wins, then a
// runtime/prelude.lua next to the executable means a packaged install.
func DetectHost(env ProbeEnv) HostKind {
	if env.Getenv != nil {
		if kind, ok := ParseHost(env.Getenv(HostEnv)); ok {
			return kind
		}
	}
	if env.Executable != nil && env.Stat != nil {
		if exe, err := env.Executable(); err == nil {
			if _, err := env.Stat(filepath.Join(filepath.Dir(exe), "runtime", PreludeFile)); err == nil {
				return HostPackaged
			}
		}
	}
	return HostBrowser
}

// PackagedBundleDir returns the bundle directory beside the executable, or "".
func PackagedBundleDir(env ProbeEnv) string {
	if env.Executable == nil {
		return ""
	}
	exe, err := env.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(exe), "runtime")
}
