// Package paths resolves the daemon's configuration file and plugin/effect
// data directories across a layered search path: the working directory,
// the XDG config home, and the system-wide /etc tree.
package paths

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// ConfigDirName is the subdirectory keyledsd claims under the user's
// config home and under /etc.
const ConfigDirName = "keyledsd"

// DefaultConfigDir returns the platform-specific per-user configuration
// directory.
func DefaultConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if appdata := os.Getenv("AppData"); appdata != "" {
			return filepath.Join(appdata, ConfigDirName), nil
		}
		return "", errors.New("paths: AppData not set")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, ConfigDirName), nil
		}
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, ".config", ConfigDirName), nil
		}
		return "", errors.New("paths: HOME not set")
	}
}

// ConfigCandidates builds the ordered list of configuration file paths to
// try, by extension: an explicit userPath always comes first, then the
// working directory, then the XDG config home, then /etc/keyledsd.
func ConfigCandidates(userPath string) []string {
	var out []string
	if userPath != "" {
		out = append(out, userPath)
	}

	if wd, err := os.Getwd(); err == nil {
		out = append(out, filepath.Join(wd, "keyledsd.yaml"), filepath.Join(wd, "keyledsd.yml"))
	}
	if dir, err := DefaultConfigDir(); err == nil {
		out = append(out, filepath.Join(dir, "keyledsd.yaml"), filepath.Join(dir, "keyledsd.yml"))
	}
	if runtime.GOOS != "windows" {
		out = append(out, filepath.Join("/etc", ConfigDirName, "keyledsd.yaml"), filepath.Join("/etc", ConfigDirName, "keyledsd.yml"))
	}
	return out
}

// EffectDataPaths builds the search path effect plugins read data files
// from (layout XMLs, palettes, images), in priority order: the XDG data
// home's keyledsd subdirectory, then /usr/share/keyledsd.
func EffectDataPaths() []string {
	var out []string
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		out = append(out, filepath.Join(xdg, ConfigDirName))
	} else if home := os.Getenv("HOME"); home != "" {
		out = append(out, filepath.Join(home, ".local", "share", ConfigDirName))
	}
	out = append(out, filepath.Join("/usr", "share", ConfigDirName))
	return out
}

// PluginSearchPaths builds the directories a plugin.Manager searches for
// fx_<name>.so, layering any user-configured plugin-paths ahead of the
// system default.
func PluginSearchPaths(configured []string) []string {
	out := make([]string, 0, len(configured)+1)
	out = append(out, configured...)
	out = append(out, filepath.Join("/usr", "lib", ConfigDirName, "plugins"))
	return out
}

// EnsureDir creates the directory containing filePath, if missing.
func EnsureDir(filePath string) error {
	return os.MkdirAll(filepath.Dir(filePath), 0o755)
}

// FirstExisting returns the first path in candidates that exists on disk,
// or "" if none do.
func FirstExisting(candidates []string) string {
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
