package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths are the locations the CLI uses when no config overrides them.
type Paths struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// DefaultPaths resolves Paths. Each location is taken from the first source
// that is set:
//   - config file: WFS_CONFIG_PATH, $XDG_CONFIG_HOME/wfs.toml, ~/.config/wfs.toml
//   - base dir:    WFS_HOME, $XDG_DATA_HOME/wfs, ~/.local/share/wfs
func DefaultPaths() (Paths, error) {
	configPath, err := resolve("WFS_CONFIG_PATH", "XDG_CONFIG_HOME", "wfs.toml", ".config")
	if err != nil {
		return Paths{}, err
	}
	baseDir, err := resolve("WFS_HOME", "XDG_DATA_HOME", "wfs", ".local", "share")
	if err != nil {
		return Paths{}, err
	}
	return Paths{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

func resolve(env, xdgEnv, name string, homeParts ...string) (string, error) {
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	if dir := os.Getenv(xdgEnv); dir != "" {
		return filepath.Join(dir, name), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append(append([]string{home}, homeParts...), name)...), nil
}
