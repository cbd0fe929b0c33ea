package config

import (
	"os"
	"path/filepath"
)

// ConfigFileName is the config file name.
const ConfigFileName = "config.txt"

// BaseDir returns the directory that owns config and history files: the
// executable's directory if it holds a config, else the working directory
// if it does, else the executable's directory.
func BaseDir() string {
	exeDir := ""
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}
	if exeDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			exeDir = cwd
		} else {
			exeDir = "."
		}
	}

	if hasConfigCandidate(exeDir) {
		return exeDir
	}
	if cwd, err := os.Getwd(); err == nil && hasConfigCandidate(cwd) {
		return cwd
	}
	return exeDir
}

// ResolvePath picks the config file. An explicit path wins (relative to the
// working directory); otherwise baseDir/config.txt, then
// baseDir/config/config.txt. The first default is returned when neither exists.
func ResolvePath(explicit, baseDir string) string {
	if explicit != "" {
		if filepath.IsAbs(explicit) {
			return explicit
		}
		if cwd, err := os.Getwd(); err == nil {
			return filepath.Join(cwd, explicit)
		}
		return explicit
	}

	candidates := []string{
		filepath.Join(baseDir, ConfigFileName),
		filepath.Join(baseDir, "config", ConfigFileName),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return candidates[0]
}

func hasConfigCandidate(dir string) bool {
	for _, path := range []string{
		filepath.Join(dir, ConfigFileName),
		filepath.Join(dir, "config", ConfigFileName),
	} {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}
