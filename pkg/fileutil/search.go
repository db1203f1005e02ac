package fileutil

import (
	"os"
	"path/filepath"
)

// ConfigFileNames are the configuration file names looked up when no
// explicit path is given, in order of preference.
var ConfigFileNames = []string{"config.toml", "config.yaml", "config.yml"}

// SearchPathsOptional looks for a file in multiple locations.
// Returns the first path where the file exists, or empty string if not found.
func SearchPathsOptional(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// DefaultConfigPaths returns standard config search paths for a given filename.
// Search order:
// 1. Current directory (./<filename>)
// 2. Config subdirectory (./config/<filename>)
// 3. System-wide config (/etc/deployhook/<filename>)
func DefaultConfigPaths(filename string) []string {
	return []string{
		filepath.Join(".", filename),
		filepath.Join(".", "config", filename),
		filepath.Join("/etc/deployhook", filename),
	}
}

// DefaultConfigCandidates returns the search paths for every name in
// ConfigFileNames, TOML first.
func DefaultConfigCandidates() []string {
	var paths []string
	for _, name := range ConfigFileNames {
		paths = append(paths, DefaultConfigPaths(name)...)
	}
	return paths
}

// DirExists checks if a directory exists.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// PathExists checks if a path exists (file or directory).
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsGitWorkingCopy reports whether dir looks like a git working copy.
// Linked worktrees and submodules use a .git file instead of a directory.
func IsGitWorkingCopy(dir string) bool {
	return DirExists(dir) && PathExists(filepath.Join(dir, ".git"))
}
