package logscan

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultLogDirs returns the well-known locations where the assistant CLI
// writes conversation logs, filtered to directories that exist. Custom
// user-configured paths are appended verbatim (missing ones dropped).
func DefaultLogDirs(custom []string) []string {
	var candidates []string

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".claude", "projects"),
			filepath.Join(home, ".config", "claude", "projects"),
		)
	}
	if base := strings.TrimSpace(os.Getenv("CLAUDE_CONFIG_DIR")); base != "" {
		candidates = append(candidates, filepath.Join(base, "projects"))
	}
	candidates = append(candidates, custom...)

	var out []string
	seen := make(map[string]bool)
	for _, dir := range candidates {
		dir = strings.TrimSpace(dir)
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true
		if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
			out = append(out, dir)
		}
	}
	return out
}

// CollectFiles walks the given directories for .jsonl log files. Walk
// errors skip the offending entry and continue.
func CollectFiles(dirs []string) []string {
	var files []string
	for _, dir := range dirs {
		_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if !info.IsDir() && strings.HasSuffix(path, ".jsonl") {
				files = append(files, path)
			}
			return nil
		})
	}
	return files
}
