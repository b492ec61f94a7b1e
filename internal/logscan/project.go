package logscan

import (
	"strings"
)

// markerDirs are directory names that conventionally hold project
// checkouts. The path segment immediately after a marker is taken as the
// project name.
var markerDirs = map[string]bool{
	"projects": true,
	"code":     true,
	"coding":   true,
	"dev":      true,
	"work":     true,
	"repos":    true,
}

// genericDirs are path segments that never name a project on their own.
var genericDirs = map[string]bool{
	"src":      true,
	"pkg":      true,
	"cmd":      true,
	"internal": true,
	"lib":      true,
	"app":      true,
	"test":     true,
	"tests":    true,
}

// ExtractProjectName reduces a raw working-directory path to a short
// project name. "/home/user/Coding/my-app/src/util" becomes "my-app"; a
// bare name with no separators passes through unchanged.
func ExtractProjectName(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}

	normalized := strings.ReplaceAll(path, "\\", "/")
	normalized = strings.Trim(normalized, "/")
	if normalized == "" {
		return ""
	}

	segments := strings.Split(normalized, "/")
	if len(segments) == 1 {
		return segments[0]
	}

	for i, segment := range segments {
		if markerDirs[strings.ToLower(segment)] && i+1 < len(segments) {
			return segments[i+1]
		}
	}

	// No marker found: take the base name, walking back past generic
	// trailing segments like "src" or "cmd".
	for i := len(segments) - 1; i >= 0; i-- {
		if !genericDirs[strings.ToLower(segments[i])] {
			return segments[i]
		}
	}
	return segments[len(segments)-1]
}
