package workspace

import (
	"path/filepath"
	"strings"
)

// NormPath normalizes a path by cleaning it, replacing backslashes with slashes, and trimming leading slashes
func NormPath(path string) string {
	path = filepath.Clean(path)
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimLeft(path, "/")
	return path
}

// IsOutside reports whether a logical path produced by NormPath escapes the root
func IsOutside(relPath string) bool {
	return relPath == ".." || strings.HasPrefix(relPath, "../")
}
