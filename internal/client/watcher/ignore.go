package watcher

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

const IgnoreFileName = ".localsyncignore"

var defaultIgnoreLines = []string{
	// localsync
	".localsync/",
	IgnoreFileName,
	// IDE/Editor-specific
	".vscode",
	".idea",
	"*.swp",
	"*~",
	// General excludes
	".git",
	"*.tmp",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// IgnoreList decides which watcher events are noise. Rules are gitignore lines:
// the defaults above plus the local .localsyncignore, if any.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir}
}

func (s *IgnoreList) Load() {
	ignorePath := filepath.Join(s.baseDir, IgnoreFileName)
	lines := append([]string{}, defaultIgnoreLines...)

	file, err := os.Open(ignorePath)
	switch {
	case err == nil:
		defer file.Close()
		rules := 0
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), " ")
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			lines = append(lines, line)
			rules++
		}
		if err := scanner.Err(); err != nil {
			slog.Warn("ignore file read", "path", ignorePath, "error", err)
		} else {
			slog.Debug("ignore file loaded", "path", ignorePath, "rules", rules)
		}
	case !os.IsNotExist(err):
		slog.Warn("ignore file open", "path", ignorePath, "error", err)
	}

	s.ignore = gitignore.CompileIgnoreLines(lines...)
}

// ShouldIgnore accepts a logical path or an absolute path under the base dir.
// Absolute paths outside the base dir are never ignored.
func (s *IgnoreList) ShouldIgnore(path string) bool {
	if s.ignore == nil {
		s.Load()
	}
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return false
		}
		path = rel
	}
	return s.ignore.MatchesPath(filepath.ToSlash(path))
}
