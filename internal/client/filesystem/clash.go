package filesystem

import (
	"os"
	"path/filepath"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// foldName maps a file name onto its case-insensitive comparison key. Names are
// composed to NFC first, since darwin hands back decomposed names from readdir.
func foldName(name string) string {
	return cases.Fold().String(norm.NFC.String(name))
}

func (l *LocalFS) LocalFileNameClash(root, relative string) (string, bool) {
	if !l.casePreserving || relative == "" {
		return "", false
	}

	target := filepath.Join(root, filepath.FromSlash(relative))
	dir, name := filepath.Split(target)
	entries, err := os.ReadDir(dir)
	if err != nil {
		// a missing parent cannot hold a clashing entry
		return "", false
	}

	want := norm.NFC.String(name)
	key := foldName(name)
	var matches []string
	for _, entry := range entries {
		if foldName(entry.Name()) == key {
			matches = append(matches, norm.NFC.String(entry.Name()))
		}
	}

	switch {
	case len(matches) > 1:
		for _, m := range matches {
			if m != want {
				return m, true
			}
		}
		return matches[0], true
	case len(matches) == 1 && matches[0] != want:
		return matches[0], true
	}
	return "", false
}

// Fold returns the case-insensitive comparison key of a name or logical path
func Fold(name string) string {
	return foldName(name)
}

// EqualFold reports whether a and b name the same entry on a case-insensitive
// filesystem
func EqualFold(a, b string) bool {
	return foldName(a) == foldName(b)
}
