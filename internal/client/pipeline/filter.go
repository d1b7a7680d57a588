package pipeline

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/localsync/internal/client/propagator"
)

// Filter narrows a plan down with doublestar globs matched against logical paths.
// An empty include list matches everything; excludes always win.
type Filter struct {
	include []string
	exclude []string
}

func NewFilter(include, exclude []string) (*Filter, error) {
	for _, pattern := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid glob pattern %q", pattern)
		}
	}
	return &Filter{include: include, exclude: exclude}, nil
}

func (f *Filter) Match(path string) bool {
	for _, pattern := range f.exclude {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, pattern := range f.include {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// Apply keeps the items whose source path matches. Rename targets are not
// consulted so a filter never splits a rename.
func (f *Filter) Apply(items []*propagator.SyncItem) []*propagator.SyncItem {
	if f == nil || (len(f.include) == 0 && len(f.exclude) == 0) {
		return items
	}
	kept := make([]*propagator.SyncItem, 0, len(items))
	for _, item := range items {
		if f.Match(item.File) {
			kept = append(kept, item)
		}
	}
	return kept
}
