package propagator

import (
	"path/filepath"
	"sort"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/localsync/internal/client/filesystem"
	"github.com/openmined/localsync/internal/client/journal"
	"github.com/openmined/localsync/internal/utils"
)

// Journal is the part of the sync journal the jobs mutate
type Journal interface {
	DeleteFileRecord(path string, recurse bool) error
	SetFileRecord(record *journal.FileRecord) error
	Commit(label string) error
}

// TouchedSink is told about every path a job is about to mutate, so a file
// watcher can swallow the resulting change event.
type TouchedSink interface {
	IgnoreOnce(path string)
}

// PropagatorContext is the state shared by every job of one sync run. It
// outlives the jobs, which only borrow it.
type PropagatorContext struct {
	localDir string
	fs       filesystem.FS
	journal  Journal
	abort    atomic.Bool
	touched  mapset.Set[string]
	sink     TouchedSink
}

type ContextOption func(*PropagatorContext)

// WithTouchedSink forwards touched paths to sink as they are registered
func WithTouchedSink(sink TouchedSink) ContextOption {
	return func(pc *PropagatorContext) {
		pc.sink = sink
	}
}

// NewPropagatorContext binds a local root, filesystem adapter and journal.
// localDir is made to end with exactly one separator.
func NewPropagatorContext(localDir string, fsys filesystem.FS, j Journal, opts ...ContextOption) *PropagatorContext {
	pc := &PropagatorContext{
		localDir: utils.WithTrailingSeparator(localDir),
		fs:       fsys,
		journal:  j,
		touched:  mapset.NewSet[string](),
	}
	for _, opt := range opts {
		opt(pc)
	}
	return pc
}

// LocalDir is the absolute root of the working tree, ending with a separator
func (pc *PropagatorContext) LocalDir() string {
	return pc.localDir
}

func (pc *PropagatorContext) FS() filesystem.FS {
	return pc.fs
}

func (pc *PropagatorContext) Journal() Journal {
	return pc.journal
}

// GetFilePath turns a logical path into a native absolute path
func (pc *PropagatorContext) GetFilePath(relative string) string {
	return pc.localDir + filepath.FromSlash(relative)
}

// AddTouchedFile records a native absolute path the engine is about to write
func (pc *PropagatorContext) AddTouchedFile(path string) {
	pc.touched.Add(path)
	if pc.sink != nil {
		pc.sink.IgnoreOnce(path)
	}
}

func (pc *PropagatorContext) IsTouched(path string) bool {
	return pc.touched.Contains(path)
}

// TouchedFiles returns a sorted snapshot of the touched paths
func (pc *PropagatorContext) TouchedFiles() []string {
	paths := pc.touched.ToSlice()
	sort.Strings(paths)
	return paths
}

// LocalFileNameClash reports whether relative collides with a differently cased
// entry on a case-preserving filesystem, and names that entry.
func (pc *PropagatorContext) LocalFileNameClash(relative string) (string, bool) {
	return pc.fs.LocalFileNameClash(pc.localDir, relative)
}

// Abort asks every job that has not started yet to stay silent. It cannot be undone.
func (pc *PropagatorContext) Abort() {
	pc.abort.Store(true)
}

func (pc *PropagatorContext) AbortRequested() bool {
	return pc.abort.Load()
}
