package propagator

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/openmined/localsync/internal/client/filesystem"
	"github.com/openmined/localsync/internal/client/journal"
	"github.com/stretchr/testify/require"
)

// faultFS fails Remove for chosen base names, counts renames and notes which
// paths were already touched when a mutation reached the disk
type faultFS struct {
	*filesystem.LocalFS
	pc                *PropagatorContext
	failRemove        map[string]bool
	renames           int
	touchedAtMutation map[string]bool
}

func (f *faultFS) noteTouched(paths ...string) {
	for _, p := range paths {
		f.touchedAtMutation[p] = f.pc.IsTouched(p)
	}
}

func (f *faultFS) Remove(path string) error {
	if f.failRemove[filepath.Base(path)] {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrPermission}
	}
	return f.LocalFS.Remove(path)
}

func (f *faultFS) Rename(src, dst string) error {
	f.renames++
	f.noteTouched(src, dst)
	return f.LocalFS.Rename(src, dst)
}

func (f *faultFS) Mkpath(root, relative string) error {
	f.noteTouched(root + filepath.FromSlash(relative))
	return f.LocalFS.Mkpath(root, relative)
}

type recordingJournal struct {
	*journal.Journal
	commits []string
}

func (r *recordingJournal) Commit(label string) error {
	r.commits = append(r.commits, label)
	return r.Journal.Commit(label)
}

type event struct {
	kind   string
	status Status
	bytes  int64
	err    string
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Progress(item *SyncItem, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "progress", bytes: bytes})
}

func (r *recorder) Done(item *SyncItem, status Status, errorString string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "done", status: status, err: errorString})
}

func (r *recorder) dones() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event
	for _, e := range r.events {
		if e.kind == "done" {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) last() event {
	d := r.dones()
	if len(d) == 0 {
		return event{}
	}
	return d[len(d)-1]
}

type fixture struct {
	root    string
	fs      *faultFS
	journal *recordingJournal
	pc      *PropagatorContext
	obs     *recorder
}

func newFixture(t *testing.T, opts ...filesystem.Option) *fixture {
	t.Helper()

	j := journal.New(":memory:")
	require.NoError(t, j.Open())
	t.Cleanup(func() { _ = j.Close() })

	f := &fixture{
		root:    t.TempDir(),
		fs: &faultFS{
			LocalFS:           filesystem.New(opts...),
			failRemove:        map[string]bool{},
			touchedAtMutation: map[string]bool{},
		},
		journal: &recordingJournal{Journal: j},
		obs:     &recorder{},
	}
	f.pc = NewPropagatorContext(f.root, f.fs, f.journal)
	f.fs.pc = f.pc
	return f
}

func (f *fixture) abs(rel string) string {
	return filepath.Join(f.root, filepath.FromSlash(rel))
}

func (f *fixture) writeFile(t *testing.T, rel string) {
	t.Helper()
	p := f.abs(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("content of "+rel), 0o644))
}

func (f *fixture) mkdir(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(f.abs(rel), 0o755))
}

// seed writes committed journal records; names ending in "/" are directories
func (f *fixture) seed(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		dir := len(p) > 0 && p[len(p)-1] == '/'
		if dir {
			p = p[:len(p)-1]
		}
		require.NoError(t, f.journal.Journal.SetFileRecord(&journal.FileRecord{Path: p, IsDirectory: dir, ETag: "seed"}))
	}
	require.NoError(t, f.journal.Journal.Commit("seed"))
}

func (f *fixture) paths(t *testing.T) []string {
	t.Helper()
	paths, err := f.journal.Paths()
	require.NoError(t, err)
	return paths
}

// names lists a directory the way it is stored on disk
func (f *fixture) names(t *testing.T, rel string) []string {
	t.Helper()
	entries, err := os.ReadDir(f.abs(rel))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}
