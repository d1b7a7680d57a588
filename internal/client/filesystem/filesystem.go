// Package filesystem is the only place the propagator touches the local disk.
// Every mutation the jobs perform (rename, unlink, rmdir, mkdir) goes through FS,
// which keeps the jobs testable with fault-injecting wrappers.
package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

var (
	ErrNotDirectory = errors.New("not a directory")
)

// FileInfo is the subset of on-disk metadata the journal cares about
type FileInfo struct {
	Size    int64
	ModTime time.Time
	Inode   uint64
	IsDir   bool
	Symlink bool
}

// FS is the portable filesystem surface used by the propagation jobs.
// Paths are absolute native paths unless the parameter says otherwise.
type FS interface {
	// FileExists reports whether anything is at path. Errors other than "not exist"
	// (permission denied, for instance) report true so the caller attempts the
	// operation and surfaces the OS error.
	FileExists(path string) bool
	// DirExists reports whether path is a directory (symlinks are not followed).
	DirExists(path string) bool
	Stat(path string) (FileInfo, error)
	ReadDir(path string) ([]fs.DirEntry, error)
	Rename(src, dst string) error
	Remove(path string) error
	Rmdir(path string) error
	// Mkpath creates root/relative including all missing parents. relative is a
	// forward-slash logical path.
	Mkpath(root, relative string) error
	// CasePreserving is true where A.txt and a.txt cannot coexist but case is kept.
	CasePreserving() bool
	// LocalFileNameClash reports whether the last component of root/relative
	// collides case-insensitively with a differently cased entry on disk.
	// The clashing on-disk name is returned alongside.
	LocalFileNameClash(root, relative string) (string, bool)
}

// Option configures a LocalFS
type Option func(*LocalFS)

// WithCasePreserving forces case-preserving semantics on or off, overriding the
// platform default.
func WithCasePreserving(v bool) Option {
	return func(l *LocalFS) {
		l.casePreserving = v
	}
}

// LocalFS implements FS on top of package os
type LocalFS struct {
	casePreserving bool
}

var _ FS = (*LocalFS)(nil)

func New(opts ...Option) *LocalFS {
	l := &LocalFS{casePreserving: DefaultCasePreserving()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DefaultCasePreserving is the platform default: the stock filesystems on
// windows (NTFS) and darwin (APFS/HFS+) are case-insensitive but case-preserving.
func DefaultCasePreserving() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}

func (l *LocalFS) CasePreserving() bool {
	return l.casePreserving
}

func (l *LocalFS) FileExists(path string) bool {
	_, err := os.Lstat(path)
	if err == nil {
		return true
	}
	return !errors.Is(err, fs.ErrNotExist)
}

func (l *LocalFS) DirExists(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}

func (l *LocalFS) Stat(path string) (FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Inode:   inodeOf(info),
		IsDir:   info.IsDir(),
		Symlink: info.Mode()&fs.ModeSymlink != 0,
	}, nil
}

func (l *LocalFS) ReadDir(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}

func (l *LocalFS) Rename(src, dst string) error {
	return os.Rename(src, dst)
}

func (l *LocalFS) Remove(path string) error {
	return os.Remove(path)
}

func (l *LocalFS) Rmdir(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "rmdir", Path: path, Err: ErrNotDirectory}
	}
	return os.Remove(path)
}

func (l *LocalFS) Mkpath(root, relative string) error {
	target := filepath.Join(root, filepath.FromSlash(relative))
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("mkpath %s: %w", relative, err)
	}
	return nil
}

// ToNativeSeparators formats a path for user-facing messages only
func ToNativeSeparators(path string) string {
	return filepath.FromSlash(path)
}

// ErrorString returns the operating system's own message for err, stripped of
// the operation and path decoration Go adds.
func ErrorString(err error) string {
	if err == nil {
		return ""
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err.Error()
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return linkErr.Err.Error()
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return sysErr.Err.Error()
	}
	return err.Error()
}
