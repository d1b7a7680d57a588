package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/localsync/internal/utils"
)

const (
	MetadataDirName = ".localsync"
	logsDir         = "logs"
	lockFile        = "localsync.lock"
	journalFile     = "journal.db"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
)

// Workspace is the local root the engine mutates, plus its private metadata dir
type Workspace struct {
	Root        string
	MetadataDir string
	LogsDir     string
	JournalPath string

	flock *flock.Flock
}

func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}
	// watcher events carry resolved paths (darwin's /var is /private/var)
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	metadataDir := filepath.Join(root, MetadataDirName)
	return &Workspace{
		Root:        root,
		MetadataDir: metadataDir,
		LogsDir:     filepath.Join(metadataDir, logsDir),
		JournalPath: filepath.Join(metadataDir, journalFile),
		flock:       flock.New(filepath.Join(metadataDir, lockFile)),
	}, nil
}

// Lock takes the single-instance lock so two engines never mutate the same tree
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

func (w *Workspace) Unlock() error {
	// not ours to remove
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}
	return os.Remove(w.flock.Path())
}

// Setup locks the workspace and creates its directories
func (w *Workspace) Setup() error {
	if err := utils.EnsureDir(w.Root); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.Root, err)
	}

	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root)

	for _, dir := range []string{w.MetadataDir, w.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// AbsPath turns a logical path into a native absolute path
func (w *Workspace) AbsPath(relPath string) string {
	return filepath.Join(w.Root, filepath.FromSlash(relPath))
}

// RelPath turns an absolute path under Root into a logical path
func (w *Workspace) RelPath(absPath string) (string, error) {
	relPath, err := filepath.Rel(w.Root, absPath)
	if err != nil {
		return "", err
	}
	return NormPath(relPath), nil
}

// IsMetadataPath is true for paths inside the workspace's own metadata dir
func (w *Workspace) IsMetadataPath(absPath string) bool {
	return utils.IsUnder(filepath.ToSlash(absPath), filepath.ToSlash(w.MetadataDir))
}
