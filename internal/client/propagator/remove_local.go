package propagator

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/openmined/localsync/internal/client/filesystem"
)

// RemoveLocalJob deletes a file or a whole directory tree under the local root.
//
// A tree that cannot be removed entirely is left as is on disk, but every child
// that was deleted has its journal record dropped so the next run sees the truth.
type RemoveLocalJob struct {
	job
	errors strings.Builder
}

type removedEntry struct {
	name  string
	isDir bool
}

func NewRemoveLocalJob(item *SyncItem, pc *PropagatorContext, observer Observer) *RemoveLocalJob {
	j := &RemoveLocalJob{}
	j.init(OpRemoveLocal, item, pc, observer)
	return j
}

func (j *RemoveLocalJob) Start() {
	if !j.begin() {
		return
	}
	j.done(j.run())
}

func (j *RemoveLocalJob) run() (Status, string) {
	item := j.item
	fsys := j.pc.FS()

	filename := j.pc.GetFilePath(item.File)
	if clash, ok := j.pc.LocalFileNameClash(item.File); ok {
		slog.Warn("remove blocked by name clash", "path", item.File, "existing", clash)
		return StatusNormalError, fmt.Sprintf("Could not remove %s because of a local file name clash",
			filesystem.ToNativeSeparators(filename))
	}

	switch {
	case item.IsDirectory && fsys.DirExists(filename):
		if !j.removeRecursively("") {
			return StatusNormalError, j.errors.String()
		}
	case fsys.FileExists(filename):
		// a directory item that is no longer a directory (a symlink, say) goes as a file
		if err := fsys.Remove(filename); err != nil {
			return StatusNormalError, filesystem.ErrorString(err)
		}
	default:
		slog.Debug("remove target already gone", "path", item.File)
	}

	j.progress(0)

	journal := j.pc.Journal()
	if err := journal.DeleteFileRecord(item.OriginalFile, item.IsDirectory); err != nil {
		return StatusNormalError, err.Error()
	}
	if err := journal.Commit("Local remove"); err != nil {
		return StatusNormalError, err.Error()
	}
	return StatusSuccess, ""
}

// removeRecursively empties and removes the directory at item.File+relPath.
// Symlinks are unlinked, never descended. It returns false if anything below
// survived, in which case the journal already reflects every child that went.
func (j *RemoveLocalJob) removeRecursively(relPath string) bool {
	fsys := j.pc.FS()
	absolute := j.pc.GetFilePath(j.item.File + relPath)

	entries, err := fsys.ReadDir(absolute)
	if err != nil {
		// rmdir below reports the failure if anything is left
		slog.Warn("remove could not list directory", "path", absolute, "error", err)
	}

	success := true
	var deleted []removedEntry

	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(absolute, name)
		isDir := entry.IsDir()

		var ok bool
		if isDir {
			ok = j.removeRecursively(relPath + "/" + name)
		} else if err := fsys.Remove(path); err != nil {
			fmt.Fprintf(&j.errors, "Error removing '%s': %s; ", path, filesystem.ErrorString(err))
		} else {
			ok = true
		}

		switch {
		case success && ok:
			deleted = append(deleted, removedEntry{name: name, isDir: isDir})
		case success && !ok:
			// from now on the caller will not drop the subtree record, so
			// everything removed so far has to be reconciled here
			for _, d := range deleted {
				j.forget(relPath+"/"+d.name, d.isDir)
			}
			deleted = nil
			success = false
		case !success && ok:
			j.forget(relPath+"/"+name, isDir)
		}
	}

	if success {
		if err := fsys.Rmdir(absolute); err != nil {
			slog.Warn("rmdir failed", "path", absolute, "error", err)
			fmt.Fprintf(&j.errors, "Could not remove directory '%s'; ", absolute)
			success = false
		}
	}
	return success
}

func (j *RemoveLocalJob) forget(relPath string, isDir bool) {
	path := j.item.OriginalFile + relPath
	if err := j.pc.Journal().DeleteFileRecord(path, isDir); err != nil {
		slog.Error("journal reconcile failed", "path", path, "error", err)
	}
}
