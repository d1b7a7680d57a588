package propagator

import (
	"fmt"
	"log/slog"

	"github.com/openmined/localsync/internal/client/filesystem"
)

// RenameLocalJob moves item.File to item.RenameTarget and rekeys the journal.
//
// Only file records are written here. A renamed directory gets its record at the
// end of the run, after the renames of everything below it were journaled.
type RenameLocalJob struct {
	job
}

func NewRenameLocalJob(item *SyncItem, pc *PropagatorContext, observer Observer) *RenameLocalJob {
	j := &RenameLocalJob{}
	j.init(OpRenameLocal, item, pc, observer)
	return j
}

func (j *RenameLocalJob) Start() {
	if !j.begin() {
		return
	}
	j.done(j.run())
}

func (j *RenameLocalJob) run() (Status, string) {
	item := j.item
	fsys := j.pc.FS()
	existingFile := j.pc.GetFilePath(item.File)
	targetFile := j.pc.GetFilePath(item.RenameTarget)

	// a parent directory rename already moved this entry on disk
	if item.File != item.RenameTarget {
		j.progress(0)

		if !filesystem.EqualFold(item.File, item.RenameTarget) {
			if clash, ok := j.pc.LocalFileNameClash(item.RenameTarget); ok {
				slog.Warn("rename blocked by name clash", "from", item.File, "to", item.RenameTarget, "existing", clash)
				return StatusNormalError, fmt.Sprintf("File %s can not be renamed to %s because of a local file name clash",
					filesystem.ToNativeSeparators(item.File), filesystem.ToNativeSeparators(item.RenameTarget))
			}
		}

		j.pc.AddTouchedFile(existingFile)
		j.pc.AddTouchedFile(targetFile)
		if err := fsys.Rename(existingFile, targetFile); err != nil {
			return StatusNormalError, filesystem.ErrorString(err)
		}
	}

	journal := j.pc.Journal()
	if err := journal.DeleteFileRecord(item.OriginalFile, false); err != nil {
		return StatusNormalError, err.Error()
	}

	item.File = item.RenameTarget

	var info *filesystem.FileInfo
	if fi, err := fsys.Stat(targetFile); err == nil {
		info = &fi
	} else {
		slog.Debug("rename target stat failed", "path", targetFile, "error", err)
	}
	record := NewFileRecord(item, info)
	record.Path = item.RenameTarget

	if !item.IsDirectory {
		if err := journal.SetFileRecord(record); err != nil {
			return StatusNormalError, err.Error()
		}
	}

	if err := journal.Commit("localRename"); err != nil {
		return StatusNormalError, err.Error()
	}
	return StatusSuccess, ""
}
