package propagator

import (
	"fmt"
	"log/slog"

	"github.com/openmined/localsync/internal/client/filesystem"
)

// MkdirLocalJob creates item.File and its missing parents. It leaves the journal
// alone: directory records are written by the pipeline once the run completes.
type MkdirLocalJob struct {
	job
}

func NewMkdirLocalJob(item *SyncItem, pc *PropagatorContext, observer Observer) *MkdirLocalJob {
	j := &MkdirLocalJob{}
	j.init(OpMkdirLocal, item, pc, observer)
	return j
}

func (j *MkdirLocalJob) Start() {
	if !j.begin() {
		return
	}
	j.done(j.run())
}

func (j *MkdirLocalJob) run() (Status, string) {
	item := j.item
	newDir := j.pc.GetFilePath(item.File)

	if j.pc.FS().CasePreserving() {
		if clash, ok := j.pc.LocalFileNameClash(item.File); ok {
			slog.Warn("possible case sensitivity clash", "path", newDir, "existing", clash)
			return StatusNormalError, fmt.Sprintf("Attention, possible case sensitivity clash with %s", newDir)
		}
	}

	j.pc.AddTouchedFile(newDir)
	if err := j.pc.FS().Mkpath(j.pc.LocalDir(), item.File); err != nil {
		slog.Warn("mkpath failed", "path", newDir, "error", err)
		return StatusNormalError, fmt.Sprintf("could not create directory %s", filesystem.ToNativeSeparators(newDir))
	}
	return StatusSuccess, ""
}
