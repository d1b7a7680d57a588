package propagator

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/localsync/internal/client/filesystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenameLocal_File(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "old.txt")
	f.mkdir(t, "sub")
	f.seed(t, "old.txt")

	item := &SyncItem{Instruction: InstructionRename, File: "old.txt", RenameTarget: "sub/new.txt", ETag: "e1", Size: 11}
	job := NewRenameLocalJob(item, f.pc, f.obs)
	job.Start()

	require.Equal(t, JobSucceeded, job.State(), f.obs.last().err)
	assert.NoFileExists(t, f.abs("old.txt"))
	assert.FileExists(t, f.abs("sub/new.txt"))
	assert.Equal(t, "sub/new.txt", item.File)
	assert.Equal(t, []string{"sub/new.txt"}, f.paths(t))
	assert.Equal(t, []string{"localRename"}, f.journal.commits)

	record, err := f.journal.GetFileRecord("sub/new.txt")
	require.NoError(t, err)
	assert.Equal(t, "e1", record.ETag)
	assert.False(t, record.ModTime.IsZero())

	// both ends are registered before the rename reaches the disk
	assert.Equal(t, map[string]bool{
		f.pc.GetFilePath("old.txt"):     true,
		f.pc.GetFilePath("sub/new.txt"): true,
	}, f.fs.touchedAtMutation)
}

func TestRenameLocal_NoOp(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "x/y.txt")
	f.seed(t, "x/y.txt")

	item := &SyncItem{Instruction: InstructionRename, File: "x/y.txt", RenameTarget: "x/y.txt", ETag: "moved"}
	NewRenameLocalJob(item, f.pc, f.obs).Start()

	assert.Equal(t, StatusSuccess, f.obs.last().status)
	assert.Zero(t, f.fs.renames)
	assert.Empty(t, f.pc.TouchedFiles())
	assert.Equal(t, []string{"localRename"}, f.journal.commits)
	record, err := f.journal.GetFileRecord("x/y.txt")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "moved", record.ETag)
}

func TestRenameLocal_NoOpUnderRenamedParent(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "new/y.txt")
	f.seed(t, "old/", "old/y.txt")

	item := &SyncItem{Instruction: InstructionRename, File: "new/y.txt", OriginalFile: "old/y.txt", RenameTarget: "new/y.txt"}
	NewRenameLocalJob(item, f.pc, f.obs).Start()

	assert.Equal(t, StatusSuccess, f.obs.last().status)
	assert.Equal(t, []string{"new/y.txt", "old"}, f.paths(t))
}

func TestRenameLocal_CaseOnly(t *testing.T) {
	f := newFixture(t, filesystem.WithCasePreserving(true))
	f.writeFile(t, "Report.txt")
	f.seed(t, "Report.txt")

	item := &SyncItem{Instruction: InstructionRename, File: "Report.txt", RenameTarget: "report.txt"}
	NewRenameLocalJob(item, f.pc, f.obs).Start()

	require.Equal(t, StatusSuccess, f.obs.last().status, f.obs.last().err)
	assert.Equal(t, []string{"report.txt"}, f.names(t, ""))
	assert.Equal(t, []string{"report.txt"}, f.paths(t))
}

func TestRenameLocal_Clash(t *testing.T) {
	f := newFixture(t, filesystem.WithCasePreserving(true))
	f.writeFile(t, "d/a.txt")
	f.writeFile(t, "d/B.txt")
	f.seed(t, "d/a.txt", "d/B.txt")

	job := NewRenameLocalJob(&SyncItem{Instruction: InstructionRename, File: "d/a.txt", RenameTarget: "d/b.txt"}, f.pc, f.obs)
	job.Start()

	assert.Equal(t, JobFailed, job.State())
	done := f.obs.last()
	assert.Equal(t, fmt.Sprintf("File %s can not be renamed to %s because of a local file name clash",
		filepath.FromSlash("d/a.txt"), filepath.FromSlash("d/b.txt")), done.err)
	assert.Zero(t, f.fs.renames)
	assert.FileExists(t, f.abs("d/a.txt"))
	assert.Equal(t, []string{"d/B.txt", "d/a.txt"}, f.paths(t))
}

func TestRenameLocal_Directory(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "d/f.txt")
	f.seed(t, "d/", "d/f.txt")

	item := &SyncItem{Instruction: InstructionRename, File: "d", RenameTarget: "e", IsDirectory: true}
	NewRenameLocalJob(item, f.pc, f.obs).Start()

	assert.Equal(t, StatusSuccess, f.obs.last().status)
	assert.FileExists(t, f.abs("e/f.txt"))
	// the directory record is written at the end of the run, children by their own jobs
	assert.Equal(t, []string{"d/f.txt"}, f.paths(t))
}

func TestRenameLocal_SourceMissing(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ghost.txt")

	NewRenameLocalJob(&SyncItem{Instruction: InstructionRename, File: "ghost.txt", RenameTarget: "other.txt"}, f.pc, f.obs).Start()

	done := f.obs.last()
	assert.Equal(t, StatusNormalError, done.status)
	assert.NotEmpty(t, done.err)
	assert.NotContains(t, done.err, f.root)
	assert.Equal(t, []string{"ghost.txt"}, f.paths(t))
	_, err := os.Lstat(f.abs("other.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestRenameLocal_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "a.txt")
	f.seed(t, "a.txt")
	f.pc.Abort()

	job := NewRenameLocalJob(&SyncItem{Instruction: InstructionRename, File: "a.txt", RenameTarget: "b.txt"}, f.pc, f.obs)
	job.Start()

	assert.Equal(t, JobCancelled, job.State())
	assert.FileExists(t, f.abs("a.txt"))
	assert.Zero(t, f.fs.renames)
	assert.Equal(t, []string{"a.txt"}, f.paths(t))
	assert.Empty(t, f.obs.events)
}
