package propagator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openmined/localsync/internal/client/filesystem"
	"github.com/openmined/localsync/internal/client/journal"
)

// Instruction says which local mutation a SyncItem asks for
type Instruction string

const (
	InstructionRemove Instruction = "remove"
	InstructionMkdir  Instruction = "mkdir"
	InstructionRename Instruction = "rename"
)

var (
	ErrInvalidPath        = errors.New("invalid logical path")
	ErrUnknownInstruction = errors.New("unknown instruction")
)

// SyncItem is one unit of planned work. Paths are logical: forward-slash
// separated and relative to the local root.
type SyncItem struct {
	Instruction Instruction
	// File is the current logical path of the item
	File string
	// OriginalFile is the path before any in-flight rename; equal to File otherwise
	OriginalFile string
	// RenameTarget is the post-rename path, only meaningful for renames
	RenameTarget string
	IsDirectory  bool

	// passed through to the journal
	ETag    string
	FileID  string
	Size    int64
	ModTime time.Time
	Inode   uint64
}

func validLogicalPath(p string) error {
	switch {
	case p == "":
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	case strings.HasPrefix(p, "/"):
		return fmt.Errorf("%w: %q is absolute", ErrInvalidPath, p)
	case strings.Contains(p, `\`):
		return fmt.Errorf("%w: %q contains a backslash", ErrInvalidPath, p)
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." || part == "." || part == "" {
			return fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return nil
}

// Validate checks that every path the item carries stays under the local root.
// An empty OriginalFile is defaulted to File.
func (i *SyncItem) Validate() error {
	if i.OriginalFile == "" {
		i.OriginalFile = i.File
	}
	if err := validLogicalPath(i.File); err != nil {
		return err
	}
	if err := validLogicalPath(i.OriginalFile); err != nil {
		return err
	}
	switch i.Instruction {
	case InstructionRename:
		if err := validLogicalPath(i.RenameTarget); err != nil {
			return fmt.Errorf("rename target: %w", err)
		}
	case InstructionRemove, InstructionMkdir:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownInstruction, i.Instruction)
	}
	return nil
}

// Destination is where the item lives once its job succeeded
func (i *SyncItem) Destination() string {
	if i.Instruction == InstructionRename {
		return i.RenameTarget
	}
	return i.File
}

// NewFileRecord builds the journal record for item. Metadata the item does not
// carry (inode, mtime) is taken from the on-disk info when available.
func NewFileRecord(item *SyncItem, info *filesystem.FileInfo) *journal.FileRecord {
	record := &journal.FileRecord{
		Path:        item.File,
		Inode:       item.Inode,
		ModTime:     item.ModTime,
		IsDirectory: item.IsDirectory,
		ETag:        item.ETag,
		FileID:      item.FileID,
		Size:        item.Size,
	}
	if info != nil {
		if record.Inode == 0 {
			record.Inode = info.Inode
		}
		if record.ModTime.IsZero() {
			record.ModTime = info.ModTime
		}
	}
	return record
}
