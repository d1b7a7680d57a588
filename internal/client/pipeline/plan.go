package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/openmined/localsync/internal/client/propagator"
	"gopkg.in/yaml.v3"
)

var ErrUnknownOp = errors.New("unknown op")

type Op string

const (
	OpRemove Op = "remove"
	OpMkdir  Op = "mkdir"
	OpRename Op = "rename"
)

func (o *Op) UnmarshalYAML(value *yaml.Node) error {
	op, err := parseOp(value.Value)
	if err != nil {
		return err
	}
	*o = op
	return nil
}

func parseOp(raw string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(OpRemove), "rm", "delete":
		return OpRemove, nil
	case string(OpMkdir):
		return OpMkdir, nil
	case string(OpRename), "mv", "move":
		return OpRename, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownOp, raw)
	}
}

// Entry is one line of a plan file
type Entry struct {
	Op       Op        `yaml:"op"`
	Path     string    `yaml:"path"`
	Original string    `yaml:"original,omitempty"`
	To       string    `yaml:"to,omitempty"`
	Dir      bool      `yaml:"dir,omitempty"`
	ETag     string    `yaml:"etag,omitempty"`
	FileID   string    `yaml:"file_id,omitempty"`
	Size     int64     `yaml:"size,omitempty"`
	ModTime  time.Time `yaml:"mtime,omitempty"`
}

// Plan is an ordered list of local mutations, parents before children
type Plan struct {
	Version int     `yaml:"version"`
	Items   []Entry `yaml:"items"`
}

func LoadPlan(path string) (*Plan, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return LoadPlanFromReader(fd)
}

func LoadPlanFromReader(reader io.Reader) (*Plan, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if plan.Version == 0 {
		plan.Version = 1
	}
	if plan.Version != 1 {
		return nil, fmt.Errorf("unsupported plan version %d", plan.Version)
	}
	return &plan, nil
}

// SyncItems converts the plan into validated items, in plan order
func (p *Plan) SyncItems() ([]*propagator.SyncItem, error) {
	items := make([]*propagator.SyncItem, 0, len(p.Items))
	for i, e := range p.Items {
		item := &propagator.SyncItem{
			File:         e.Path,
			OriginalFile: e.Original,
			RenameTarget: e.To,
			IsDirectory:  e.Dir,
			ETag:         e.ETag,
			FileID:       e.FileID,
			Size:         e.Size,
			ModTime:      e.ModTime,
		}
		switch e.Op {
		case OpRemove:
			item.Instruction = propagator.InstructionRemove
		case OpMkdir:
			item.Instruction = propagator.InstructionMkdir
			item.IsDirectory = true
		case OpRename:
			item.Instruction = propagator.InstructionRename
		default:
			return nil, fmt.Errorf("item %d: %w %q", i, ErrUnknownOp, e.Op)
		}
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("item %d (%s): %w", i, e.Path, err)
		}
		items = append(items, item)
	}
	return items, nil
}
