// Package pipeline drives the propagation jobs for a whole plan: it orders them
// into waves of independent paths, runs each wave on a bounded worker pool and
// writes the deferred directory records once the run is over.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/localsync/internal/client/filesystem"
	"github.com/openmined/localsync/internal/client/propagator"
	"github.com/openmined/localsync/internal/client/workspace"
	"github.com/openmined/localsync/internal/utils"
	"golang.org/x/sync/errgroup"
)

const DefaultWorkers = 4

// ErrReservedPath rejects items that would touch the workspace's own metadata
// (journal, lock, logs)
var ErrReservedPath = errors.New("path is reserved for localsync metadata")

// ItemError is a failed item as shown to the user
type ItemError struct {
	Op    propagator.OpType `json:"op"`
	Path  string            `json:"path"`
	Error string            `json:"error"`
}

type Report struct {
	RunID     string        `json:"run_id"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
	Errors    []ItemError   `json:"errors,omitempty"`
}

// OK is true when every item succeeded
func (r *Report) OK() bool {
	return r.Failed == 0 && r.Cancelled == 0
}

type RunnerOption func(*Runner)

func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithObserver forwards every job notification to observer as well
func WithObserver(observer propagator.Observer) RunnerOption {
	return func(r *Runner) {
		r.observer = observer
	}
}

type Runner struct {
	pc       *propagator.PropagatorContext
	workers  int
	observer propagator.Observer
}

func NewRunner(pc *propagator.PropagatorContext, opts ...RunnerOption) *Runner {
	r := &Runner{pc: pc, workers: DefaultWorkers}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// runState collects job outcomes; jobs of one wave report concurrently
type runState struct {
	mu       sync.Mutex
	next     propagator.Observer
	report   *Report
	finished []*propagator.SyncItem
}

func (s *runState) Progress(item *propagator.SyncItem, bytes int64) {
	if s.next != nil {
		s.next.Progress(item, bytes)
	}
}

func (s *runState) Done(item *propagator.SyncItem, status propagator.Status, errorString string) {
	s.mu.Lock()
	if status == propagator.StatusSuccess {
		s.report.Succeeded++
		s.finished = append(s.finished, item)
	} else {
		s.report.Failed++
		s.report.Errors = append(s.report.Errors, ItemError{
			Op:    opOf(item),
			Path:  item.File,
			Error: errorString,
		})
	}
	s.mu.Unlock()

	if s.next != nil {
		s.next.Done(item, status, errorString)
	}
}

func (s *runState) fail(item *propagator.SyncItem, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Failed++
	s.report.Errors = append(s.report.Errors, ItemError{Op: opOf(item), Path: item.File, Error: err.Error()})
}

func opOf(item *propagator.SyncItem) propagator.OpType {
	switch item.Instruction {
	case propagator.InstructionRemove:
		return propagator.OpRemoveLocal
	case propagator.InstructionMkdir:
		return propagator.OpMkdirLocal
	case propagator.InstructionRename:
		return propagator.OpRenameLocal
	}
	return propagator.OpType(item.Instruction)
}

// Run propagates items in order. Cancelling ctx aborts the run: jobs not yet
// started end cancelled, jobs in flight finish. The returned report is complete
// even when an error is returned.
func (r *Runner) Run(ctx context.Context, items []*propagator.SyncItem) (*Report, error) {
	state := &runState{
		next: r.observer,
		report: &Report{
			RunID:   uuid.New().String(),
			Started: time.Now(),
			Total:   len(items),
		},
	}
	report := state.report

	stop := context.AfterFunc(ctx, r.pc.Abort)
	defer stop()
	if ctx.Err() != nil {
		r.pc.Abort()
	}

	waves := Waves(items)
	slog.Info("propagation run", "run", report.RunID, "items", len(items), "waves", len(waves), "workers", r.workers)

	for i, wave := range waves {
		jobs := make([]propagator.Job, 0, len(wave))
		for _, item := range wave {
			if err := checkReserved(item); err != nil {
				slog.Warn("propagation rejected", "run", report.RunID, "path", item.File, "error", err)
				state.fail(item, err)
				continue
			}
			job, err := propagator.NewJob(item, r.pc, state)
			if err != nil {
				state.fail(item, err)
				continue
			}
			jobs = append(jobs, job)
		}

		var eg errgroup.Group
		eg.SetLimit(r.workers)
		for _, job := range jobs {
			eg.Go(func() error {
				job.Start()
				return nil
			})
		}
		_ = eg.Wait()

		for _, job := range jobs {
			if job.State() == propagator.JobCancelled {
				report.Cancelled++
			}
		}
		slog.Debug("propagation wave", "run", report.RunID, "wave", i, "jobs", len(jobs))
	}

	err := r.finish(state)
	sort.Slice(report.Errors, func(i, j int) bool { return report.Errors[i].Path < report.Errors[j].Path })
	report.Duration = time.Since(report.Started)

	slog.Info("propagation done",
		"run", report.RunID,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"cancelled", report.Cancelled,
		"took", report.Duration)

	if err != nil {
		return report, err
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, nil
}

// finish records the directories created or renamed during the run. Their
// records were held back so that the inner entries got journaled first.
func (r *Runner) finish(state *runState) error {
	j := r.pc.Journal()
	fsys := r.pc.FS()

	for _, item := range state.finished {
		isDirRename := item.Instruction == propagator.InstructionRename && item.IsDirectory
		if item.Instruction != propagator.InstructionMkdir && !isDirRename {
			continue
		}

		record := propagator.NewFileRecord(item, nil)
		if fi, err := fsys.Stat(r.pc.GetFilePath(item.Destination())); err == nil {
			record = propagator.NewFileRecord(item, &fi)
		}
		record.Path = item.Destination()
		record.IsDirectory = true

		if err := j.SetFileRecord(record); err != nil {
			return fmt.Errorf("failed to record directory %s: %w", record.Path, err)
		}
	}

	if err := j.Commit("end of sync"); err != nil {
		return err
	}
	return nil
}

// Waves splits items, keeping their order, into consecutive groups that can run
// concurrently: no path of an item is equal to, above or below a path of another
// item in the same group. Paths are compared case-folded, which only ever adds
// waves.
func Waves(items []*propagator.SyncItem) [][]*propagator.SyncItem {
	var waves [][]*propagator.SyncItem
	var current []*propagator.SyncItem

	for _, item := range items {
		if conflictsWith(item, current) {
			waves = append(waves, current)
			current = nil
		}
		current = append(current, item)
	}
	if len(current) > 0 {
		waves = append(waves, current)
	}
	return waves
}

func itemPaths(item *propagator.SyncItem) []string {
	paths := []string{filesystem.Fold(item.File)}
	if item.OriginalFile != "" && item.OriginalFile != item.File {
		paths = append(paths, filesystem.Fold(item.OriginalFile))
	}
	if item.Instruction == propagator.InstructionRename && item.RenameTarget != item.File {
		paths = append(paths, filesystem.Fold(item.RenameTarget))
	}
	return paths
}

// checkReserved fails items whose file, original or rename target is at or below
// the metadata dir. Names are folded so ".LocalSync" is caught on
// case-insensitive filesystems too.
func checkReserved(item *propagator.SyncItem) error {
	reserved := filesystem.Fold(workspace.MetadataDirName)
	for _, p := range itemPaths(item) {
		if utils.IsUnder(p, reserved) {
			return fmt.Errorf("%w: %s", ErrReservedPath, item.File)
		}
	}
	return nil
}

func conflictsWith(item *propagator.SyncItem, wave []*propagator.SyncItem) bool {
	for _, other := range wave {
		for _, a := range itemPaths(item) {
			for _, b := range itemPaths(other) {
				if utils.IsUnder(a, b) || utils.IsUnder(b, a) {
					return true
				}
			}
		}
	}
	return false
}
