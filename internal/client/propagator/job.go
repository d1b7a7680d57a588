package propagator

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Status is the outcome a job reports on completion
type Status int

const (
	StatusNoStatus Status = iota
	StatusSuccess
	// StatusNormalError is recoverable at pipeline level
	StatusNormalError
	StatusFatalError
	StatusSoftError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusNormalError:
		return "NormalError"
	case StatusFatalError:
		return "FatalError"
	case StatusSoftError:
		return "SoftError"
	default:
		return "NoStatus"
	}
}

// JobState tracks a job through Created -> Running -> {Succeeded, Failed, Cancelled}.
// Terminal states are absorbing.
type JobState int32

const (
	JobCreated JobState = iota
	JobRunning
	JobSucceeded
	JobFailed
	JobCancelled
)

func (s JobState) String() string {
	switch s {
	case JobCreated:
		return "created"
	case JobRunning:
		return "running"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	case JobCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("JobState(%d)", int32(s))
	}
}

// Terminal reports whether the state can no longer change
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

type OpType string

const (
	OpRemoveLocal OpType = "RemoveLocal"
	OpMkdirLocal  OpType = "MkdirLocal"
	OpRenameLocal OpType = "RenameLocal"
)

// Observer receives job notifications. Progress is called at least once, with 0
// bytes, for every job that succeeds. Done is called exactly once for jobs that
// succeed or fail and never for cancelled ones.
type Observer interface {
	Progress(item *SyncItem, bytes int64)
	Done(item *SyncItem, status Status, errorString string)
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped
type ObserverFuncs struct {
	OnProgress func(item *SyncItem, bytes int64)
	OnDone     func(item *SyncItem, status Status, errorString string)
}

func (o ObserverFuncs) Progress(item *SyncItem, bytes int64) {
	if o.OnProgress != nil {
		o.OnProgress(item, bytes)
	}
}

func (o ObserverFuncs) Done(item *SyncItem, status Status, errorString string) {
	if o.OnDone != nil {
		o.OnDone(item, status, errorString)
	}
}

// Job applies one SyncItem to the local tree. Start runs to completion on the
// calling goroutine; a second Start is a no-op.
type Job interface {
	Start()
	State() JobState
	Item() *SyncItem
	Op() OpType
}

// NewJob validates item and returns the job for its instruction
func NewJob(item *SyncItem, pc *PropagatorContext, observer Observer) (Job, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	switch item.Instruction {
	case InstructionRemove:
		return NewRemoveLocalJob(item, pc, observer), nil
	case InstructionMkdir:
		return NewMkdirLocalJob(item, pc, observer), nil
	case InstructionRename:
		return NewRenameLocalJob(item, pc, observer), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownInstruction, item.Instruction)
}

// job carries what the three variants share: the item, the borrowed context,
// the observer and the state machine.
type job struct {
	op         OpType
	item       *SyncItem
	pc         *PropagatorContext
	observer   Observer
	state      atomic.Int32
	progressed bool
}

func (j *job) init(op OpType, item *SyncItem, pc *PropagatorContext, observer Observer) {
	if observer == nil {
		observer = ObserverFuncs{}
	}
	if item.OriginalFile == "" {
		item.OriginalFile = item.File
	}
	j.op, j.item, j.pc, j.observer = op, item, pc, observer
}

func (j *job) Item() *SyncItem {
	return j.item
}

func (j *job) State() JobState {
	return JobState(j.state.Load())
}

func (j *job) Op() OpType {
	return j.op
}

// begin moves Created -> Running. It returns false when the job already ran or
// when an abort was requested, in which case the job ends Cancelled without
// touching disk, journal or observer.
func (j *job) begin() bool {
	if j.pc.AbortRequested() {
		if j.state.CompareAndSwap(int32(JobCreated), int32(JobCancelled)) {
			slog.Debug("propagate", "op", j.op, "path", j.item.File, "state", JobCancelled)
		}
		return false
	}
	return j.state.CompareAndSwap(int32(JobCreated), int32(JobRunning))
}

func (j *job) progress(bytes int64) {
	j.progressed = true
	j.observer.Progress(j.item, bytes)
}

func (j *job) done(status Status, errorString string) {
	next := JobFailed
	if status == StatusSuccess {
		next = JobSucceeded
		if !j.progressed {
			j.progress(0)
		}
	}
	if !j.state.CompareAndSwap(int32(JobRunning), int32(next)) {
		return
	}

	if status == StatusSuccess {
		slog.Info("propagate", "op", j.op, "path", j.item.Destination(), "status", status)
	} else {
		slog.Error("propagate", "op", j.op, "path", j.item.File, "status", status, "error", errorString)
	}
	j.observer.Done(j.item, status, errorString)
}
