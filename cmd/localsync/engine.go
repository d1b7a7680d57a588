package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/openmined/localsync/internal/client/config"
	"github.com/openmined/localsync/internal/client/filesystem"
	"github.com/openmined/localsync/internal/client/journal"
	"github.com/openmined/localsync/internal/client/propagator"
	"github.com/openmined/localsync/internal/client/workspace"
)

// engine bundles what a mutating command holds for its lifetime
type engine struct {
	cfg       *config.Config
	workspace *workspace.Workspace
	fs        *filesystem.LocalFS
	journal   *journal.Journal
	logCloser io.Closer
}

// openEngine locks the workspace, starts file logging and opens the journal
func openEngine(cfg *config.Config) (*engine, error) {
	ws, err := workspace.NewWorkspace(cfg.LocalDir)
	if err != nil {
		return nil, err
	}
	if err := ws.Setup(); err != nil {
		if errors.Is(err, workspace.ErrWorkspaceLocked) {
			return nil, fmt.Errorf("%w: %s", err, ws.Root)
		}
		return nil, err
	}

	logCloser, err := setupLogging(cfg, ws.LogsDir)
	if err != nil {
		_ = ws.Unlock()
		return nil, err
	}

	j := journal.New(cfg.JournalPath)
	if err := j.Open(); err != nil {
		_ = logCloser.Close()
		_ = ws.Unlock()
		return nil, err
	}

	fsys := filesystem.New(cfg.FilesystemOptions()...)
	slog.Info("engine open",
		"root", ws.Root,
		"journal", cfg.JournalPath,
		"workers", cfg.Workers,
		"casePreserving", fsys.CasePreserving())

	return &engine{
		cfg:       cfg,
		workspace: ws,
		fs:        fsys,
		journal:   j,
		logCloser: logCloser,
	}, nil
}

func (e *engine) context(opts ...propagator.ContextOption) *propagator.PropagatorContext {
	return propagator.NewPropagatorContext(e.workspace.Root, e.fs, e.journal, opts...)
}

func (e *engine) Close() error {
	var errs []error
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.workspace.Unlock(); err != nil {
		errs = append(errs, err)
	}
	if err := e.logCloser.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
