// Package watcher reports changes made to the local tree by anyone but the
// propagator itself. Paths the jobs touch are announced through IgnoreOnce and
// the change event they cause is swallowed.
package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	DefaultIgnoreTimeout   = time.Second
	defaultCleanupInterval = 15 * time.Second
	eventBufferSize        = 256
	defaultDebounceTimeout = 50 * time.Millisecond
)

// watchedEvents covers what the jobs do to the tree: create, unlink and rename
const watchedEvents = notify.Create | notify.Remove | notify.Rename | notify.Write

// FilterCallback returns true if the event for path should be dropped
type FilterCallback func(path string) bool

type FileWatcher struct {
	watchDir        string
	events          chan notify.EventInfo
	rawEvents       chan notify.EventInfo
	ignore          map[string]time.Time
	ignoreMu        sync.RWMutex
	cleanupInterval time.Duration
	done            chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup

	pending         map[string]notify.EventInfo
	timers          map[string]*time.Timer
	debounceMu      sync.Mutex
	debounceTimeout time.Duration

	filter   FilterCallback
	filterMu sync.RWMutex
}

func NewFileWatcher(watchDir string) *FileWatcher {
	return &FileWatcher{
		watchDir:        watchDir,
		ignore:          make(map[string]time.Time),
		cleanupInterval: defaultCleanupInterval,
		done:            make(chan struct{}),
		pending:         make(map[string]notify.EventInfo),
		timers:          make(map[string]*time.Timer),
		debounceTimeout: defaultDebounceTimeout,
	}
}

func (fw *FileWatcher) SetCleanupInterval(interval time.Duration) {
	fw.cleanupInterval = interval
}

func (fw *FileWatcher) SetDebounceTimeout(timeout time.Duration) {
	fw.debounceTimeout = timeout
}

// FilterPaths installs a callback that drops raw events before debouncing
func (fw *FileWatcher) FilterPaths(callback FilterCallback) {
	fw.filterMu.Lock()
	defer fw.filterMu.Unlock()
	fw.filter = callback
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "dir", fw.watchDir)

	fw.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	fw.events = make(chan notify.EventInfo, eventBufferSize)

	if err := notify.Watch(fw.watchDir+"/...", fw.rawEvents, watchedEvents); err != nil {
		return err
	}

	fw.wg.Add(2)
	go fw.filterEvents(ctx)
	go fw.cleanupExpired(ctx)
	return nil
}

func (fw *FileWatcher) Stop() {
	fw.stopOnce.Do(func() {
		slog.Info("file watcher stopping")
		close(fw.done)
		if fw.rawEvents != nil {
			notify.Stop(fw.rawEvents)
		}
		fw.wg.Wait()
		slog.Info("file watcher stopped")
	})
}

func (fw *FileWatcher) Events() <-chan notify.EventInfo {
	return fw.events
}

// IgnoreOnce swallows the next event for path seen within DefaultIgnoreTimeout
func (fw *FileWatcher) IgnoreOnce(path string) {
	fw.IgnoreOnceWithTimeout(path, DefaultIgnoreTimeout)
}

func (fw *FileWatcher) IgnoreOnceWithTimeout(path string, timeout time.Duration) {
	fw.ignoreMu.Lock()
	defer fw.ignoreMu.Unlock()
	fw.ignore[path] = time.Now().Add(timeout)
}

// consumeIgnore reports whether path is ignored and drops the entry either way
func (fw *FileWatcher) consumeIgnore(path string) bool {
	fw.ignoreMu.Lock()
	defer fw.ignoreMu.Unlock()

	expiry, ok := fw.ignore[path]
	if !ok {
		return false
	}
	delete(fw.ignore, path)
	return !time.Now().After(expiry)
}

func (fw *FileWatcher) filtered(path string) bool {
	fw.filterMu.RLock()
	defer fw.filterMu.RUnlock()
	return fw.filter != nil && fw.filter(path)
}

func (fw *FileWatcher) filterEvents(ctx context.Context) {
	defer func() {
		fw.debounceMu.Lock()
		for path, timer := range fw.timers {
			timer.Stop()
			if event, ok := fw.pending[path]; ok {
				select {
				case fw.events <- event:
				default:
					slog.Warn("file watcher dropped", "reason", "channel full on exit", "path", path)
				}
			}
		}
		fw.timers = map[string]*time.Timer{}
		fw.pending = map[string]notify.EventInfo{}
		fw.debounceMu.Unlock()

		fw.wg.Done()
		close(fw.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.rawEvents:
			if !ok {
				return
			}
			if fw.filtered(event.Path()) {
				continue
			}
			// a single mkdir or write can fire a burst of events for one path
			fw.debounce(event)
		}
	}
}

func (fw *FileWatcher) debounce(event notify.EventInfo) {
	path := event.Path()

	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if timer, ok := fw.timers[path]; ok {
		timer.Stop()
	}
	fw.pending[path] = event
	fw.timers[path] = time.AfterFunc(fw.debounceTimeout, func() {
		fw.flush(path)
	})
}

func (fw *FileWatcher) flush(path string) {
	fw.debounceMu.Lock()
	event, ok := fw.pending[path]
	if !ok {
		fw.debounceMu.Unlock()
		return
	}
	delete(fw.pending, path)
	delete(fw.timers, path)

	if fw.consumeIgnore(path) {
		fw.debounceMu.Unlock()
		slog.Debug("file watcher ignored own change", "path", path)
		return
	}

	// sending under the lock keeps flush from racing the close in filterEvents
	select {
	case <-fw.done:
	case fw.events <- event:
		slog.Debug("file watcher", "event", event.Event(), "path", path)
	default:
		slog.Warn("file watcher dropped", "reason", "channel full", "path", path)
	}
	fw.debounceMu.Unlock()
}

func (fw *FileWatcher) cleanupExpired(ctx context.Context) {
	defer fw.wg.Done()

	ticker := time.NewTicker(fw.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case <-ticker.C:
			now := time.Now()
			fw.ignoreMu.Lock()
			for path, expiry := range fw.ignore {
				if now.After(expiry) {
					delete(fw.ignore, path)
				}
			}
			fw.ignoreMu.Unlock()
		}
	}
}
