// Package daemon keeps a journal in sync in the background.
//
// The daemon:
//  1. Runs a resolver pass on start and every Interval
//  2. Polls the sync gate and resolves as soon as it opens
//  3. Watches the session file and, once changes settle, reloads the
//     session and resolves
//  4. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/practicejournal/pj/internal/journal/engine"
	jsync "github.com/practicejournal/pj/internal/journal/sync"
)

// Syncer runs resolver passes. *journal.Journal satisfies it.
type Syncer interface {
	Refresh(ctx context.Context) (*jsync.Report, error)
	MayDirectlySync() bool
}

// Reloader rereads state from disk. *session.Session satisfies it.
type Reloader interface {
	Reload() error
}

// Config holds configuration for the daemon.
type Config struct {
	// Interval is how often a resolver pass runs regardless of events
	Interval time.Duration

	// GatePoll is how often the gate is checked for a closed to open transition
	GatePoll time.Duration

	// DebounceInterval is how long the session file must be quiet before
	// it is reloaded
	DebounceInterval time.Duration

	// SessionPath is the session file to watch. Empty disables watching.
	SessionPath string

	// Session is reloaded after SessionPath changes. May be nil.
	Session Reloader

	// OnSync is called after every pass that was not deferred. May be nil.
	OnSync func(rep *jsync.Report, err error)

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:         5 * time.Minute,
		GatePoll:         2 * time.Second,
		DebounceInterval: 250 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon drives resolver passes from timers, gate transitions and session
// file changes.
type Daemon struct {
	syncer Syncer
	config *Config

	watcher       *fsnotify.Watcher
	sessionPath   string
	changeQueue   map[string]time.Time // path -> last event
	changeQueueMu sync.Mutex

	trigger chan string
	passes  atomic.Int64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon with the default configuration.
func New(s Syncer) (*Daemon, error) {
	return NewWithConfig(s, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration. Zero fields
// take their default values.
func NewWithConfig(s Syncer, config *Config) (*Daemon, error) {
	if s == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	config = withDefaults(config)

	d := &Daemon{
		syncer:      s,
		config:      config,
		changeQueue: make(map[string]time.Time),
		trigger:     make(chan string, 1),
	}

	if config.SessionPath != "" {
		abs, err := filepath.Abs(config.SessionPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve session path: %w", err)
		}
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
		d.sessionPath = abs
		d.watcher = watcher
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

func withDefaults(config *Config) *Config {
	def := DefaultConfig()
	if config == nil {
		return def
	}
	c := *config
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.GatePoll <= 0 {
		c.GatePoll = def.GatePoll
	}
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = def.DebounceInterval
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	return &c
}

// Start runs the daemon until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if d.watcher != nil {
		// The session file is replaced by rename, so watch its directory.
		dir := filepath.Dir(d.sessionPath)
		if err := d.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch session directory: %w", err)
		}
		d.config.Logger.Printf("Watching: %s", d.sessionPath)

		d.wg.Add(2)
		go d.watchFileEvents()
		go d.processChangeQueue()
	}

	d.wg.Add(1)
	go d.run()
	d.Trigger("startup")

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down and waits for background work to finish.
// It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		d.cancel()
		if d.watcher != nil {
			if err := d.watcher.Close(); err != nil {
				d.config.Logger.Printf("Error closing watcher: %v", err)
			}
		}
		d.wg.Wait()
		d.config.Logger.Println("Daemon stopped")
	})
	return nil
}

// Trigger requests a resolver pass. Requests made while one is already
// queued are merged.
func (d *Daemon) Trigger(reason string) {
	select {
	case d.trigger <- reason:
	default:
	}
}

// Passes returns how many resolver passes have completed, deferred ones
// excluded.
func (d *Daemon) Passes() int64 {
	return d.passes.Load()
}

// run owns every resolver pass so two never overlap.
func (d *Daemon) run() {
	defer d.wg.Done()

	interval := time.NewTicker(d.config.Interval)
	defer interval.Stop()
	poll := time.NewTicker(d.config.GatePoll)
	defer poll.Stop()

	wasOpen := d.syncer.MayDirectlySync()
	for {
		select {
		case <-d.ctx.Done():
			return

		case reason := <-d.trigger:
			d.resolve(reason)

		case <-interval.C:
			d.resolve("interval")

		case <-poll.C:
			open := d.syncer.MayDirectlySync()
			if open && !wasOpen {
				d.resolve("gate opened")
			}
			wasOpen = open
		}
	}
}

func (d *Daemon) resolve(reason string) {
	rep, err := d.syncer.Refresh(d.ctx)
	if errors.Is(err, engine.ErrSyncDeferred) && !errors.As(err, new(*engine.SyncError)) {
		d.config.Logger.Printf("Sync deferred (%s): gate closed", reason)
		return
	}
	if errors.Is(err, context.Canceled) && d.ctx.Err() != nil {
		return
	}

	d.passes.Add(1)
	switch {
	case err != nil:
		d.config.Logger.Printf("Sync (%s) failed: %v", reason, err)
	case rep != nil:
		d.config.Logger.Printf("Sync (%s): %s", reason, rep)
	}
	if d.config.OnSync != nil {
		d.config.OnSync(rep, err)
	}
}

// watchFileEvents queues changes to the session file.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != d.sessionPath {
				continue
			}
			d.queueChange(d.sessionPath)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange records the latest event time for path.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue processes queued changes with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges reloads the session once it has been quiet for
// long enough.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	ready := false
	now := time.Now()
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		delete(d.changeQueue, path)
		ready = true
	}
	d.changeQueueMu.Unlock()

	if !ready {
		return
	}
	if d.config.Session != nil {
		if err := d.config.Session.Reload(); err != nil {
			d.config.Logger.Printf("Error reloading session: %v", err)
			return
		}
	}
	d.Trigger("session changed")
}
