package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/practicejournal/pj/internal/config"
	"github.com/practicejournal/pj/internal/journal"
	"github.com/practicejournal/pj/internal/journal/db"
	"github.com/practicejournal/pj/internal/journal/engine"
	"github.com/practicejournal/pj/internal/journal/gate"
	"github.com/practicejournal/pj/internal/journal/remote"
	"github.com/practicejournal/pj/internal/journal/remote/postgres"
	"github.com/practicejournal/pj/internal/journal/remote/turso"
	"github.com/practicejournal/pj/internal/journal/session"
	"github.com/practicejournal/pj/internal/logging"
)

// app holds everything a command needs. Close releases it.
type app struct {
	cfg     *config.Config
	sink    *logging.Sink
	store   *db.DB
	session *session.Session
	prober  *gate.Prober
	gate    *gate.Gate
	journal *journal.Journal

	// longRunning is set for daemon and dashboard, the only processes
	// that outlive a single command.
	longRunning bool

	closers []func()
}

func loadConfig() (*config.Config, error) {
	return config.Load(v, configPath)
}

// openApp opens the local store, the session and the remote, and makes
// sure the reserved records exist.
func openApp(ctx context.Context, longRunning bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a := &app{cfg: cfg, longRunning: longRunning}
	a.sink = logging.New(logging.Options{
		File:       cfg.LogPath(),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Verbose:    cfg.Log.Verbose,
	})
	a.closers = append(a.closers, func() { _ = a.sink.Close() })

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.store, err = db.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = a.store.Close() })
	if err := a.store.InitSchema(ctx); err != nil {
		return nil, err
	}

	a.session, err = session.Open(cfg.SessionPath(), session.Options{
		Secret: cfg.Auth.Secret,
		Issuer: cfg.Auth.Issuer,
	})
	if err != nil {
		return nil, err
	}

	rs, err := a.openRemote(ctx)
	if err != nil {
		return nil, err
	}

	a.gate = gate.New(a.connectivity(ctx, rs), a.session)
	a.journal = journal.New(journal.Options{
		Store:   a.store,
		Remote:  rs,
		Gate:    a.gate,
		Timeout: cfg.Remote.Timeout,
		Logger:  a.sink.Logger("engine"),
	})
	if err := a.journal.Bootstrap(ctx); err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// openRemote connects to the configured remote. An unreachable remote
// leaves the journal local-only for this run.
func (a *app) openRemote(ctx context.Context) (remote.Store, error) {
	cfg := a.cfg
	if cfg.Offline {
		return nil, nil
	}
	logger := a.sink.Logger("remote")

	ctx, cancel := context.WithTimeout(ctx, cfg.Remote.Timeout)
	defer cancel()

	switch cfg.Remote.Driver {
	case config.DriverMemory:
		if !a.longRunning {
			logger.Printf("Memory remote is only used by the daemon, keeping changes queued")
			return nil, nil
		}
		return remote.NewMemory(), nil

	case config.DriverTurso:
		rs, err := turso.Open(cfg.Remote.URL, cfg.Remote.AuthToken)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rs.Close() })
		if err := rs.InitSchema(ctx); err != nil {
			return a.unreachable(logger, err)
		}
		return rs, nil

	case config.DriverPostgres:
		rs, err := postgres.Open(ctx, cfg.Remote.URL)
		if err != nil {
			return a.unreachable(logger, err)
		}
		a.closers = append(a.closers, rs.Close)
		if err := rs.InitSchema(ctx); err != nil {
			return a.unreachable(logger, err)
		}
		return rs, nil
	}
	return nil, nil
}

func (a *app) unreachable(logger *log.Logger, err error) (remote.Store, error) {
	logger.Printf("Remote unreachable, working offline: %v", err)
	return nil, nil
}

// connectivity picks the gate's view of the network.
func (a *app) connectivity(ctx context.Context, rs remote.Store) gate.Connectivity {
	cfg := a.cfg
	switch {
	case cfg.Offline || rs == nil:
		return gate.Static(false)
	case cfg.Sync.ProbeAddr != "":
		a.prober = gate.NewProber(cfg.Sync.ProbeAddr, cfg.Sync.ProbeInterval, a.sink.Logger("probe"))
		a.prober.Probe(ctx)
		return a.prober
	}
	return gate.Static(true)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// withApp runs fn with an open app.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return runApp(false, fn)
}

// withDaemonApp is withApp for commands that keep running until
// interrupted.
func withDaemonApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return runApp(true, fn)
}

func runApp(longRunning bool, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), longRunning)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

// saved reports the outcome of a write. Deferred syncs are not failures.
func saved(cmd *cobra.Command, what string, err error) error {
	if engine.IsFatal(err) {
		return err
	}
	out := cmd.OutOrStdout()
	if err != nil {
		fmt.Fprintf(out, "%s %s (saved locally, sync deferred)\n", renderWarnMark(), what)
		return nil
	}
	fmt.Fprintf(out, "%s %s\n", renderPassMark(), what)
	return nil
}
