// Package daemon provides the long-running orchestrator for the sync engine.
//
// The daemon:
//  1. Owns the reconciler subscription to the replica
//  2. Probes connectivity and kicks the drain scheduler on regain
//  3. Re-kicks the scheduler on a cron cadence so nothing stays pending
//  4. Optionally watches an import directory for dropped task JSON files
//  5. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/overcooked/overcooked/internal/remote"
	enginesync "github.com/overcooked/overcooked/internal/sync"
)

// Config holds daemon tuning knobs.
type Config struct {
	// ImportDir, when non-empty, is watched for task JSON files.
	ImportDir string

	// DebounceInterval batches rapid import-file writes together.
	DebounceInterval time.Duration

	// ProbeInterval is how often replica reachability is checked.
	ProbeInterval time.Duration

	// RetryKickSpec is the cron spec for periodic drain kicks.
	RetryKickSpec string

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 250 * time.Millisecond,
		ProbeInterval:    15 * time.Second,
		RetryKickSpec:    "@every 1m",
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon wires the reconciler, drain scheduler, connectivity probe, and
// import watcher into one lifecycle.
type Daemon struct {
	replica    remote.Replica
	mutator    *enginesync.Mutator
	reconciler *enginesync.Reconciler
	scheduler  *enginesync.Scheduler
	config     *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time
	changeQueueMu sync.Mutex

	cron *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon. All collaborators must be constructed by the caller;
// the daemon only runs them.
func New(replica remote.Replica, mutator *enginesync.Mutator, reconciler *enginesync.Reconciler,
	scheduler *enginesync.Scheduler, config *Config) (*Daemon, error) {
	if replica == nil {
		return nil, fmt.Errorf("replica cannot be nil")
	}
	if mutator == nil || reconciler == nil || scheduler == nil {
		return nil, fmt.Errorf("mutator, reconciler, and scheduler are required")
	}
	if config == nil {
		config = DefaultConfig()
	} else {
		// Work on a copy so defaulting never mutates the caller's struct.
		c := *config
		config = &c
	}
	defaults := DefaultConfig()
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = defaults.DebounceInterval
	}
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = defaults.ProbeInterval
	}
	if config.RetryKickSpec == "" {
		config.RetryKickSpec = defaults.RetryKickSpec
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		replica:     replica,
		mutator:     mutator,
		reconciler:  reconciler,
		scheduler:   scheduler,
		config:      config,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start runs the daemon until ctx is cancelled, then shuts down cleanly.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	d.scheduler.Start(d.ctx)
	d.scheduler.Schedule() // drain anything left over from the last run

	// Reconciler subscription.
	d.wg.Add(1)
	go d.runReconciler()

	// Connectivity probe.
	d.wg.Add(1)
	go d.probeConnectivity()

	// Periodic retry kick.
	d.cron = cron.New()
	if _, err := d.cron.AddFunc(d.config.RetryKickSpec, d.scheduler.Schedule); err != nil {
		return fmt.Errorf("invalid retry kick spec %q: %w", d.config.RetryKickSpec, err)
	}
	d.cron.Start()

	// Import directory watcher.
	if d.config.ImportDir != "" {
		if err := d.startImportWatcher(); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down. Idempotent.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()
	d.reconciler.Stop()
	if d.cron != nil {
		<-d.cron.Stop().Done()
	}
	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}
	d.scheduler.Stop()
	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// runReconciler keeps the snapshot subscription alive for the daemon's
// lifetime. The subscription channel closes when the hub connection drops,
// so each pass resubscribes through the replica, which dials a fresh
// connection once the hub is reachable again. Subscribe failures while
// offline are retried on the probe cadence, which also lets the daemon
// start before the hub is up.
func (d *Daemon) runReconciler() {
	defer d.wg.Done()

	for {
		err := d.reconciler.Run(d.ctx, d.replica)
		if d.ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			d.config.Logger.Printf("Reconciler disconnected: %v", err)
		} else {
			d.config.Logger.Println("Snapshot subscription ended, resubscribing")
		}

		select {
		case <-d.ctx.Done():
			return
		case <-time.After(d.config.ProbeInterval):
		}
	}
}

// probeConnectivity pings the replica and kicks the scheduler on each
// offline-to-online transition.
func (d *Daemon) probeConnectivity() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ProbeInterval)
	defer ticker.Stop()

	wasOnline := false
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(d.ctx, 5*time.Second)
			err := d.replica.Ping(probeCtx)
			cancel()

			online := err == nil
			if online && !wasOnline {
				d.config.Logger.Println("Connectivity regained, scheduling drain")
				d.scheduler.Schedule()
			}
			wasOnline = online
		}
	}
}
