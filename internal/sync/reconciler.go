package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	gosync "sync"

	"github.com/overcooked/overcooked/internal/remote"
	"github.com/overcooked/overcooked/internal/store"
	"github.com/overcooked/overcooked/internal/task"
)

// Reconciler merges full-collection snapshots from the replica into the
// local store.
//
// Two rules keep concurrent edits safe regardless of interleaving:
//
//  1. A local record with pendingSync or pendingDelete set is never touched
//     by a snapshot; the drainer reconciles it when the push succeeds. A
//     record another device deleted remotely while this device holds a
//     pending edit is therefore kept, and the edit's own drain re-creates it
//     remotely (accepted last-writer-wins outcome, not a lost write).
//  2. A local record is treated as remotely deleted only when the replica
//     confirmed it existed before (lastSyncedExists) and it is now absent
//     from the snapshot.
type Reconciler struct {
	store   *store.Store
	ownerID string
	logger  *log.Logger

	mu      gosync.Mutex
	cancel  func()
	stopped bool
}

// NewReconciler creates a reconciler for ownerID's collection.
func NewReconciler(st *store.Store, ownerID string, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Reconciler{store: st, ownerID: ownerID, logger: logger}
}

// Run subscribes to the replica and applies snapshots until ctx is cancelled,
// Stop is called, or the subscription ends. A snapshot that fails to apply is
// logged and skipped; the next snapshot is a full collection and resumes
// correct reconciliation from scratch.
func (r *Reconciler) Run(ctx context.Context, replica remote.Replica) error {
	snaps, cancel, err := replica.Subscribe(ctx, r.ownerID)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		cancel()
		return nil
	}
	r.cancel = cancel
	r.mu.Unlock()

	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if err := r.ApplySnapshot(snap); err != nil {
				r.logger.Printf("Snapshot apply failed: %v", err)
			}
		}
	}
}

// Stop ends the subscription. Idempotent; safe before, during, and after Run.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// ApplySnapshot merges one full-collection snapshot into the store.
//
// Remote deletions are applied before upserts so a record cannot be
// resurrected by its own stale document within the same snapshot.
func (r *Reconciler) ApplySnapshot(snap remote.Snapshot) error {
	locals, err := r.store.All(r.ownerID)
	if err != nil {
		return err
	}

	byKey := make(map[string]*task.Record, len(locals))
	for _, local := range locals {
		byKey[local.RemoteKey] = local
	}

	// Remote-originated deletions.
	for _, local := range locals {
		if local.PendingSync || local.PendingDelete {
			continue
		}
		if !local.LastSyncedExists {
			continue
		}
		if _, ok := snap.Tasks[local.RemoteKey]; ok {
			continue
		}
		r.logger.Printf("Purging task deleted remotely: %s (%s)", local.RemoteKey, local.Title)
		if err := r.store.Purge(local.RemoteKey); err != nil {
			return err
		}
	}

	// Remote upserts.
	for key, doc := range snap.Tasks {
		rec, err := task.FromDocument(key, doc)
		if err != nil {
			r.logger.Printf("WARNING: Skipping malformed document %s: %v", key, err)
			continue
		}
		rec.OwnerID = r.ownerID

		local := byKey[key]
		if local != nil && (local.PendingSync || local.PendingDelete) {
			// Local desired state wins until its drain confirms.
			continue
		}

		var merged *task.Record
		if local == nil {
			merged = rec
		} else {
			merged = local
			merged.CopyContentFrom(rec)
		}
		merged.PendingSync = false
		merged.PendingDelete = false
		merged.LastSyncedExists = true
		merged.LastSyncedCompleted = merged.Completed

		if err := r.store.Upsert(merged); err != nil {
			return err
		}
	}

	r.logger.Printf("Reconciled snapshot: %d remote tasks", len(snap.Tasks))
	return nil
}
