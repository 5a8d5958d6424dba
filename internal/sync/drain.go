package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/overcooked/overcooked/internal/remote"
	"github.com/overcooked/overcooked/internal/store"
	"github.com/overcooked/overcooked/internal/task"
	"github.com/overcooked/overcooked/internal/wallet"
)

// Drainer pushes pending local mutations to the replica.
//
// Records are processed independently; partial progress is safe because each
// record re-reads its pending state before acting, so a retry skips records
// a previous run already drained.
type Drainer struct {
	store   *store.Store
	wallet  *wallet.Service
	replica remote.Replica
	ownerID string
	logger  *log.Logger
}

// NewDrainer creates a drainer for ownerID's pending records.
func NewDrainer(st *store.Store, w *wallet.Service, replica remote.Replica, ownerID string, logger *log.Logger) *Drainer {
	if logger == nil {
		logger = log.New(os.Stderr, "[drain] ", log.LstdFlags)
	}
	return &Drainer{store: st, wallet: w, replica: replica, ownerID: ownerID, logger: logger}
}

// RunOnce drains every pending record and flushes the coin ledger. A record
// that fails keeps its pending flags and is reported as a retryable error;
// remaining records are still attempted.
func (d *Drainer) RunOnce(ctx context.Context) error {
	pending, err := d.store.PendingSync(d.ownerID)
	if err != nil {
		return err
	}

	var firstErr error
	drained := 0
	for _, rec := range pending {
		if err := d.drainRecord(ctx, rec.RemoteKey); err != nil {
			if errors.Is(err, remote.ErrPermission) {
				// Will not resolve by retrying, but there is no dead-letter
				// path; log loudly and keep the normal retry policy.
				d.logger.Printf("WARNING: permission failure draining %s: %v", rec.RemoteKey, err)
			} else {
				d.logger.Printf("Failed to drain %s: %v", rec.RemoteKey, err)
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		drained++
	}

	if err := d.wallet.Flush(ctx, d.replica, d.ownerID); err != nil {
		d.logger.Printf("Failed to flush coin ledger: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	if drained > 0 || firstErr != nil {
		d.logger.Printf("Drain pass complete: %d drained, %d pending at start, retryable=%v",
			drained, len(pending), firstErr != nil)
	}
	if firstErr != nil {
		return fmt.Errorf("drain incomplete: %w", firstErr)
	}
	return nil
}

// drainRecord pushes one record's pending state. It re-reads the record
// first: a record drained by a previous partial run, or purged meanwhile,
// is skipped.
func (d *Drainer) drainRecord(ctx context.Context, remoteKey string) error {
	rec, err := d.store.Get(remoteKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !rec.PendingSync && !rec.PendingDelete {
		return nil
	}

	if rec.PendingDelete {
		return d.drainTombstone(ctx, rec)
	}
	return d.drainUpsert(ctx, rec)
}

// drainTombstone confirms a local deletion remotely, settles the group
// counters, and purges the tombstone.
func (d *Drainer) drainTombstone(ctx context.Context, rec *task.Record) error {
	if rec.LastSyncedExists {
		if err := d.replica.DeleteTask(ctx, rec.OwnerID, rec.RemoteKey); err != nil {
			return fmt.Errorf("remote delete: %w", err)
		}
		if rec.GroupID != "" {
			completedDelta := int64(0)
			if rec.LastSyncedCompleted {
				completedDelta = -1
			}
			if err := d.replica.AddGroupCounts(ctx, rec.GroupID, -1, completedDelta); err != nil {
				return fmt.Errorf("group counters: %w", err)
			}
		}
	}

	if err := d.store.Purge(rec.RemoteKey); err != nil {
		return err
	}
	d.logger.Printf("Drained delete of %s", rec.RemoteKey)
	return nil
}

// drainUpsert pushes the record's full document, settles the group counter
// deltas owed since the last confirmed sync, and flips the pending flags.
func (d *Drainer) drainUpsert(ctx context.Context, rec *task.Record) error {
	if err := d.replica.SetTask(ctx, rec.OwnerID, rec.RemoteKey, rec.ToDocument()); err != nil {
		return fmt.Errorf("remote upsert: %w", err)
	}

	if rec.GroupID != "" {
		var totalDelta, completedDelta int64
		if !rec.LastSyncedExists {
			totalDelta = 1
		}
		if rec.Completed != rec.LastSyncedCompleted {
			if rec.Completed {
				completedDelta = 1
			} else {
				completedDelta = -1
			}
		}
		if totalDelta != 0 || completedDelta != 0 {
			if err := d.replica.AddGroupCounts(ctx, rec.GroupID, totalDelta, completedDelta); err != nil {
				return fmt.Errorf("group counters: %w", err)
			}
		}
	}

	rec.PendingSync = false
	rec.PendingDelete = false
	rec.LastSyncedExists = true
	rec.LastSyncedCompleted = rec.Completed
	if err := d.store.Upsert(rec); err != nil {
		return err
	}

	d.logger.Printf("Drained upsert of %s (%s)", rec.RemoteKey, rec.Title)
	return nil
}
