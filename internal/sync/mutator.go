package sync

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/overcooked/overcooked/internal/store"
	"github.com/overcooked/overcooked/internal/task"
	"github.com/overcooked/overcooked/internal/wallet"
)

// Trigger schedules a drain run. Scheduling is idempotent: requests made
// while a run is already queued coalesce into that run.
type Trigger interface {
	Schedule()
}

// Mutator is the write entry point for task records.
//
// Every operation writes through to the local store, marks the record
// pending, and schedules a drain. Success means the local write committed;
// delivery to the replica is the drainer's job.
type Mutator struct {
	store   *store.Store
	wallet  *wallet.Service
	trigger Trigger
	ownerID string
	logger  *log.Logger
	now     func() time.Time
}

// NewMutator creates a mutator acting as ownerID.
func NewMutator(st *store.Store, w *wallet.Service, trigger Trigger, ownerID string, logger *log.Logger) *Mutator {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Mutator{
		store:   st,
		wallet:  w,
		trigger: trigger,
		ownerID: ownerID,
		logger:  logger,
		now:     time.Now,
	}
}

// Create persists a new record optimistically and schedules a drain.
// A missing remote key is assigned a fresh UUID.
func (m *Mutator) Create(rec *task.Record) error {
	if rec.RemoteKey == "" {
		rec.RemoteKey = uuid.NewString()
	}
	rec.OwnerID = m.ownerID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}

	rec.PendingSync = true
	rec.PendingDelete = false
	rec.LastSyncedExists = false
	rec.LastSyncedCompleted = rec.Completed

	if err := m.store.Upsert(rec); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	m.logger.Printf("Created task %s (%s), pending sync", rec.RemoteKey, rec.Title)
	m.trigger.Schedule()
	return nil
}

// Update persists changed content optimistically and schedules a drain.
// A record that somehow lost its remote key is treated as a create.
func (m *Mutator) Update(rec *task.Record) error {
	if rec.RemoteKey == "" {
		// Only reachable from a corrupted record; recover by recreating.
		return m.Create(rec)
	}
	rec.OwnerID = m.ownerID

	rec.PendingSync = true
	rec.PendingDelete = false

	if err := m.store.Upsert(rec); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	m.logger.Printf("Updated task %s (%s), pending sync", rec.RemoteKey, rec.Title)
	m.trigger.Schedule()
	return nil
}

// Delete tombstones the record for the drainer. A record that was never
// pushed and has no remote identity is purged immediately, locally only.
func (m *Mutator) Delete(rec *task.Record) error {
	if rec.RemoteKey == "" && !rec.LastSyncedExists {
		// Never persisted and no remote identity: nothing to drain.
		m.logger.Printf("Dropping local-only task (%s)", rec.Title)
		return nil
	}

	rec.OwnerID = m.ownerID
	rec.PendingDelete = true
	rec.PendingSync = true

	if err := m.store.Upsert(rec); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	m.logger.Printf("Tombstoned task %s (%s), pending sync", rec.RemoteKey, rec.Title)
	m.trigger.Schedule()
	return nil
}

// SetStatus loads the record, applies the status transition with its derived
// completion fields, grants the completion reward on the first transition to
// done, and persists as an update.
func (m *Mutator) SetStatus(remoteKey string, status task.Status) error {
	rec, err := m.store.Get(remoteKey)
	if err != nil {
		return err
	}

	rec.SetStatus(status, m.now())

	if rec.Completed && !rec.RewardClaimed {
		rec.RewardClaimed = true
		if err := m.wallet.GrantCompletionReward(m.ownerID); err != nil {
			return err
		}
	}

	return m.Update(rec)
}

// ToggleCompletion flips the record between done and not started.
func (m *Mutator) ToggleCompletion(remoteKey string) error {
	rec, err := m.store.Get(remoteKey)
	if err != nil {
		return err
	}
	if rec.Completed {
		return m.SetStatus(remoteKey, task.StatusNotStarted)
	}
	return m.SetStatus(remoteKey, task.StatusDone)
}
