package sync

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/overcooked/overcooked/internal/remote"
	"github.com/overcooked/overcooked/internal/store"
	"github.com/overcooked/overcooked/internal/task"
	"github.com/overcooked/overcooked/internal/wallet"
)

const testOwner = "user-1"

// fixture bundles a store, wallet, in-memory replica, and the engine parts
// wired the way the daemon wires them, minus the scheduler loop.
type fixture struct {
	store   *store.Store
	wallet  *wallet.Service
	replica *remote.Memory
	trigger *recordingTrigger
	mutator *Mutator
	drainer *Drainer
	recon   *Reconciler
}

// recordingTrigger counts schedule requests instead of running drains.
type recordingTrigger struct {
	calls int
}

func (t *recordingTrigger) Schedule() { t.calls++ }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "sync.db"), nil)
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	w := wallet.New(st, nil)
	replica := remote.NewMemory()
	trigger := &recordingTrigger{}

	return &fixture{
		store:   st,
		wallet:  w,
		replica: replica,
		trigger: trigger,
		mutator: NewMutator(st, w, trigger, testOwner, nil),
		drainer: NewDrainer(st, w, replica, testOwner, nil),
		recon:   NewReconciler(st, testOwner, nil),
	}
}

// mustCreate creates a record through the mutator
func (f *fixture) mustCreate(t *testing.T, rec *task.Record) *task.Record {
	t.Helper()
	if err := f.mutator.Create(rec); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	return rec
}

// mustGet reads a record back from the store
func (f *fixture) mustGet(t *testing.T, key string) *task.Record {
	t.Helper()
	rec, err := f.store.Get(key)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", key, err)
	}
	return rec
}

// mustDrain runs one drain pass and fails the test on error
func (f *fixture) mustDrain(t *testing.T) {
	t.Helper()
	if err := f.drainer.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() failed: %v", err)
	}
}
