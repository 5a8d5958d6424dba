package wallet

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/overcooked/overcooked/internal/remote"
	"github.com/overcooked/overcooked/internal/store"
)

const testOwner = "user-1"

func testService(t *testing.T) (*Service, *remote.Memory) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "wallet.db"), nil)
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, nil), remote.NewMemory()
}

// TestGrantCompletionReward tests the immediate local credit
func TestGrantCompletionReward(t *testing.T) {
	svc, _ := testService(t)

	if err := svc.GrantCompletionReward(testOwner); err != nil {
		t.Fatalf("GrantCompletionReward() failed: %v", err)
	}

	w, err := svc.Balance(testOwner)
	if err != nil {
		t.Fatalf("Balance() failed: %v", err)
	}
	if w.Balance != CompletionReward {
		t.Errorf("Balance = %d, want %d", w.Balance, CompletionReward)
	}
	if w.PendingDelta != CompletionReward {
		t.Errorf("PendingDelta = %d, want %d", w.PendingDelta, CompletionReward)
	}
}

// TestFlush_ConfirmsAgainstServer tests pushing the ledger and adopting the
// authoritative balance
func TestFlush_ConfirmsAgainstServer(t *testing.T) {
	svc, replica := testService(t)
	replica.SetBalance(testOwner, 200)

	if err := svc.GrantCompletionReward(testOwner); err != nil {
		t.Fatalf("GrantCompletionReward() failed: %v", err)
	}
	if err := svc.Flush(context.Background(), replica, testOwner); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}

	if got := replica.Balance(testOwner); got != 200+CompletionReward {
		t.Errorf("server balance = %d, want %d", got, 200+CompletionReward)
	}
	w, err := svc.Balance(testOwner)
	if err != nil {
		t.Fatalf("Balance() failed: %v", err)
	}
	if w.Balance != 200+CompletionReward {
		t.Errorf("mirror = %d, want confirmed %d", w.Balance, 200+CompletionReward)
	}
	if w.PendingDelta != 0 {
		t.Errorf("PendingDelta = %d, want 0", w.PendingDelta)
	}
}

// TestFlush_EmptyLedgerNoOp tests that nothing is pushed without a delta
func TestFlush_EmptyLedgerNoOp(t *testing.T) {
	svc, replica := testService(t)
	replica.SetBalance(testOwner, 50)

	if err := svc.Flush(context.Background(), replica, testOwner); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	if got := replica.Balance(testOwner); got != 50 {
		t.Errorf("server balance = %d, want untouched 50", got)
	}
}

// TestFlush_FailureKeepsLedger tests that an offline flush retries later
// with the full delta intact
func TestFlush_FailureKeepsLedger(t *testing.T) {
	svc, replica := testService(t)

	if err := svc.GrantCompletionReward(testOwner); err != nil {
		t.Fatalf("GrantCompletionReward() failed: %v", err)
	}

	replica.Fail(remote.ErrOffline)
	if err := svc.Flush(context.Background(), replica, testOwner); err == nil {
		t.Fatal("expected flush to fail while offline")
	}

	w, err := svc.Balance(testOwner)
	if err != nil {
		t.Fatalf("Balance() failed: %v", err)
	}
	if w.PendingDelta != CompletionReward {
		t.Errorf("PendingDelta = %d, want %d preserved for retry", w.PendingDelta, CompletionReward)
	}

	replica.Fail(nil)
	if err := svc.Flush(context.Background(), replica, testOwner); err != nil {
		t.Fatalf("retry Flush() failed: %v", err)
	}
	if got := replica.Balance(testOwner); got != CompletionReward {
		t.Errorf("server balance = %d, want %d", got, CompletionReward)
	}
}

// TestFlush_GrantsAccumulate tests several grants flushing as one delta
func TestFlush_GrantsAccumulate(t *testing.T) {
	svc, replica := testService(t)

	for i := 0; i < 3; i++ {
		if err := svc.GrantCompletionReward(testOwner); err != nil {
			t.Fatalf("GrantCompletionReward() failed: %v", err)
		}
	}
	if err := svc.Flush(context.Background(), replica, testOwner); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	if got := replica.Balance(testOwner); got != 3*CompletionReward {
		t.Errorf("server balance = %d, want %d", got, 3*CompletionReward)
	}
}
