package store

import (
	"path/filepath"
	"testing"
)

// walletStore opens a fresh store for wallet tests
func walletStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "wallet.db"), nil)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestGetWallet_ZeroValued tests reading a wallet that was never written
func TestGetWallet_ZeroValued(t *testing.T) {
	s := walletStore(t)

	w, err := s.GetWallet("user-1")
	if err != nil {
		t.Fatalf("GetWallet() failed: %v", err)
	}
	if w.Balance != 0 || w.PendingDelta != 0 {
		t.Errorf("fresh wallet = %+v, want zeros", w)
	}
}

// TestAddCoins_MirrorAndLedger tests that grants hit both the balance mirror
// and the pending-delta ledger
func TestAddCoins_MirrorAndLedger(t *testing.T) {
	s := walletStore(t)

	if err := s.AddCoins("user-1", 10); err != nil {
		t.Fatalf("AddCoins() failed: %v", err)
	}
	if err := s.AddCoins("user-1", 10); err != nil {
		t.Fatalf("AddCoins() failed: %v", err)
	}

	w, err := s.GetWallet("user-1")
	if err != nil {
		t.Fatalf("GetWallet() failed: %v", err)
	}
	if w.Balance != 20 {
		t.Errorf("Balance = %d, want 20", w.Balance)
	}
	if w.PendingDelta != 20 {
		t.Errorf("PendingDelta = %d, want 20", w.PendingDelta)
	}
}

// TestAddCoins_MirrorFloorsAtZero tests that the mirror clamps while the
// ledger keeps the true signed delta
func TestAddCoins_MirrorFloorsAtZero(t *testing.T) {
	s := walletStore(t)

	if err := s.AddCoins("user-1", 5); err != nil {
		t.Fatalf("AddCoins() failed: %v", err)
	}
	if err := s.AddCoins("user-1", -8); err != nil {
		t.Fatalf("AddCoins() failed: %v", err)
	}

	w, err := s.GetWallet("user-1")
	if err != nil {
		t.Fatalf("GetWallet() failed: %v", err)
	}
	if w.Balance != 0 {
		t.Errorf("Balance = %d, want clamped 0", w.Balance)
	}
	if w.PendingDelta != -3 {
		t.Errorf("PendingDelta = %d, want -3", w.PendingDelta)
	}
}

// TestConfirmBalance_KeepsGrantsMadeDuringFlush tests that only the flushed
// amount leaves the ledger
func TestConfirmBalance_KeepsGrantsMadeDuringFlush(t *testing.T) {
	s := walletStore(t)

	if err := s.AddCoins("user-1", 10); err != nil {
		t.Fatalf("AddCoins() failed: %v", err)
	}

	// A grant lands while a flush of the first 10 is in flight.
	if err := s.AddCoins("user-1", 10); err != nil {
		t.Fatalf("AddCoins() failed: %v", err)
	}
	if err := s.ConfirmBalance("user-1", 110, 10); err != nil {
		t.Fatalf("ConfirmBalance() failed: %v", err)
	}

	w, err := s.GetWallet("user-1")
	if err != nil {
		t.Fatalf("GetWallet() failed: %v", err)
	}
	if w.Balance != 110 {
		t.Errorf("Balance = %d, want confirmed 110", w.Balance)
	}
	if w.PendingDelta != 10 {
		t.Errorf("PendingDelta = %d, want the unflushed 10", w.PendingDelta)
	}
}

// TestConfirmBalance_FreshOwner tests confirming into an empty wallet
func TestConfirmBalance_FreshOwner(t *testing.T) {
	s := walletStore(t)

	if err := s.ConfirmBalance("user-1", 42, 0); err != nil {
		t.Fatalf("ConfirmBalance() failed: %v", err)
	}

	w, err := s.GetWallet("user-1")
	if err != nil {
		t.Fatalf("GetWallet() failed: %v", err)
	}
	if w.Balance != 42 || w.PendingDelta != 0 {
		t.Errorf("wallet = %+v, want balance 42 and empty ledger", w)
	}
}
