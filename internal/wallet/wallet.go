// Package wallet provides the coin balance side-channel for task rewards.
//
// Grants are applied to the local balance mirror immediately so the UI
// reflects rewards offline, and recorded in a pending-delta ledger. The
// drain worker flushes the accumulated delta to the authoritative server
// balance and overwrites the mirror with the confirmed value.
//
// Known limitation: with concurrent grants on multiple devices the server
// aggregates every flushed delta, but a device's mirror can transiently
// disagree with the authoritative balance between its own flushes. The
// ledger-add/overwrite-on-confirm pattern guarantees no grant is lost, not
// that every mirror read is exact.
package wallet

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/overcooked/overcooked/internal/remote"
	"github.com/overcooked/overcooked/internal/store"
)

// CompletionReward is the fixed coin amount granted per first completion of
// a task.
const CompletionReward = 10

// Service mediates between the store's wallet table and the authoritative
// remote balance.
type Service struct {
	store  *store.Store
	logger *log.Logger
}

// New creates a wallet service over the given store.
func New(st *store.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[wallet] ", log.LstdFlags)
	}
	return &Service{store: st, logger: logger}
}

// GrantCompletionReward credits the fixed reward to the owner's mirror and
// ledger. Callers guard exactly-once semantics with the record's
// RewardClaimed flag; this method applies whatever it is asked to.
func (s *Service) GrantCompletionReward(ownerID string) error {
	if err := s.store.AddCoins(ownerID, CompletionReward); err != nil {
		return fmt.Errorf("failed to grant reward: %w", err)
	}
	s.logger.Printf("Granted %d coins to %s (pending sync)", CompletionReward, ownerID)
	return nil
}

// Balance returns the owner's local mirror.
func (s *Service) Balance(ownerID string) (store.Wallet, error) {
	return s.store.GetWallet(ownerID)
}

// Flush pushes the pending ledger delta to the authoritative balance and
// overwrites the mirror with the confirmed value. A zero ledger is a no-op.
// On failure the ledger is left untouched for the next pass.
func (s *Service) Flush(ctx context.Context, replica remote.Replica, ownerID string) error {
	w, err := s.store.GetWallet(ownerID)
	if err != nil {
		return err
	}
	if w.PendingDelta == 0 {
		return nil
	}

	balance, err := replica.AdjustBalance(ctx, ownerID, w.PendingDelta)
	if err != nil {
		return fmt.Errorf("failed to push coin delta %d: %w", w.PendingDelta, err)
	}

	if err := s.store.ConfirmBalance(ownerID, balance, w.PendingDelta); err != nil {
		return err
	}
	s.logger.Printf("Flushed coin delta %d for %s, confirmed balance %d", w.PendingDelta, ownerID, balance)
	return nil
}
