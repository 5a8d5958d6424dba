package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Wallet is the local mirror of an owner's coin balance plus the
// pending-delta ledger awaiting confirmation by the authoritative server.
type Wallet struct {
	OwnerID      string
	Balance      int64
	PendingDelta int64
}

// GetWallet returns the owner's wallet, zero-valued if never written.
func (s *Store) GetWallet(ownerID string) (Wallet, error) {
	w := Wallet{OwnerID: ownerID}
	err := s.run(func() error {
		row := s.conn.QueryRow(
			`SELECT balance, pending_delta FROM wallet WHERE owner_id = ?`, ownerID)
		err := row.Scan(&w.Balance, &w.PendingDelta)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read wallet for %s: %w", ownerID, err)
		}
		return nil
	})
	return w, err
}

// AddCoins applies delta to the balance mirror immediately and records it in
// the pending-delta ledger. The mirror never goes below zero; the ledger
// keeps the true signed delta so the server sees the full adjustment.
func (s *Store) AddCoins(ownerID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	err := s.run(func() error {
		_, err := s.conn.Exec(`
		INSERT INTO wallet (owner_id, balance, pending_delta)
		VALUES (?, MAX(0, ?), ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			balance = MAX(0, balance + excluded.pending_delta),
			pending_delta = pending_delta + excluded.pending_delta`,
			ownerID, delta, delta)
		if err != nil {
			return fmt.Errorf("failed to add coins for %s: %w", ownerID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify()
	return nil
}

// ConfirmBalance overwrites the mirror with the server-confirmed balance and
// clears the delta that was flushed. Deltas granted after the flush started
// stay in the ledger for the next pass.
func (s *Store) ConfirmBalance(ownerID string, balance, flushed int64) error {
	err := s.run(func() error {
		_, err := s.conn.Exec(`
		INSERT INTO wallet (owner_id, balance, pending_delta)
		VALUES (?, MAX(0, ?), 0)
		ON CONFLICT(owner_id) DO UPDATE SET
			balance = MAX(0, excluded.balance),
			pending_delta = pending_delta - ?`,
			ownerID, balance, flushed)
		if err != nil {
			return fmt.Errorf("failed to confirm balance for %s: %w", ownerID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify()
	return nil
}
