// Package remote defines the protocol to the push-based remote replica and
// provides two implementations: an in-process replica for tests and local
// hosting, and a websocket client for a replica hub.
package remote

import (
	"context"
	"errors"
)

// Document is the flat wire representation of one task record: strings,
// booleans, and 64-bit millisecond timestamps, with enums as strings.
type Document map[string]any

// Snapshot is a full-collection view of one owner's tasks. The replica
// delivers the whole collection on every change; there are no delta feeds.
type Snapshot struct {
	Owner string              `json:"owner"`
	Tasks map[string]Document `json:"tasks"`
}

// ErrOffline indicates the replica is unreachable. The drain reports it as
// retryable; the scheduler tries again later.
var ErrOffline = errors.New("remote: replica unreachable")

// ErrPermission indicates the replica rejected the operation. Retrying will
// not resolve it, but there is no dead-letter path: it is logged distinctly
// and retried on the same policy as any other push failure.
var ErrPermission = errors.New("remote: permission denied")

// Replica is the remote task collection addressed as ownerID/tasks/remoteKey,
// plus the group aggregate counters and the authoritative coin balance.
//
// All mutating operations are idempotent upserts or deletes except
// AddGroupCounts and AdjustBalance, which are atomic server-side increments;
// callers own exactly-once accounting for those.
type Replica interface {
	// SetTask upserts the full document at owner/tasks/key.
	SetTask(ctx context.Context, owner, key string, doc Document) error

	// DeleteTask removes the document at owner/tasks/key. Deleting an
	// absent key is not an error.
	DeleteTask(ctx context.Context, owner, key string) error

	// AddGroupCounts atomically increments a group's totalTasks and
	// completedTasks counters by the given (possibly negative) deltas.
	AddGroupCounts(ctx context.Context, groupID string, totalDelta, completedDelta int64) error

	// AdjustBalance atomically applies delta to the owner's authoritative
	// coin balance and returns the confirmed balance.
	AdjustBalance(ctx context.Context, owner string, delta int64) (int64, error)

	// Subscribe starts delivering full-collection snapshots for the owner:
	// one immediately, then one on every remote change. The returned cancel
	// function is idempotent; after cancel the channel is closed and no
	// further snapshots are delivered.
	Subscribe(ctx context.Context, owner string) (<-chan Snapshot, func(), error)

	// Ping reports reachability. Used as the connectivity precondition for
	// drain scheduling.
	Ping(ctx context.Context) error
}

// GroupCounts mirrors the two aggregate counters kept per group.
type GroupCounts struct {
	TotalTasks     int64 `json:"totalTasks"`
	CompletedTasks int64 `json:"completedTasks"`
}
