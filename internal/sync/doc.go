// Package sync implements the offline-first synchronization engine between
// the local record store and the remote replica.
//
// # Overview
//
// The engine keeps a user's task records editable offline, visible instantly
// after every edit, and convergent with other devices once connectivity
// returns:
//
//	caller -> Mutator -> Store (optimistic, pending flags set)
//	                       |  schedule
//	                    Drainer -> Replica -> (snapshots) -> Reconciler -> Store
//
// # Mutator
//
// Mutations are optimistic: the local write is the success signal, the
// remote push happens later. Each mutation marks the record pending and
// kicks the drain scheduler; repeat mutations coalesce into one drain run.
//
// # Reconciler
//
// The reconciler consumes full-collection snapshots pushed by the replica.
// Records with pending local mutations are never overwritten by a snapshot:
// local desired state wins until the drainer confirms it. Remote deletions
// purge local records only when nothing is pending on them.
//
// # Drainer
//
// The drainer pushes each pending record independently: tombstones become
// remote deletes plus group-counter decrements and a local purge; everything
// else is a full-document upsert plus the owed counter adjustments, then the
// pending flags flip. Each record re-reads its state before acting, so a
// retry after a partial run skips already-drained records.
//
// A record is processed wholesale: if the run dies between the remote write
// and the flag flip, the pending flags stay set and the whole record
// retries. Remote upserts and deletes are idempotent, so the document
// converges; the counter adjustment rides the same retry.
//
// # Scheduler
//
// The scheduler is the job boundary: it coalesces schedule requests into at
// most one queued run, gates runs on replica reachability, and re-arms with
// a delay after a retryable failure. The drainer itself has no backoff loop.
package sync
