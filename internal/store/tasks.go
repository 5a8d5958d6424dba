package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/overcooked/overcooked/internal/task"
)

const taskColumns = `remote_key, owner_id, group_id, title, description, category,
	kind, priority, notes, status, is_completed, reward_claimed,
	deadline, created_at, completed_at,
	pending_sync, pending_delete, last_synced_exists, last_synced_completed`

// Upsert inserts or replaces a record keyed by its remote key.
func (s *Store) Upsert(rec *task.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	query := `
	INSERT INTO tasks (` + taskColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(remote_key) DO UPDATE SET
		owner_id = excluded.owner_id,
		group_id = excluded.group_id,
		title = excluded.title,
		description = excluded.description,
		category = excluded.category,
		kind = excluded.kind,
		priority = excluded.priority,
		notes = excluded.notes,
		status = excluded.status,
		is_completed = excluded.is_completed,
		reward_claimed = excluded.reward_claimed,
		deadline = excluded.deadline,
		created_at = excluded.created_at,
		completed_at = excluded.completed_at,
		pending_sync = excluded.pending_sync,
		pending_delete = excluded.pending_delete,
		last_synced_exists = excluded.last_synced_exists,
		last_synced_completed = excluded.last_synced_completed
	`

	err := s.run(func() error {
		_, err := s.conn.Exec(query,
			rec.RemoteKey,
			rec.OwnerID,
			rec.GroupID,
			rec.Title,
			rec.Description,
			rec.Category,
			string(rec.Kind),
			string(rec.Priority),
			rec.Notes,
			string(rec.Status),
			boolToInt(rec.Completed),
			boolToInt(rec.RewardClaimed),
			timeToNullInt(rec.Deadline),
			rec.CreatedAt.UnixMilli(),
			timeToNullInt(rec.CompletedAt),
			boolToInt(rec.PendingSync),
			boolToInt(rec.PendingDelete),
			boolToInt(rec.LastSyncedExists),
			boolToInt(rec.LastSyncedCompleted),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert task %s: %w", rec.RemoteKey, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify()
	return nil
}

// Purge physically removes a record. Idempotent; purging an absent key is
// not an error.
func (s *Store) Purge(remoteKey string) error {
	err := s.run(func() error {
		_, err := s.conn.Exec(`DELETE FROM tasks WHERE remote_key = ?`, remoteKey)
		if err != nil {
			return fmt.Errorf("failed to purge task %s: %w", remoteKey, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify()
	return nil
}

// Get retrieves a record by remote key. Returns ErrNotFound if absent.
func (s *Store) Get(remoteKey string) (*task.Record, error) {
	var rec *task.Record
	err := s.run(func() error {
		row := s.conn.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE remote_key = ?`, remoteKey)
		r, err := scanTask(row)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get task %s: %w", remoteKey, err)
		}
		rec = r
		return nil
	})
	return rec, err
}

// Filter narrows task queries. Zero values mean "no constraint".
type Filter struct {
	OwnerID  string
	GroupID  string
	Category string

	// Completed filters on completion state when non-nil.
	Completed *bool

	// DueAfter/DueBefore bound the deadline (half-open interval).
	DueAfter  *time.Time
	DueBefore *time.Time

	// IncludeTombstones also returns records marked pending_delete.
	// Consumer-facing queries leave this false so deleted tasks vanish
	// immediately even while the tombstone awaits drain.
	IncludeTombstones bool

	// PendingSyncOnly returns only records awaiting a drain pass.
	PendingSyncOnly bool
}

// List returns records matching the filter, ordered by deadline then
// creation time.
func (s *Store) List(f Filter) ([]*task.Record, error) {
	var conditions []string
	var args []any

	if f.OwnerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.GroupID != "" {
		conditions = append(conditions, "group_id = ?")
		args = append(args, f.GroupID)
	}
	if f.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, f.Category)
	}
	if f.Completed != nil {
		conditions = append(conditions, "is_completed = ?")
		args = append(args, boolToInt(*f.Completed))
	}
	if f.DueAfter != nil {
		conditions = append(conditions, "deadline >= ?")
		args = append(args, f.DueAfter.UnixMilli())
	}
	if f.DueBefore != nil {
		conditions = append(conditions, "deadline < ?")
		args = append(args, f.DueBefore.UnixMilli())
	}
	if !f.IncludeTombstones {
		conditions = append(conditions, "pending_delete = 0")
	}
	if f.PendingSyncOnly {
		conditions = append(conditions, "pending_sync = 1")
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY deadline IS NULL, deadline ASC, created_at ASC"

	var recs []*task.Record
	err := s.run(func() error {
		rows, err := s.conn.Query(query, args...)
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}
		defer rows.Close()

		recs, err = scanTasks(rows)
		return err
	})
	return recs, err
}

// All returns every record for the owner, tombstones included. This is the
// reconciler's view of local state.
func (s *Store) All(ownerID string) ([]*task.Record, error) {
	return s.List(Filter{OwnerID: ownerID, IncludeTombstones: true})
}

// PendingSync returns the records awaiting a drain pass, tombstones
// included.
func (s *Store) PendingSync(ownerID string) ([]*task.Record, error) {
	return s.List(Filter{OwnerID: ownerID, IncludeTombstones: true, PendingSyncOnly: true})
}

// Counts summarizes the owner's visible tasks.
type Counts struct {
	Pending   int
	Completed int
	Overdue   int
}

// CountTasks returns pending/completed/overdue tallies for the owner,
// excluding tombstones.
func (s *Store) CountTasks(ownerID string, now time.Time) (Counts, error) {
	var c Counts
	err := s.run(func() error {
		row := s.conn.QueryRow(`
		SELECT
			COUNT(CASE WHEN is_completed = 0 THEN 1 END),
			COUNT(CASE WHEN is_completed = 1 THEN 1 END),
			COUNT(CASE WHEN is_completed = 0 AND deadline IS NOT NULL AND deadline < ? THEN 1 END)
		FROM tasks
		WHERE owner_id = ? AND pending_delete = 0`,
			now.UnixMilli(), ownerID)
		if err := row.Scan(&c.Pending, &c.Completed, &c.Overdue); err != nil {
			return fmt.Errorf("failed to count tasks: %w", err)
		}
		return nil
	})
	return c, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Record, error) {
	var (
		rec                   task.Record
		kind, priority, stat  string
		completed, claimed    int
		deadline, completedAt sql.NullInt64
		createdAt             int64
		pSync, pDel, lsE, lsC int
	)

	err := row.Scan(
		&rec.RemoteKey,
		&rec.OwnerID,
		&rec.GroupID,
		&rec.Title,
		&rec.Description,
		&rec.Category,
		&kind,
		&priority,
		&rec.Notes,
		&stat,
		&completed,
		&claimed,
		&deadline,
		&createdAt,
		&completedAt,
		&pSync,
		&pDel,
		&lsE,
		&lsC,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = task.Kind(kind)
	rec.Priority = task.Priority(priority)
	rec.Status = task.Status(stat)
	rec.Completed = completed != 0
	rec.RewardClaimed = claimed != 0
	rec.Deadline = nullIntToTime(deadline)
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.CompletedAt = nullIntToTime(completedAt)
	rec.PendingSync = pSync != 0
	rec.PendingDelete = pDel != 0
	rec.LastSyncedExists = lsE != 0
	rec.LastSyncedCompleted = lsC != 0

	return &rec, nil
}

func scanTasks(rows *sql.Rows) ([]*task.Record, error) {
	var recs []*task.Record
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return recs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
