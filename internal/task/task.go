// Package task provides the data model for synchronized task records.
package task

import (
	"fmt"
	"hash/fnv"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Kind categorizes what sort of work a task represents.
type Kind string

const (
	KindHomework   Kind = "HOMEWORK"
	KindAssignment Kind = "ASSIGNMENT"
	KindExam       Kind = "EXAM"
	KindProject    Kind = "PROJECT"
	KindOther      Kind = "OTHER"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindHomework, KindAssignment, KindExam, KindProject, KindOther:
		return true
	}
	return false
}

// Priority indicates urgency ordering for a task.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Weight returns a numeric ordering for the priority (higher = more urgent).
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Record is one task as held in the local store.
//
// The local store is the source of truth for desired state. The sync shadow
// fields track what the remote replica has confirmed; they are maintained by
// the sync engine, never by callers.
type Record struct {
	// ===== Identity =====
	RemoteKey string `json:"remote_key"` // globally unique, client-assigned UUID
	OwnerID   string `json:"owner_id"`
	GroupID   string `json:"group_id,omitempty"` // empty for personal tasks

	// ===== Content =====
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Kind        Kind     `json:"kind"`
	Priority    Priority `json:"priority"`
	Notes       string   `json:"notes,omitempty"`

	// ===== Lifecycle =====
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      Status     `json:"status"`
	Completed   bool       `json:"completed"` // derived from Status, stored for queries

	// ===== Reward =====
	// RewardClaimed is set once a completion reward has been granted and is
	// never reset while the record exists.
	RewardClaimed bool `json:"reward_claimed"`

	// ===== Sync shadow =====
	PendingSync         bool `json:"pending_sync"`
	PendingDelete       bool `json:"pending_delete"`
	LastSyncedExists    bool `json:"last_synced_exists"`
	LastSyncedCompleted bool `json:"last_synced_completed"`
}

// New returns a record with defaulted content fields, mirroring what a blank
// form would produce.
func New(title string) *Record {
	return &Record{
		Title:     title,
		Kind:      KindOther,
		Priority:  PriorityMedium,
		Status:    StatusNotStarted,
		CreatedAt: time.Now(),
	}
}

// Validate checks the record for storable field values.
func (r *Record) Validate() error {
	if r.RemoteKey == "" {
		return fmt.Errorf("remote key is required")
	}
	if r.OwnerID == "" {
		return fmt.Errorf("owner id is required")
	}
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(r.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(r.Title))
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown kind %q", r.Kind)
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", r.Priority)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("unknown status %q", r.Status)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if r.Completed != (r.Status == StatusDone) {
		return fmt.Errorf("completed flag disagrees with status %q", r.Status)
	}
	return nil
}

// SetStatus updates the status together with the derived completion fields.
func (r *Record) SetStatus(s Status, now time.Time) {
	r.Status = s
	if s == StatusDone {
		r.Completed = true
		t := now
		r.CompletedAt = &t
	} else {
		r.Completed = false
		r.CompletedAt = nil
	}
}

// Overdue reports whether the task is past its deadline and not done.
func (r *Record) Overdue(now time.Time) bool {
	return !r.Completed && r.Deadline != nil && r.Deadline.Before(now)
}

// DueToday reports whether the task's deadline falls on the calendar day of now.
func (r *Record) DueToday(now time.Time) bool {
	if r.Deadline == nil {
		return false
	}
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)
	return !r.Deadline.Before(start) && r.Deadline.Before(end)
}

// LegacyKey derives a stable numeric key from the remote key.
//
// Kept only for consumers that still index records by integer; storage is
// keyed by RemoteKey.
func (r *Record) LegacyKey() int64 {
	h := fnv.New64a()
	h.Write([]byte(r.RemoteKey))
	k := int64(h.Sum64())
	if k < 0 {
		k = -k
	}
	return k
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.Deadline != nil {
		t := *r.Deadline
		c.Deadline = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// CopyContentFrom overwrites the content and lifecycle fields from src,
// leaving identity and sync shadow fields untouched. RewardClaimed only ever
// latches on: once granted locally it is not cleared by a remote value.
func (r *Record) CopyContentFrom(src *Record) {
	r.Title = src.Title
	r.Description = src.Description
	r.Category = src.Category
	r.Kind = src.Kind
	r.Priority = src.Priority
	r.Notes = src.Notes
	r.Deadline = src.Deadline
	r.CreatedAt = src.CreatedAt
	r.CompletedAt = src.CompletedAt
	r.Status = src.Status
	r.Completed = src.Completed
	if src.RewardClaimed {
		r.RewardClaimed = true
	}
}
