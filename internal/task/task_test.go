package task

import (
	"testing"
	"time"
)

// TestNew_Defaults tests that a fresh record gets blank-form defaults
func TestNew_Defaults(t *testing.T) {
	rec := New("Study for finals")

	if rec.Title != "Study for finals" {
		t.Errorf("Title = %q, want %q", rec.Title, "Study for finals")
	}
	if rec.Kind != KindOther {
		t.Errorf("Kind = %q, want %q", rec.Kind, KindOther)
	}
	if rec.Priority != PriorityMedium {
		t.Errorf("Priority = %q, want %q", rec.Priority, PriorityMedium)
	}
	if rec.Status != StatusNotStarted {
		t.Errorf("Status = %q, want %q", rec.Status, StatusNotStarted)
	}
	if rec.Completed {
		t.Error("new record should not be completed")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

// TestValidate_RequiredFields tests the required-field checks
func TestValidate_RequiredFields(t *testing.T) {
	valid := func() *Record {
		rec := New("ok")
		rec.RemoteKey = "key-1"
		rec.OwnerID = "user-1"
		return rec
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid record failed validation: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{"missing remote key", func(r *Record) { r.RemoteKey = "" }},
		{"missing owner", func(r *Record) { r.OwnerID = "" }},
		{"missing title", func(r *Record) { r.Title = "" }},
		{"unknown kind", func(r *Record) { r.Kind = "CHORES" }},
		{"unknown priority", func(r *Record) { r.Priority = "URGENT" }},
		{"unknown status", func(r *Record) { r.Status = "PAUSED" }},
		{"zero created_at", func(r *Record) { r.CreatedAt = time.Time{} }},
		{"completed disagrees with status", func(r *Record) { r.Completed = true }},
	}
	for _, tt := range tests {
		rec := valid()
		tt.mutate(rec)
		if err := rec.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

// TestSetStatus_DerivedFields tests completion fields tracking the status
func TestSetStatus_DerivedFields(t *testing.T) {
	rec := New("task")
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	rec.SetStatus(StatusDone, now)
	if !rec.Completed {
		t.Error("Completed should be true after DONE")
	}
	if rec.CompletedAt == nil || !rec.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", rec.CompletedAt, now)
	}

	rec.SetStatus(StatusNotStarted, now.Add(time.Hour))
	if rec.Completed {
		t.Error("Completed should be false after reopening")
	}
	if rec.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil after reopening", rec.CompletedAt)
	}

	rec.SetStatus(StatusInProgress, now)
	if rec.Completed || rec.CompletedAt != nil {
		t.Error("IN_PROGRESS should not mark the record completed")
	}
}

// TestOverdue tests the deadline comparison
func TestOverdue(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	rec := New("task")
	if rec.Overdue(now) {
		t.Error("record without deadline should never be overdue")
	}

	rec.Deadline = &past
	if !rec.Overdue(now) {
		t.Error("past deadline should be overdue")
	}

	rec.SetStatus(StatusDone, now)
	if rec.Overdue(now) {
		t.Error("completed record should not be overdue")
	}

	rec.SetStatus(StatusNotStarted, now)
	rec.Deadline = &future
	if rec.Overdue(now) {
		t.Error("future deadline should not be overdue")
	}
}

// TestDueToday tests the calendar-day window
func TestDueToday(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	rec := New("task")
	if rec.DueToday(now) {
		t.Error("record without deadline is not due today")
	}

	tonight := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	rec.Deadline = &tonight
	if !rec.DueToday(now) {
		t.Error("deadline later today should be due today")
	}

	tomorrow := time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)
	rec.Deadline = &tomorrow
	if rec.DueToday(now) {
		t.Error("deadline tomorrow should not be due today")
	}

	thisMorning := time.Date(2026, 3, 14, 1, 0, 0, 0, time.UTC)
	rec.Deadline = &thisMorning
	if !rec.DueToday(now) {
		t.Error("deadline earlier today should be due today")
	}
}

// TestLegacyKey_StableAndNonNegative tests the derived numeric key
func TestLegacyKey_StableAndNonNegative(t *testing.T) {
	a := &Record{RemoteKey: "abc-123"}
	b := &Record{RemoteKey: "abc-123"}
	c := &Record{RemoteKey: "abc-124"}

	if a.LegacyKey() != b.LegacyKey() {
		t.Error("same remote key must derive the same legacy key")
	}
	if a.LegacyKey() == c.LegacyKey() {
		t.Error("different remote keys should derive different legacy keys")
	}
	if a.LegacyKey() < 0 || c.LegacyKey() < 0 {
		t.Error("legacy keys must be non-negative")
	}
}

// TestClone_DeepCopiesPointers tests that Clone detaches time pointers
func TestClone_DeepCopiesPointers(t *testing.T) {
	deadline := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	rec := New("task")
	rec.Deadline = &deadline

	clone := rec.Clone()
	shifted := deadline.Add(time.Hour)
	*clone.Deadline = shifted

	if !rec.Deadline.Equal(deadline) {
		t.Error("mutating the clone's deadline changed the original")
	}
}

// TestCopyContentFrom_PreservesSyncShadow tests that identity and shadow
// fields survive a content merge
func TestCopyContentFrom_PreservesSyncShadow(t *testing.T) {
	local := New("old title")
	local.RemoteKey = "key-1"
	local.OwnerID = "user-1"
	local.LastSyncedExists = true
	local.LastSyncedCompleted = true
	local.PendingSync = true

	src := New("new title")
	src.RemoteKey = "other-key"
	src.OwnerID = "other-user"
	src.Priority = PriorityHigh

	local.CopyContentFrom(src)

	if local.Title != "new title" || local.Priority != PriorityHigh {
		t.Error("content fields were not copied")
	}
	if local.RemoteKey != "key-1" || local.OwnerID != "user-1" {
		t.Error("identity fields must not be copied")
	}
	if !local.LastSyncedExists || !local.LastSyncedCompleted || !local.PendingSync {
		t.Error("sync shadow fields must not be copied")
	}
}

// TestCopyContentFrom_RewardLatch tests that a granted reward survives a
// merge from a document without the flag
func TestCopyContentFrom_RewardLatch(t *testing.T) {
	local := New("task")
	local.RewardClaimed = true

	src := New("task")
	src.RewardClaimed = false
	local.CopyContentFrom(src)
	if !local.RewardClaimed {
		t.Error("RewardClaimed must not be cleared by a merge")
	}

	other := New("task")
	other.RewardClaimed = true
	unclaimed := New("task")
	unclaimed.CopyContentFrom(other)
	if !unclaimed.RewardClaimed {
		t.Error("RewardClaimed should latch on from the source")
	}
}
