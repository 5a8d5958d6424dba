package task

import (
	"fmt"
	"time"
)

// ToDocument flattens the record into the wire representation used by the
// remote replica: a flat map of strings, booleans and millisecond timestamps,
// with enums as strings. Sync shadow fields are local-only and never leave
// the device.
func (r *Record) ToDocument() map[string]any {
	doc := map[string]any{
		"remoteKey":     r.RemoteKey,
		"ownerId":       r.OwnerID,
		"title":         r.Title,
		"description":   r.Description,
		"category":      r.Category,
		"kind":          string(r.Kind),
		"priority":      string(r.Priority),
		"status":        string(r.Status),
		"notes":         r.Notes,
		"createdAt":     r.CreatedAt.UnixMilli(),
		"isCompleted":   r.Completed,
		"rewardClaimed": r.RewardClaimed,
	}
	if r.GroupID != "" {
		doc["groupId"] = r.GroupID
	}
	if r.Deadline != nil {
		doc["deadline"] = r.Deadline.UnixMilli()
	}
	if r.CompletedAt != nil {
		doc["completedAt"] = r.CompletedAt.UnixMilli()
	}
	return doc
}

// FromDocument rebuilds a record from a replica document keyed by key.
//
// Missing or malformed fields fall back to defaults rather than failing the
// whole snapshot; a record another device wrote with an older field set must
// still reconcile. Sync shadow fields are left at their zero values for the
// caller to set.
func FromDocument(key string, doc map[string]any) (*Record, error) {
	if key == "" {
		return nil, fmt.Errorf("document key is empty")
	}
	r := &Record{
		RemoteKey:   key,
		OwnerID:     docString(doc, "ownerId"),
		GroupID:     docString(doc, "groupId"),
		Title:       docString(doc, "title"),
		Description: docString(doc, "description"),
		Category:    docString(doc, "category"),
		Notes:       docString(doc, "notes"),
		Completed:   docBool(doc, "isCompleted"),
	}

	if k := Kind(docString(doc, "kind")); k.Valid() {
		r.Kind = k
	} else {
		r.Kind = KindOther
	}
	if p := Priority(docString(doc, "priority")); p.Valid() {
		r.Priority = p
	} else {
		r.Priority = PriorityMedium
	}
	if s := Status(docString(doc, "status")); s.Valid() {
		r.Status = s
	} else if r.Completed {
		r.Status = StatusDone
	} else {
		r.Status = StatusNotStarted
	}
	r.Completed = r.Status == StatusDone

	if ms, ok := docInt64(doc, "createdAt"); ok {
		r.CreatedAt = time.UnixMilli(ms)
	} else {
		r.CreatedAt = time.Now()
	}
	if ms, ok := docInt64(doc, "deadline"); ok {
		t := time.UnixMilli(ms)
		r.Deadline = &t
	}
	if ms, ok := docInt64(doc, "completedAt"); ok {
		t := time.UnixMilli(ms)
		r.CompletedAt = &t
	}

	if v, ok := doc["rewardClaimed"].(bool); ok {
		r.RewardClaimed = v
	} else {
		// Older documents predate the flag; treat completed tasks as already
		// claimed so completion toggling cannot farm rewards.
		r.RewardClaimed = r.Completed
	}

	return r, nil
}

func docString(doc map[string]any, key string) string {
	v, _ := doc[key].(string)
	return v
}

func docBool(doc map[string]any, key string) bool {
	v, _ := doc[key].(bool)
	return v
}

// docInt64 reads a millisecond timestamp that may arrive as int64 or, after
// a JSON round trip, as float64.
func docInt64(doc map[string]any, key string) (int64, bool) {
	switch v := doc[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
