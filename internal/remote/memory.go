package remote

import (
	"context"
	"sync"
)

// Memory is an in-process Replica. It backs the hub server and the package
// tests, where its failure injection simulates network loss mid-drain.
type Memory struct {
	mu       sync.Mutex
	tasks    map[string]map[string]Document // owner -> key -> doc
	groups   map[string]GroupCounts
	balances map[string]int64
	subs     map[string]map[int]chan Snapshot // owner -> sub id -> channel
	nextSub  int
	failWith error
}

// NewMemory returns an empty in-memory replica.
func NewMemory() *Memory {
	return &Memory{
		tasks:    make(map[string]map[string]Document),
		groups:   make(map[string]GroupCounts),
		balances: make(map[string]int64),
		subs:     make(map[string]map[int]chan Snapshot),
	}
}

// Fail makes every subsequent operation return err until Fail(nil).
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *Memory) SetTask(ctx context.Context, owner, key string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}

	col := m.tasks[owner]
	if col == nil {
		col = make(map[string]Document)
		m.tasks[owner] = col
	}
	col[key] = cloneDoc(doc)
	m.broadcastLocked(owner)
	return nil
}

func (m *Memory) DeleteTask(ctx context.Context, owner, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}

	if col := m.tasks[owner]; col != nil {
		delete(col, key)
	}
	m.broadcastLocked(owner)
	return nil
}

func (m *Memory) AddGroupCounts(ctx context.Context, groupID string, totalDelta, completedDelta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}

	c := m.groups[groupID]
	c.TotalTasks += totalDelta
	c.CompletedTasks += completedDelta
	m.groups[groupID] = c
	return nil
}

func (m *Memory) AdjustBalance(ctx context.Context, owner string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}

	b := m.balances[owner] + delta
	if b < 0 {
		b = 0
	}
	m.balances[owner] = b
	return b, nil
}

func (m *Memory) Subscribe(ctx context.Context, owner string) (<-chan Snapshot, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Snapshot, 16)
	if m.subs[owner] == nil {
		m.subs[owner] = make(map[int]chan Snapshot)
	}
	m.subs[owner][id] = ch

	// Initial full snapshot.
	ch <- m.snapshotLocked(owner)

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[owner][id]; ok {
			close(c)
			delete(m.subs[owner], id)
		}
	}
	return ch, cancel, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failWith
}

// Task returns the stored document for owner/key, or nil if absent.
func (m *Memory) Task(owner, key string) Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.tasks[owner][key]
	if !ok {
		return nil
	}
	return cloneDoc(doc)
}

// TaskCount returns how many documents the owner's collection holds.
func (m *Memory) TaskCount(owner string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks[owner])
}

// Group returns the aggregate counters for a group.
func (m *Memory) Group(groupID string) GroupCounts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groups[groupID]
}

// Balance returns the authoritative balance for an owner.
func (m *Memory) Balance(owner string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[owner]
}

// SetBalance seeds the authoritative balance, for tests.
func (m *Memory) SetBalance(owner string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[owner] = balance
}

// snapshotLocked builds a full-collection snapshot for the owner.
func (m *Memory) snapshotLocked(owner string) Snapshot {
	snap := Snapshot{Owner: owner, Tasks: make(map[string]Document)}
	for key, doc := range m.tasks[owner] {
		snap.Tasks[key] = cloneDoc(doc)
	}
	return snap
}

// broadcastLocked fans the owner's current snapshot out to all subscribers.
// Slow subscribers drop intermediate snapshots; only the latest matters
// since every snapshot is the full collection.
func (m *Memory) broadcastLocked(owner string) {
	if len(m.subs[owner]) == 0 {
		return
	}
	snap := m.snapshotLocked(owner)
	for _, ch := range m.subs[owner] {
		select {
		case ch <- snap:
		default:
		}
	}
}

func cloneDoc(doc Document) Document {
	c := make(Document, len(doc))
	for k, v := range doc {
		c[k] = v
	}
	return c
}
