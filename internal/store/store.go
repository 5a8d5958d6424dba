// Package store provides the durable local record store for task sync.
//
// The store is an embedded SQLite database (WAL mode) that acts as the
// single source of truth for desired state. All reads and writes for a given
// store instance funnel through one serialized worker goroutine, so the
// database never observes interleaved partial writes and no record-level
// locking is needed.
//
// The store has no network access. Sync shadow fields on records are
// persisted verbatim; interpreting them is the sync engine's job.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when no record exists for the requested key.
var ErrNotFound = errors.New("store: record not found")

// ErrClosed is returned for operations submitted after Close.
var ErrClosed = errors.New("store: closed")

// Store wraps the SQLite connection with the serialized worker queue.
type Store struct {
	conn   *sql.DB
	path   string
	logger *log.Logger

	jobs chan job
	quit chan struct{}
	done chan struct{}

	mu     sync.Mutex
	closed bool
	subs   map[int]chan struct{}
	nextID int
}

type job struct {
	fn   func() error
	errc chan error
}

// Open creates or opens the store database at path.
//
// The caller MUST call Close when done.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A single worker owns the connection.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{
		conn:   conn,
		path:   path,
		logger: logger,
		jobs:   make(chan job),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		subs:   make(map[int]chan struct{}),
	}

	go s.worker()

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// worker executes submitted jobs one at a time until quit is signalled.
// The jobs channel is unbuffered, so any job it receives came from a
// sender that is still waiting on errc.
func (s *Store) worker() {
	defer close(s.done)
	for {
		select {
		case j := <-s.jobs:
			j.errc <- j.fn()
		case <-s.quit:
			return
		}
	}
}

// run submits fn to the worker queue and waits for it to finish. Calls are
// synchronous from the caller's perspective. Senders never close or race
// the jobs channel; shutdown is signalled through quit instead, so a call
// that loses the race with Close gets ErrClosed rather than a panic.
func (s *Store) run(fn func() error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	j := job{fn: fn, errc: make(chan error, 1)}
	select {
	case s.jobs <- j:
		return <-j.errc
	case <-s.quit:
		return ErrClosed
	}
}

// Close stops the worker and closes the database. Writers caught mid-call
// get ErrClosed. Performs a WAL checkpoint so all changes are persisted.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()

	close(s.quit)
	<-s.done

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Subscribe returns a channel that receives a signal after every committed
// write, plus a cancel function. Consumers re-query on signal; signals
// coalesce if the consumer is slow. Cancel is idempotent.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan struct{}, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
	return ch, cancel
}

// notify signals all subscribers that the store changed.
func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// initSchema creates tables and indexes. Idempotent.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		remote_key TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		group_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		priority TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		is_completed INTEGER NOT NULL DEFAULT 0,
		reward_claimed INTEGER NOT NULL DEFAULT 0,

		-- Millisecond timestamps, matching the wire format
		deadline INTEGER,
		created_at INTEGER NOT NULL,
		completed_at INTEGER,

		-- Sync shadow fields
		pending_sync INTEGER NOT NULL DEFAULT 0,
		pending_delete INTEGER NOT NULL DEFAULT 0,
		last_synced_exists INTEGER NOT NULL DEFAULT 0,
		last_synced_completed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS wallet (
		owner_id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0,
		pending_delta INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_group ON tasks(group_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(is_completed);
	CREATE INDEX IF NOT EXISTS idx_tasks_deadline ON tasks(deadline);
	CREATE INDEX IF NOT EXISTS idx_tasks_pending
	    ON tasks(pending_sync) WHERE pending_sync = 1;
	`

	return s.run(func() error {
		if _, err := s.conn.Exec(schema); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		return nil
	})
}

// timeToNullInt converts an optional time to nullable millisecond storage.
func timeToNullInt(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

// nullIntToTime converts nullable millisecond storage back to a time pointer.
func nullIntToTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64)
	return &t
}
