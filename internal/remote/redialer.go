package remote

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
)

// Redialer is a Replica that survives connection loss. It lazily dials a
// Client on first use and dials a fresh one whenever the previous
// connection has died, so a single disconnect does not leave the process
// offline forever. Operations attempted while the hub is unreachable
// still return ErrOffline; the next operation retries the dial.
type Redialer struct {
	url    string
	logger *log.Logger

	mu     sync.Mutex
	client *Client
	closed bool
}

// NewRedialer wraps the hub at url (ws://host:port/sync). No connection is
// attempted until the first operation, so construction succeeds offline.
func NewRedialer(url string, logger *log.Logger) *Redialer {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Redialer{url: url, logger: logger}
}

// conn returns the live client, dialing a new one if the previous
// connection has died.
func (r *Redialer) conn(ctx context.Context) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrOffline
	}
	if r.client != nil && !r.client.Closed() {
		return r.client, nil
	}
	if r.client != nil {
		_ = r.client.Close()
		r.client = nil
	}

	c, err := Dial(ctx, r.url, r.logger)
	if err != nil {
		return nil, err
	}
	r.logger.Printf("Connected to hub at %s", r.url)
	r.client = c
	return c, nil
}

// drop discards c if it is still the current client. Called after an
// ErrOffline result so the next operation redials.
func (r *Redialer) drop(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == c {
		_ = c.Close()
		r.client = nil
	}
}

// Close tears down the current connection and stops future redials.
// Idempotent.
func (r *Redialer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.client != nil {
		err := r.client.Close()
		r.client = nil
		return err
	}
	return nil
}

func (r *Redialer) SetTask(ctx context.Context, owner, key string, doc Document) error {
	c, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if err := c.SetTask(ctx, owner, key, doc); err != nil {
		if errors.Is(err, ErrOffline) {
			r.drop(c)
		}
		return err
	}
	return nil
}

func (r *Redialer) DeleteTask(ctx context.Context, owner, key string) error {
	c, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if err := c.DeleteTask(ctx, owner, key); err != nil {
		if errors.Is(err, ErrOffline) {
			r.drop(c)
		}
		return err
	}
	return nil
}

func (r *Redialer) AddGroupCounts(ctx context.Context, groupID string, totalDelta, completedDelta int64) error {
	c, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if err := c.AddGroupCounts(ctx, groupID, totalDelta, completedDelta); err != nil {
		if errors.Is(err, ErrOffline) {
			r.drop(c)
		}
		return err
	}
	return nil
}

func (r *Redialer) AdjustBalance(ctx context.Context, owner string, delta int64) (int64, error) {
	c, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}
	balance, err := c.AdjustBalance(ctx, owner, delta)
	if err != nil {
		if errors.Is(err, ErrOffline) {
			r.drop(c)
		}
		return 0, err
	}
	return balance, nil
}

// Subscribe delegates to the current client. The snapshot channel closes
// when that connection dies; subscribers resubscribe through the Redialer,
// which dials the replacement connection.
func (r *Redialer) Subscribe(ctx context.Context, owner string) (<-chan Snapshot, func(), error) {
	c, err := r.conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	snaps, cancel, err := c.Subscribe(ctx, owner)
	if err != nil {
		if errors.Is(err, ErrOffline) {
			r.drop(c)
		}
		return nil, nil, err
	}
	return snaps, cancel, nil
}

func (r *Redialer) Ping(ctx context.Context) error {
	c, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if err := c.Ping(ctx); err != nil {
		if errors.Is(err, ErrOffline) {
			r.drop(c)
		}
		return err
	}
	return nil
}
