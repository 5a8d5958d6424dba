package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Client is a Replica backed by a single websocket connection to a replica
// hub. It never reconnects: once the connection dies every in-flight and
// subsequent operation surfaces ErrOffline. Long-lived callers should use
// Redialer, which wraps Dial and replaces dead clients transparently.
type Client struct {
	conn   *websocket.Conn
	logger *log.Logger

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan ServerFrame
	subs    map[string][]chan Snapshot
	closed  bool

	done chan struct{}
}

// Dial connects to a replica hub at url (ws://host:port/sync).
func Dial(ctx context.Context, url string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrOffline, url, err)
	}

	c := &Client{
		conn:    conn,
		logger:  logger,
		pending: make(map[int64]chan ServerFrame),
		subs:    make(map[string][]chan Snapshot),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close tears the connection down. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close(websocket.StatusNormalClosure, "")
	<-c.done
	return err
}

// Closed reports whether the connection has died or been closed.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readLoop dispatches server frames to waiting calls and subscribers.
func (c *Client) readLoop() {
	defer close(c.done)
	defer c.failAll()

	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			return
		}

		var frame ServerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Printf("Discarding malformed frame: %v", err)
			continue
		}

		switch frame.Type {
		case FrameResult:
			c.mu.Lock()
			ch := c.pending[frame.ID]
			delete(c.pending, frame.ID)
			c.mu.Unlock()
			if ch != nil {
				ch <- frame
			}
		case FrameSnapshot:
			snap := Snapshot{Owner: frame.Owner, Tasks: frame.Tasks}
			if snap.Tasks == nil {
				snap.Tasks = make(map[string]Document)
			}
			c.mu.Lock()
			for _, ch := range c.subs[frame.Owner] {
				select {
				case ch <- snap:
				default:
				}
			}
			c.mu.Unlock()
		default:
			c.logger.Printf("Unknown frame type %q", frame.Type)
		}
	}
}

// failAll unblocks pending calls and closes subscriber channels after the
// connection dies.
func (c *Client) failAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	for owner, chans := range c.subs {
		for _, ch := range chans {
			close(ch)
		}
		delete(c.subs, owner)
	}
}

// call sends a request and waits for its result frame.
func (c *Client) call(ctx context.Context, req Request) (ServerFrame, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ServerFrame{}, ErrOffline
	}
	c.nextID++
	req.ID = c.nextID
	ch := make(chan ServerFrame, 1)
	c.pending[req.ID] = ch
	c.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return ServerFrame{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return ServerFrame{}, fmt.Errorf("%w: write: %v", ErrOffline, err)
	}

	select {
	case frame, ok := <-ch:
		if !ok {
			return ServerFrame{}, ErrOffline
		}
		if frame.Error != "" {
			if frame.Code == CodePermission {
				return frame, fmt.Errorf("%w: %s", ErrPermission, frame.Error)
			}
			return frame, fmt.Errorf("remote: %s: %s", req.Op, frame.Error)
		}
		return frame, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return ServerFrame{}, fmt.Errorf("%w: %v", ErrOffline, ctx.Err())
	}
}

func (c *Client) SetTask(ctx context.Context, owner, key string, doc Document) error {
	_, err := c.call(ctx, Request{Op: OpSetTask, Owner: owner, Key: key, Doc: doc})
	return err
}

func (c *Client) DeleteTask(ctx context.Context, owner, key string) error {
	_, err := c.call(ctx, Request{Op: OpDeleteTask, Owner: owner, Key: key})
	return err
}

func (c *Client) AddGroupCounts(ctx context.Context, groupID string, totalDelta, completedDelta int64) error {
	_, err := c.call(ctx, Request{
		Op:             OpAddGroupCounts,
		GroupID:        groupID,
		TotalDelta:     totalDelta,
		CompletedDelta: completedDelta,
	})
	return err
}

func (c *Client) AdjustBalance(ctx context.Context, owner string, delta int64) (int64, error) {
	frame, err := c.call(ctx, Request{Op: OpAdjustBalance, Owner: owner, Delta: delta})
	if err != nil {
		return 0, err
	}
	return frame.Balance, nil
}

func (c *Client) Subscribe(ctx context.Context, owner string) (<-chan Snapshot, func(), error) {
	ch := make(chan Snapshot, 16)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, nil, ErrOffline
	}
	c.subs[owner] = append(c.subs[owner], ch)
	c.mu.Unlock()

	if _, err := c.call(ctx, Request{Op: OpSubscribe, Owner: owner}); err != nil {
		c.removeSub(owner, ch)
		return nil, nil, err
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() { c.removeSub(owner, ch) })
	}
	return ch, cancel, nil
}

func (c *Client) removeSub(owner string, ch chan Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chans := c.subs[owner]
	for i, sc := range chans {
		if sc == ch {
			c.subs[owner] = append(chans[:i], chans[i+1:]...)
			close(ch)
			return
		}
	}
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, Request{Op: OpPing})
	return err
}
