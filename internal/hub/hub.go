// Package hub provides a self-hostable replica server for the sync engine.
//
// The hub holds the authoritative task collections, group counters, and coin
// balances, and speaks the websocket protocol from the remote package:
// request/result frames for mutations, pushed full-collection snapshot
// frames for subscribed owners on every change. It stands in for a managed
// backend so the engine can run end-to-end.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/overcooked/overcooked/internal/remote"
)

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default: ":7423").
	Addr string

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:   ":7423",
		Logger: log.New(os.Stderr, "[hub] ", log.LstdFlags),
	}
}

// Server accepts websocket clients and serves the replica protocol.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	mem      *remote.Memory
	logger   *log.Logger

	clientsMu sync.Mutex
	clients   map[*client]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// client is one connected websocket peer. Outgoing frames are serialized
// through the out channel.
type client struct {
	conn    *websocket.Conn
	out     chan []byte
	cancels []func()

	mu     sync.Mutex
	closed bool
}

// NewServer creates a hub backed by a fresh in-memory replica.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[hub] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    config.Addr,
		mem:     remote.NewMemory(),
		logger:  config.Logger,
		clients: make(map[*client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Replica exposes the backing store, for tests that seed or inspect state.
func (s *Server) Replica() *remote.Memory {
	return s.mem
}

// Addr returns the bound listen address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Start begins listening. Non-blocking; use Stop to shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/sync", s.handleSync)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 0, // websocket connections are long-lived
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Hub listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the hub down.
func (s *Server) Stop() error {
	s.logger.Println("Stopping hub")
	s.cancel()

	s.clientsMu.Lock()
	for c := range s.clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, c)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	s.logger.Println("Hub stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// handleSync upgrades to websocket and serves the replica protocol for the
// lifetime of the connection.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // local hub, no origin policy
	})
	if err != nil {
		s.logger.Printf("WebSocket accept failed: %v", err)
		return
	}

	c := &client{conn: conn, out: make(chan []byte, 64)}

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()
	s.logger.Printf("Client connected from %s", r.RemoteAddr)

	s.wg.Add(1)
	go s.writeLoop(c)

	s.readLoop(c)
	s.dropClient(c)
}

// writeLoop serializes outgoing frames for one client.
func (s *Server) writeLoop(c *client) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case data, ok := <-c.out:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.logger.Printf("Write failed, dropping client: %v", err)
				return
			}
		}
	}
}

// readLoop processes request frames until the connection dies.
func (s *Server) readLoop(c *client) {
	for {
		_, data, err := c.conn.Read(s.ctx)
		if err != nil {
			return
		}

		var req remote.Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.logger.Printf("Discarding malformed request: %v", err)
			continue
		}

		s.handleRequest(c, req)
	}
}

// handleRequest executes one operation against the backing replica and
// queues the result frame.
func (s *Server) handleRequest(c *client, req remote.Request) {
	frame := remote.ServerFrame{Type: remote.FrameResult, ID: req.ID}

	switch req.Op {
	case remote.OpSetTask:
		if err := s.mem.SetTask(s.ctx, req.Owner, req.Key, req.Doc); err != nil {
			frame.Error = err.Error()
		}
	case remote.OpDeleteTask:
		if err := s.mem.DeleteTask(s.ctx, req.Owner, req.Key); err != nil {
			frame.Error = err.Error()
		}
	case remote.OpAddGroupCounts:
		if err := s.mem.AddGroupCounts(s.ctx, req.GroupID, req.TotalDelta, req.CompletedDelta); err != nil {
			frame.Error = err.Error()
		}
	case remote.OpAdjustBalance:
		balance, err := s.mem.AdjustBalance(s.ctx, req.Owner, req.Delta)
		if err != nil {
			frame.Error = err.Error()
		}
		frame.Balance = balance
	case remote.OpSubscribe:
		if err := s.subscribe(c, req.Owner); err != nil {
			frame.Error = err.Error()
		}
	case remote.OpPing:
		// Reachability check only.
	default:
		frame.Error = fmt.Sprintf("unknown op %q", req.Op)
	}

	s.send(c, frame)
}

// subscribe forwards the owner's snapshots from the backing replica to this
// client for the rest of the connection.
func (s *Server) subscribe(c *client, owner string) error {
	snaps, cancel, err := s.mem.Subscribe(s.ctx, owner)
	if err != nil {
		return err
	}
	c.cancels = append(c.cancels, cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for snap := range snaps {
			s.send(c, remote.ServerFrame{
				Type:  remote.FrameSnapshot,
				Owner: snap.Owner,
				Tasks: snap.Tasks,
			})
		}
	}()
	return nil
}

// send marshals and queues a frame; a full queue drops the client rather
// than blocking the hub.
func (s *Server) send(c *client, frame remote.ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Printf("Failed to marshal frame: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.out <- data:
	default:
		s.logger.Printf("Client send queue full, dropping connection")
		_ = c.conn.Close(websocket.StatusPolicyViolation, "too slow")
	}
}

// dropClient cleans up a disconnected client.
func (s *Server) dropClient(c *client) {
	s.clientsMu.Lock()
	if !s.clients[c] {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, c)
	s.clientsMu.Unlock()

	for _, cancel := range c.cancels {
		cancel()
	}
	c.mu.Lock()
	c.closed = true
	close(c.out)
	c.mu.Unlock()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Printf("Client disconnected")
}
