package remote

// Wire protocol between the websocket client and the replica hub. Requests
// flow client to hub; the hub answers each request with a result frame and
// pushes snapshot frames for subscribed owners on every change.

// Op names for request frames.
const (
	OpSetTask        = "set_task"
	OpDeleteTask     = "delete_task"
	OpAddGroupCounts = "add_group_counts"
	OpAdjustBalance  = "adjust_balance"
	OpSubscribe      = "subscribe"
	OpPing           = "ping"
)

// Frame types for server frames.
const (
	FrameResult   = "result"
	FrameSnapshot = "snapshot"
)

// Error codes carried on result frames.
const (
	CodePermission = "permission"
)

// Request is one client operation.
type Request struct {
	Op    string   `json:"op"`
	ID    int64    `json:"id"`
	Owner string   `json:"owner,omitempty"`
	Key   string   `json:"key,omitempty"`
	Doc   Document `json:"doc,omitempty"`

	GroupID        string `json:"group_id,omitempty"`
	TotalDelta     int64  `json:"total_delta,omitempty"`
	CompletedDelta int64  `json:"completed_delta,omitempty"`

	Delta int64 `json:"delta,omitempty"`
}

// ServerFrame is one hub-to-client message: either the result of a request
// (matched by ID) or a pushed snapshot.
type ServerFrame struct {
	Type string `json:"type"`

	// Result fields
	ID      int64  `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Balance int64  `json:"balance,omitempty"`

	// Snapshot fields
	Owner string              `json:"owner,omitempty"`
	Tasks map[string]Document `json:"tasks,omitempty"`
}
