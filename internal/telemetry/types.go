package telemetry

import "time"

// Event kinds written to both sinks.
const (
	KindCall       = "call"
	KindResult     = "result"
	KindCheckpoint = "checkpoint"
)

// Session is the unit of attribution for telemetry events.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	User      string    `json:"user,omitempty"`
	// Enabled gates both sinks. Sequence numbers are still issued for
	// disabled sessions so re-enabling cannot produce duplicates.
	Enabled bool `json:"enabled"`
}

// Record is one newline-delimited journal entry. Kind-specific fields are
// omitted when empty.
type Record struct {
	SessionID string    `json:"session"`
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`

	// Call
	Operation string                 `json:"op,omitempty"`
	Args      map[string]interface{} `json:"args,omitempty"`

	// Result
	DurationMs int64  `json:"durationMs,omitempty"`
	IsError    bool   `json:"error,omitempty"`
	Payload    string `json:"payload,omitempty"`
	ErrMessage string `json:"errMessage,omitempty"`

	// Checkpoint
	Summary   string   `json:"summary,omitempty"`
	RecentOps []string `json:"recentOps,omitempty"`
}

// Message is one structured conversation turn attached to a checkpoint.
// Messages are persisted to the relational store only.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CheckpointResult reports what a successful checkpoint recorded.
type CheckpointResult struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	RecentOps []string  `json:"recentOps"`
}

// TimelineEntry is one event as read back from the relational store.
type TimelineEntry struct {
	Seq        int64     `json:"seq"`
	Timestamp  time.Time `json:"timestamp"`
	Kind       string    `json:"kind"`
	Operation  string    `json:"op,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`
	IsError    bool      `json:"error,omitempty"`
}

// SessionPage is one keyset-paginated page of sessions.
type SessionPage struct {
	Sessions      []Session `json:"sessions"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}
