// Package telemetry records call, result, and checkpoint events for agent
// sessions into two sinks with different durability guarantees: a required
// append-only journal and a best-effort relational store. The journal is
// never skipped; the store degrades to a no-op after its first failure.
package telemetry

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"govgate/pkg/logging"
)

// Operations between reminders. After this many non-checkpoint operations
// the next successful result carries a checkpoint hint, exactly once.
const remindInterval = 8

// recentOpsLimit caps the operation names reported back by a checkpoint.
const recentOpsLimit = 20

// maxPayloadLen caps stored result payloads.
const maxPayloadLen = 4096

const truncationSuffix = "...[truncated]"

// Recorder is the session telemetry front door used by the dispatcher.
type Recorder struct {
	journal *Journal
	store   *Store

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// sessionState holds per-session counters. Its mutex makes sequence
// issuance linearizable: no two events in one session can ever receive the
// same number, however many operations are in flight.
type sessionState struct {
	mu                 sync.Mutex
	session            Session
	seq                int64
	opsSinceCheckpoint int
	remindPending      bool
	recentOps          []string
}

// NewRecorder creates a recorder over the required journal and an optional
// relational store (nil means permanently unavailable).
func NewRecorder(journal *Journal, store *Store) *Recorder {
	return &Recorder{
		journal:  journal,
		store:    store,
		sessions: make(map[string]*sessionState),
	}
}

// StartSession explicitly creates a session. Operations on unknown session
// ids create one implicitly, so calling this is optional.
func (r *Recorder) StartSession(id, user string, enabled bool) Session {
	if id == "" {
		id = uuid.New().String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if state, exists := r.sessions[id]; exists {
		return state.session
	}

	session := Session{ID: id, CreatedAt: time.Now().UTC(), User: user, Enabled: enabled}
	r.sessions[id] = &sessionState{session: session}
	if enabled {
		r.store.EnqueueSession(session)
	}
	logging.Debug("Telemetry", "Started session %s (user=%s, enabled=%v)", id, user, enabled)
	return session
}

func (r *Recorder) state(sessionID string) *sessionState {
	r.mu.RLock()
	state, exists := r.sessions[sessionID]
	r.mu.RUnlock()
	if exists {
		return state
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if state, exists = r.sessions[sessionID]; exists {
		return state
	}
	session := Session{ID: sessionID, CreatedAt: time.Now().UTC(), Enabled: true}
	state = &sessionState{session: session}
	r.sessions[sessionID] = state
	r.store.EnqueueSession(session)
	return state
}

// RecordCall records an operation invocation and returns its sequence
// number. Argument values under sensitive keys are redacted before either
// sink sees them. The journal write happens under the session lock so
// journal lines for one session appear in issuance order.
func (r *Recorder) RecordCall(sessionID, opName string, rawArgs map[string]interface{}) (int64, error) {
	state := r.state(sessionID)

	state.mu.Lock()
	defer state.mu.Unlock()

	state.seq++
	state.opsSinceCheckpoint++
	if state.opsSinceCheckpoint%remindInterval == 0 {
		state.remindPending = true
	}
	state.recentOps = append(state.recentOps, opName)
	if len(state.recentOps) > recentOpsLimit {
		state.recentOps = state.recentOps[len(state.recentOps)-recentOpsLimit:]
	}

	if !state.session.Enabled {
		return state.seq, nil
	}

	record := Record{
		SessionID: sessionID,
		Seq:       state.seq,
		Timestamp: time.Now().UTC(),
		Kind:      KindCall,
		Operation: opName,
		Args:      RedactArgs(rawArgs),
	}

	r.store.EnqueueEvent(record)
	if err := r.journal.Append(record); err != nil {
		return state.seq, fmt.Errorf("record call: %w", err)
	}
	return state.seq, nil
}

// RecordResult pairs with a call by sequence number. It never fails: sink
// errors are logged, not returned.
func (r *Recorder) RecordResult(sessionID string, seq int64, opName string, duration time.Duration, isError bool, payload, errMessage string) {
	state := r.state(sessionID)

	state.mu.Lock()
	enabled := state.session.Enabled
	state.mu.Unlock()
	if !enabled {
		return
	}

	record := Record{
		SessionID:  sessionID,
		Seq:        seq,
		Timestamp:  time.Now().UTC(),
		Kind:       KindResult,
		Operation:  opName,
		DurationMs: duration.Milliseconds(),
		IsError:    isError,
		Payload:    truncatePayload(payload),
		ErrMessage: errMessage,
	}

	r.store.EnqueueEvent(record)
	if err := r.journal.Append(record); err != nil {
		logging.Error("Telemetry", err, "Failed to journal result for %s seq %d", sessionID, seq)
	}
}

// RecordCheckpoint records a progress summary. An empty or whitespace
// summary fails validation and leaves the reminder counter untouched. On
// success the reminder counter resets to zero.
func (r *Recorder) RecordCheckpoint(sessionID, summary string, messages []Message) (CheckpointResult, error) {
	if strings.TrimSpace(summary) == "" {
		return CheckpointResult{}, fmt.Errorf("checkpoint summary must not be empty")
	}

	state := r.state(sessionID)

	state.mu.Lock()
	defer state.mu.Unlock()

	state.seq++
	state.opsSinceCheckpoint = 0
	state.remindPending = false

	recent := make([]string, len(state.recentOps))
	copy(recent, state.recentOps)

	result := CheckpointResult{
		Seq:       state.seq,
		Timestamp: time.Now().UTC(),
		RecentOps: recent,
	}

	if !state.session.Enabled {
		return result, nil
	}

	record := Record{
		SessionID: sessionID,
		Seq:       state.seq,
		Timestamp: result.Timestamp,
		Kind:      KindCheckpoint,
		Summary:   summary,
		RecentOps: recent,
	}

	r.store.EnqueueEvent(record)
	r.store.EnqueueMessages(sessionID, state.seq, messages)
	if err := r.journal.Append(record); err != nil {
		return CheckpointResult{}, fmt.Errorf("record checkpoint: %w", err)
	}
	return result, nil
}

// ShouldRemind reports, exactly once, that remindInterval non-checkpoint
// operations have passed since the last checkpoint. Subsequent calls return
// false until the interval elapses again.
func (r *Recorder) ShouldRemind(sessionID string) bool {
	state := r.state(sessionID)

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.remindPending {
		state.remindPending = false
		return true
	}
	return false
}

// Store exposes the relational sink for the dashboard read surface.
func (r *Recorder) Store() *Store {
	return r.store
}

func truncatePayload(payload string) string {
	if len(payload) <= maxPayloadLen {
		return payload
	}
	cut := maxPayloadLen - len(truncationSuffix)
	// Back off to a rune boundary so the cut never leaves invalid UTF-8.
	for cut > 0 && !utf8.RuneStart(payload[cut]) {
		cut--
	}
	return payload[:cut] + truncationSuffix
}
