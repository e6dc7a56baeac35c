package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"govgate/pkg/logging"
)

// ErrStoreDisabled is returned by every read once the relational sink has
// been disabled. Callers get this single consistent error, never the
// underlying driver failure.
var ErrStoreDisabled = errors.New("telemetry store unavailable")

const writeQueueSize = 256

// Store is the best-effort relational sink backing the dashboard read
// interface. Writes are fire-and-forget through a bounded queue so they can
// never block or fail the dispatch path. The first write failure latches
// the store disabled permanently; there are no retries.
type Store struct {
	sqlDB    *sql.DB
	disabled atomic.Bool

	writes chan func(db *sql.DB) error
	done   chan struct{}
	wg     sync.WaitGroup
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    user       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS events (
    session_id  TEXT NOT NULL,
    seq         INTEGER NOT NULL,
    ts          INTEGER NOT NULL,
    kind        TEXT NOT NULL,
    op          TEXT NOT NULL DEFAULT '',
    args        TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    is_error    INTEGER NOT NULL DEFAULT 0,
    payload     TEXT NOT NULL DEFAULT '',
    err_message TEXT NOT NULL DEFAULT '',
    summary     TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (session_id, seq, kind)
);

CREATE TABLE IF NOT EXISTS messages (
    id             TEXT PRIMARY KEY,
    session_id     TEXT NOT NULL,
    checkpoint_seq INTEGER NOT NULL,
    ts             INTEGER NOT NULL,
    role           TEXT NOT NULL,
    content        TEXT NOT NULL
);
`

// OpenStore opens the SQLite sink at path and applies the schema. A failure
// here degrades the gateway to journal-only operation; the caller is
// expected to log and carry on with a nil store.
func OpenStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(4)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{
		sqlDB:  sqlDB,
		writes: make(chan func(db *sql.DB) error, writeQueueSize),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.runWriter()
	return s, nil
}

// Close stops the writer and closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	close(s.done)
	s.wg.Wait()
	return s.sqlDB.Close()
}

// Disabled reports whether the sink has been latched off. A nil store
// behaves as permanently disabled.
func (s *Store) Disabled() bool {
	return s == nil || s.disabled.Load()
}

// runWriter drains the write queue on a single goroutine. The sqlite pool
// is bounded, but because writes arrive through this one consumer they can
// never exhaust it from the dispatch path.
func (s *Store) runWriter() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case write := <-s.writes:
			// Writes queued before the latch flipped are still attempted;
			// submit stops new ones from entering once disabled.
			if err := write(s.sqlDB); err != nil {
				s.markDisabled(err)
			}
		}
	}
}

// markDisabled latches the sink off after its first failure.
func (s *Store) markDisabled(err error) {
	if s.disabled.CompareAndSwap(false, true) {
		logging.Warn("Telemetry", "Relational sink disabled after write failure: %v", err)
	}
}

// submit enqueues a write without ever blocking. Writes are dropped when
// the sink is disabled or the queue is full; the journal remains the source
// of truth either way.
func (s *Store) submit(write func(db *sql.DB) error) {
	if s.Disabled() {
		return
	}
	select {
	case s.writes <- write:
	default:
		logging.Debug("Telemetry", "Store write queue full, dropping record")
	}
}

// EnqueueSession upserts the session row.
func (s *Store) EnqueueSession(session Session) {
	s.submit(func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO sessions (id, created_at, user) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			session.ID, toMillis(session.CreatedAt), session.User,
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// EnqueueEvent writes one call/result/checkpoint row.
func (s *Store) EnqueueEvent(record Record) {
	s.submit(func(db *sql.DB) error {
		var args string
		if record.Args != nil {
			encoded, err := json.Marshal(record.Args)
			if err != nil {
				// Arguments that cannot be encoded are recorded without
				// detail rather than lost.
				args = fmt.Sprintf("{\"encodeError\":%q}", err.Error())
			} else {
				args = string(encoded)
			}
		}
		_, err := db.Exec(
			`INSERT INTO events (session_id, seq, ts, kind, op, args, duration_ms, is_error, payload, err_message, summary)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.SessionID, record.Seq, toMillis(record.Timestamp), record.Kind,
			record.Operation, args, record.DurationMs, boolToInt(record.IsError),
			record.Payload, record.ErrMessage, record.Summary,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return nil
	})
}

// EnqueueMessages attaches checkpoint message turns to a session.
func (s *Store) EnqueueMessages(sessionID string, checkpointSeq int64, messages []Message) {
	if len(messages) == 0 {
		return
	}
	now := time.Now()
	s.submit(func(db *sql.DB) error {
		for _, msg := range messages {
			_, err := db.Exec(
				`INSERT INTO messages (id, session_id, checkpoint_seq, ts, role, content)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				uuid.New().String(), sessionID, checkpointSeq, toMillis(now), msg.Role, msg.Content,
			)
			if err != nil {
				return fmt.Errorf("insert message: %w", err)
			}
		}
		return nil
	})
}

// InsertMessages is the synchronous ingestion path used by the dashboard.
func (s *Store) InsertMessages(ctx context.Context, sessionID string, messages []Message) error {
	if s.Disabled() {
		return ErrStoreDisabled
	}
	now := time.Now()
	for _, msg := range messages {
		_, err := s.sqlDB.ExecContext(ctx,
			`INSERT INTO messages (id, session_id, checkpoint_seq, ts, role, content)
			 VALUES (?, ?, 0, ?, ?, ?)`,
			uuid.New().String(), sessionID, toMillis(now), msg.Role, msg.Content,
		)
		if err != nil {
			s.markDisabled(err)
			return ErrStoreDisabled
		}
	}
	return nil
}

// ListSessions returns one keyset-paginated page of sessions ordered by id.
func (s *Store) ListSessions(ctx context.Context, pageSize int, pageToken string) (SessionPage, error) {
	if s.Disabled() {
		return SessionPage{}, ErrStoreDisabled
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, created_at, user FROM sessions
		 WHERE id > ? ORDER BY id ASC LIMIT ?`,
		pageToken, pageSize+1,
	)
	if err != nil {
		s.markDisabled(err)
		return SessionPage{}, ErrStoreDisabled
	}
	defer rows.Close()

	page := SessionPage{Sessions: make([]Session, 0, pageSize)}
	for rows.Next() {
		var (
			session   Session
			createdAt int64
		)
		if err := rows.Scan(&session.ID, &createdAt, &session.User); err != nil {
			return SessionPage{}, ErrStoreDisabled
		}
		session.CreatedAt = fromMillis(createdAt)
		session.Enabled = true
		page.Sessions = append(page.Sessions, session)
	}
	if err := rows.Err(); err != nil {
		return SessionPage{}, ErrStoreDisabled
	}
	if len(page.Sessions) > pageSize {
		page.NextPageToken = page.Sessions[pageSize-1].ID
		page.Sessions = page.Sessions[:pageSize]
	}
	return page, nil
}

// Timeline returns the full event timeline for one session in sequence
// order. Call and result rows for the same sequence number are adjacent.
func (s *Store) Timeline(ctx context.Context, sessionID string) ([]TimelineEntry, error) {
	if s.Disabled() {
		return nil, ErrStoreDisabled
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT seq, ts, kind, op, args, duration_ms, is_error, payload, err_message, summary
		 FROM events WHERE session_id = ?
		 ORDER BY seq ASC, CASE kind WHEN 'call' THEN 0 ELSE 1 END ASC`,
		sessionID,
	)
	if err != nil {
		s.markDisabled(err)
		return nil, ErrStoreDisabled
	}
	defer rows.Close()

	var timeline []TimelineEntry
	for rows.Next() {
		var (
			entry      TimelineEntry
			ts         int64
			isError    int
			args       string
			payload    string
			errMessage string
			summary    string
		)
		if err := rows.Scan(&entry.Seq, &ts, &entry.Kind, &entry.Operation,
			&args, &entry.DurationMs, &isError, &payload, &errMessage, &summary); err != nil {
			return nil, ErrStoreDisabled
		}
		entry.Timestamp = fromMillis(ts)
		entry.IsError = isError != 0
		switch entry.Kind {
		case KindCall:
			entry.Detail = args
		case KindResult:
			entry.Detail = payload
			if entry.IsError && errMessage != "" {
				entry.Detail = errMessage
			}
		case KindCheckpoint:
			entry.Detail = summary
		}
		timeline = append(timeline, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrStoreDisabled
	}
	return timeline, nil
}

// Flush waits until every write queued so far has been attempted.
// Intended for tests and shutdown.
func (s *Store) Flush() {
	if s == nil {
		return
	}
	done := make(chan struct{})
	select {
	case s.writes <- func(db *sql.DB) error {
		close(done)
		return nil
	}:
		<-done
	default:
		// Queue full; the barrier itself was dropped, matching write
		// semantics.
	}
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
