package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agent-hud/hub/protocol"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS agents (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	status        TEXT NOT NULL,
	connected_at  TEXT NOT NULL,
	last_activity TEXT NOT NULL,
	metadata      TEXT
);

CREATE TABLE IF NOT EXISTS agent_messages (
	id           TEXT PRIMARY KEY,
	agent_id     TEXT NOT NULL,
	message_type TEXT NOT NULL,
	payload      TEXT,
	timestamp    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_messages_timestamp ON agent_messages(timestamp);

CREATE TABLE IF NOT EXISTS human_requests (
	id              TEXT PRIMARY KEY,
	agent_id        TEXT NOT NULL,
	agent_name      TEXT NOT NULL,
	request_type    TEXT NOT NULL,
	message         TEXT NOT NULL,
	options         TEXT NOT NULL,
	context         TEXT,
	timeout_seconds INTEGER NOT NULL,
	timestamp       TEXT NOT NULL,
	status          TEXT NOT NULL,
	priority        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_human_requests_timestamp ON human_requests(timestamp);

CREATE TABLE IF NOT EXISTS human_responses (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id         TEXT NOT NULL,
	response           TEXT NOT NULL,
	additional_context TEXT,
	responded_by       TEXT NOT NULL,
	timestamp          TEXT NOT NULL
);
`

// SQLite is the default storage backend, suitable for single-process
// local use.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a SQLite database at the given path.
// An empty or ":memory:" DSN yields a shared in-memory database.
func NewSQLite(dsn string) (*SQLite, error) {
	if dsn == "" || dsn == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The modernc driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent hub traffic.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullRaw(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func rawFromNull(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func (s *SQLite) SaveAgent(ctx context.Context, a *protocol.AgentProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO agents (id, name, status, connected_at, last_activity, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, string(a.Status), encodeTime(a.ConnectedAt), encodeTime(a.LastActivity), nullRaw(a.Metadata))
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

func (s *SQLite) SaveMessage(ctx context.Context, m *protocol.AgentMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO agent_messages (id, agent_id, message_type, payload, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.AgentID, m.MessageType, nullRaw(m.Payload), encodeTime(m.Timestamp))
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (s *SQLite) SaveHumanRequest(ctx context.Context, r *protocol.HumanInputRequest) error {
	options, err := json.Marshal(r.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO human_requests
			(id, agent_id, agent_name, request_type, message, options, context,
			 timeout_seconds, timestamp, status, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AgentID, r.AgentName, string(r.Type), r.Message, string(options),
		nullRaw(r.Context), r.TimeoutSeconds, encodeTime(r.CreatedAt),
		string(r.Status), string(r.Priority))
	if err != nil {
		return fmt.Errorf("save human request: %w", err)
	}
	return nil
}

func (s *SQLite) SaveHumanResponse(ctx context.Context, r *protocol.HumanResponse) error {
	var additional sql.NullString
	if r.AdditionalContext != "" {
		additional = sql.NullString{String: r.AdditionalContext, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO human_responses (request_id, response, additional_context, responded_by, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		r.RequestID, r.Response, additional, r.RespondedBy, encodeTime(r.Timestamp))
	if err != nil {
		return fmt.Errorf("save human response: %w", err)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}

func (s *SQLite) RecentAgents(ctx context.Context, limit int) ([]protocol.AgentProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, connected_at, last_activity, metadata
		FROM agents ORDER BY last_activity DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var out []protocol.AgentProfile
	for rows.Next() {
		var a protocol.AgentProfile
		var status, connectedAt, lastActivity string
		var metadata sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &status, &connectedAt, &lastActivity, &metadata); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.Status = protocol.AgentStatus(status)
		if a.ConnectedAt, err = decodeTime(connectedAt); err != nil {
			return nil, err
		}
		if a.LastActivity, err = decodeTime(lastActivity); err != nil {
			return nil, err
		}
		a.Metadata = rawFromNull(metadata)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLite) RecentMessages(ctx context.Context, limit int) ([]protocol.AgentMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, message_type, payload, timestamp
		FROM agent_messages ORDER BY timestamp DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []protocol.AgentMessage
	for rows.Next() {
		var m protocol.AgentMessage
		var payload sql.NullString
		var ts string
		if err := rows.Scan(&m.ID, &m.AgentID, &m.MessageType, &payload, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Payload = rawFromNull(payload)
		if m.Timestamp, err = decodeTime(ts); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLite) RecentRequests(ctx context.Context, limit int) ([]protocol.HumanInputRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, agent_name, request_type, message, options, context,
		       timeout_seconds, timestamp, status, priority
		FROM human_requests ORDER BY timestamp DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query human requests: %w", err)
	}
	defer rows.Close()

	var out []protocol.HumanInputRequest
	for rows.Next() {
		var r protocol.HumanInputRequest
		var reqType, options, status, priority, ts string
		var reqContext sql.NullString
		if err := rows.Scan(&r.ID, &r.AgentID, &r.AgentName, &reqType, &r.Message,
			&options, &reqContext, &r.TimeoutSeconds, &ts, &status, &priority); err != nil {
			return nil, fmt.Errorf("scan human request: %w", err)
		}
		r.Type = protocol.RequestType(reqType)
		if err := json.Unmarshal([]byte(options), &r.Options); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
		r.Context = rawFromNull(reqContext)
		if r.CreatedAt, err = decodeTime(ts); err != nil {
			return nil, err
		}
		r.Status = protocol.RequestStatus(status)
		r.Priority = protocol.Priority(priority)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := encodeTime(time.Now().AddDate(0, 0, -days))
	var total int64
	for _, stmt := range []string{
		`DELETE FROM agent_messages WHERE timestamp < ?`,
		`DELETE FROM human_responses WHERE timestamp < ?`,
		`DELETE FROM human_requests WHERE timestamp < ?`,
		`DELETE FROM agents WHERE last_activity < ?`,
	} {
		res, err := s.db.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			return total, fmt.Errorf("purge: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
