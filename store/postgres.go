package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/agent-hud/hub/protocol"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS agents (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	status        TEXT NOT NULL,
	connected_at  TIMESTAMPTZ NOT NULL,
	last_activity TIMESTAMPTZ NOT NULL,
	metadata      JSONB
);

CREATE TABLE IF NOT EXISTS agent_messages (
	id           TEXT PRIMARY KEY,
	agent_id     TEXT NOT NULL,
	message_type TEXT NOT NULL,
	payload      JSONB,
	timestamp    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_messages_timestamp ON agent_messages(timestamp);

CREATE TABLE IF NOT EXISTS human_requests (
	id              TEXT PRIMARY KEY,
	agent_id        TEXT NOT NULL,
	agent_name      TEXT NOT NULL,
	request_type    TEXT NOT NULL,
	message         TEXT NOT NULL,
	options         JSONB NOT NULL,
	context         JSONB,
	timeout_seconds INTEGER NOT NULL,
	timestamp       TIMESTAMPTZ NOT NULL,
	status          TEXT NOT NULL,
	priority        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_human_requests_timestamp ON human_requests(timestamp);

CREATE TABLE IF NOT EXISTS human_responses (
	id                 BIGSERIAL PRIMARY KEY,
	request_id         TEXT NOT NULL,
	response           TEXT NOT NULL,
	additional_context TEXT,
	responded_by       TEXT NOT NULL,
	timestamp          TIMESTAMPTZ NOT NULL
);
`

// Postgres backs the hub with a shared PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// NewPostgres connects using a pgx DSN and applies the schema.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) SaveAgent(ctx context.Context, a *protocol.AgentProfile) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, status, connected_at, last_activity, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			last_activity = EXCLUDED.last_activity,
			metadata = EXCLUDED.metadata`,
		a.ID, a.Name, string(a.Status), a.ConnectedAt, a.LastActivity, nullRaw(a.Metadata))
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

func (p *Postgres) SaveMessage(ctx context.Context, m *protocol.AgentMessage) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agent_messages (id, agent_id, message_type, payload, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		m.ID, m.AgentID, m.MessageType, nullRaw(m.Payload), m.Timestamp)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (p *Postgres) SaveHumanRequest(ctx context.Context, r *protocol.HumanInputRequest) error {
	options, err := json.Marshal(r.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO human_requests
			(id, agent_id, agent_name, request_type, message, options, context,
			 timeout_seconds, timestamp, status, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		r.ID, r.AgentID, r.AgentName, string(r.Type), r.Message, string(options),
		nullRaw(r.Context), r.TimeoutSeconds, r.CreatedAt, string(r.Status), string(r.Priority))
	if err != nil {
		return fmt.Errorf("save human request: %w", err)
	}
	return nil
}

func (p *Postgres) SaveHumanResponse(ctx context.Context, r *protocol.HumanResponse) error {
	var additional sql.NullString
	if r.AdditionalContext != "" {
		additional = sql.NullString{String: r.AdditionalContext, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO human_responses (request_id, response, additional_context, responded_by, timestamp)
		VALUES ($1, $2, $3, $4, $5)`,
		r.RequestID, r.Response, additional, r.RespondedBy, r.Timestamp)
	if err != nil {
		return fmt.Errorf("save human response: %w", err)
	}
	return nil
}

func (p *Postgres) RecentAgents(ctx context.Context, limit int) ([]protocol.AgentProfile, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, status, connected_at, last_activity, metadata
		FROM agents ORDER BY last_activity DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var out []protocol.AgentProfile
	for rows.Next() {
		var a protocol.AgentProfile
		var status string
		var metadata sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &status, &a.ConnectedAt, &a.LastActivity, &metadata); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.Status = protocol.AgentStatus(status)
		a.Metadata = rawFromNull(metadata)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) RecentMessages(ctx context.Context, limit int) ([]protocol.AgentMessage, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, agent_id, message_type, payload, timestamp
		FROM agent_messages ORDER BY timestamp DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []protocol.AgentMessage
	for rows.Next() {
		var m protocol.AgentMessage
		var payload sql.NullString
		if err := rows.Scan(&m.ID, &m.AgentID, &m.MessageType, &payload, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Payload = rawFromNull(payload)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) RecentRequests(ctx context.Context, limit int) ([]protocol.HumanInputRequest, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, agent_id, agent_name, request_type, message, options, context,
		       timeout_seconds, timestamp, status, priority
		FROM human_requests ORDER BY timestamp DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query human requests: %w", err)
	}
	defer rows.Close()

	var out []protocol.HumanInputRequest
	for rows.Next() {
		var r protocol.HumanInputRequest
		var reqType, options, status, priority string
		var reqContext sql.NullString
		if err := rows.Scan(&r.ID, &r.AgentID, &r.AgentName, &reqType, &r.Message,
			&options, &reqContext, &r.TimeoutSeconds, &r.CreatedAt, &status, &priority); err != nil {
			return nil, fmt.Errorf("scan human request: %w", err)
		}
		r.Type = protocol.RequestType(reqType)
		if err := json.Unmarshal([]byte(options), &r.Options); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
		r.Context = rawFromNull(reqContext)
		r.Status = protocol.RequestStatus(status)
		r.Priority = protocol.Priority(priority)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	var total int64
	for _, stmt := range []string{
		`DELETE FROM agent_messages WHERE timestamp < $1`,
		`DELETE FROM human_responses WHERE timestamp < $1`,
		`DELETE FROM human_requests WHERE timestamp < $1`,
		`DELETE FROM agents WHERE last_activity < $1`,
	} {
		res, err := p.db.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			return total, fmt.Errorf("purge: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
