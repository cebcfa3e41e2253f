// Package store persists hub activity so operator clients can recover
// history after a restart. All hub writes are best-effort: callers log
// failures and carry on, so implementations should fail fast rather
// than retry.
package store

import (
	"context"
	"fmt"

	"github.com/agent-hud/hub/protocol"
)

// Store is the persistence gateway backing the hub. Recent* queries
// return newest-first, capped at limit.
type Store interface {
	SaveAgent(ctx context.Context, a *protocol.AgentProfile) error
	SaveMessage(ctx context.Context, m *protocol.AgentMessage) error
	SaveHumanRequest(ctx context.Context, r *protocol.HumanInputRequest) error
	SaveHumanResponse(ctx context.Context, r *protocol.HumanResponse) error

	RecentAgents(ctx context.Context, limit int) ([]protocol.AgentProfile, error)
	RecentMessages(ctx context.Context, limit int) ([]protocol.AgentMessage, error)
	RecentRequests(ctx context.Context, limit int) ([]protocol.HumanInputRequest, error)

	// PurgeOlderThan deletes rows older than the retention window and
	// reports how many were removed.
	PurgeOlderThan(ctx context.Context, days int) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a storage backend.
type Config struct {
	Driver        string `json:"driver"` // "sqlite" or "postgres"
	DSN           string `json:"dsn"`
	RetentionDays int    `json:"retention_days"`
}

// New builds a Store from config.
func New(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
