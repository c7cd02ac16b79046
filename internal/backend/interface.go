package backend

import (
	"context"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

// Backend is the durable storage behind the ledger plus a health check.
type Backend interface {
	ledger.Storage
	Ping(ctx context.Context) error
}

// AlertHistory records emitted alerts and reads them back newest first.
type AlertHistory interface {
	Notify(ctx context.Context, a core.Alert) error
	RecentAlerts(ctx context.Context, limit int) ([]core.Alert, error)
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function.
// History is nil for backends that keep no alert history.
type BackendResult struct {
	Backend Backend
	History AlertHistory
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// Memory specific
	SeedFile string

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	DatabaseURL string

	// Redis specific
	RedisURL       string
	RedisPassword  string
	RedisKeyPrefix string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	RedisBackend    BackendType = "redis"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend, RedisBackend:
		return true
	default:
		return false
	}
}
