package backend

import (
	"context"
	"time"

	"bilancio/internal/adapters"
	"bilancio/internal/ports"
)

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// UsersResult is a ready user directory.
type UsersResult struct {
	Users ports.UserLister
	// Cached is the caching layer in front of Users, nil when caching is off.
	Cached *adapters.CachedUsers
	// Ready reports whether the underlying store is reachable.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// EventsResult is a ready event transport. Consumer is nil for "none".
type EventsResult struct {
	Publisher ports.EventPublisher
	Consumer  ports.EventConsumer
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateUsers(ctx context.Context, config Config) (*UsersResult, error)
	CreateEvents(ctx context.Context, config Config) (*EventsResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Users         UsersBackendType
	UsersCacheTTL time.Duration

	// SQLite specific
	SQLiteDBPath string
	// Postgres specific
	DatabaseURL string

	// Google Sheets specific
	GoogleSpreadsheetID   string
	GoogleUsersSheetName  string
	GoogleCredentialsJSON string
	GoogleCredentialsFile string

	Events EventsBackendType

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	NATSURL     string
	NATSSubject string
}

// UsersBackendType names where the user directory lives.
type UsersBackendType string

const (
	MemoryUsers   UsersBackendType = "memory"
	SQLiteUsers   UsersBackendType = "sqlite"
	PostgresUsers UsersBackendType = "postgres"
	SheetsUsers   UsersBackendType = "sheets"
)

func (bt UsersBackendType) String() string { return string(bt) }

func (bt UsersBackendType) IsValid() bool {
	switch bt {
	case MemoryUsers, SQLiteUsers, PostgresUsers, SheetsUsers:
		return true
	default:
		return false
	}
}

// EventsBackendType names the transport for transaction events.
type EventsBackendType string

const (
	NoEvents   EventsBackendType = "none"
	AMQPEvents EventsBackendType = "amqp"
	NATSEvents EventsBackendType = "nats"
)

func (bt EventsBackendType) String() string { return string(bt) }

func (bt EventsBackendType) IsValid() bool {
	switch bt {
	case NoEvents, AMQPEvents, NATSEvents:
		return true
	default:
		return false
	}
}
