package backend

import (
	"context"
	"fmt"

	"bilancio/internal/adapters"
	"bilancio/internal/amqp"
	"bilancio/internal/events"
	applog "bilancio/internal/log"
	natsbus "bilancio/internal/nats"
	"bilancio/internal/ports"
	gsheet "bilancio/internal/sheets/google"
	"bilancio/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Nop()
	}
	return &DefaultFactory{logger: logger.WithComponent(applog.ComponentBackend)}
}

// CreateUsers builds the user directory, wrapped in a cache when the
// configured TTL is positive.
func (f *DefaultFactory) CreateUsers(ctx context.Context, config Config) (*UsersResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		lister ports.UserLister
		ready  = func(context.Context) error { return nil }
		clean  CleanupFunc
	)
	switch config.Users {
	case SQLiteUsers, PostgresUsers:
		repo, err := f.openRepository(config)
		if err != nil {
			return nil, err
		}
		lister, ready, clean = repo, repo.Ping, repo.Close
	case SheetsUsers:
		sheet, err := gsheet.NewUserSheet(ctx, gsheet.Config{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			SheetName:       config.GoogleUsersSheetName,
			CredentialsJSON: config.GoogleCredentialsJSON,
			CredentialsFile: config.GoogleCredentialsFile,
		}, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		lister = sheet
	case MemoryUsers:
		lister = adapters.NewMemoryUsers(adapters.DemoUsers()...)
	default:
		return nil, fmt.Errorf("unsupported users backend: %s", config.Users)
	}

	result := &UsersResult{Users: lister, Ready: ready, Cleanup: clean}
	if config.UsersCacheTTL > 0 {
		result.Cached = adapters.NewCachedUsers(lister, config.UsersCacheTTL, f.logger)
		result.Users = result.Cached
	}

	f.logger.Info("Initialized users backend",
		applog.FieldBackend, config.Users.String(),
		"cache_ttl", config.UsersCacheTTL.String())
	return result, nil
}

func (f *DefaultFactory) openRepository(config Config) (*storage.UserRepository, error) {
	if config.Users == SQLiteUsers {
		repo, err := storage.NewSQLiteUserRepository(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		return repo, nil
	}
	repo, err := storage.NewPostgresUserRepository(config.DatabaseURL, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
	}
	return repo, nil
}

// CreateEvents connects the configured event transport.
func (f *DefaultFactory) CreateEvents(_ context.Context, config Config) (*EventsResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Events {
	case AMQPEvents:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		f.logger.Info("Initialized AMQP events",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
		return &EventsResult{Publisher: client, Consumer: client, Cleanup: client.Close}, nil
	case NATSEvents:
		client, err := natsbus.NewClient(config.NATSURL, config.NATSSubject, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize NATS client: %w", err)
		}
		f.logger.Info("Initialized NATS events", "subject", config.NATSSubject)
		return &EventsResult{Publisher: client, Consumer: client, Cleanup: client.Close}, nil
	case NoEvents:
		return &EventsResult{Publisher: events.Nop{}}, nil
	default:
		return nil, fmt.Errorf("unsupported events backend: %s", config.Events)
	}
}
