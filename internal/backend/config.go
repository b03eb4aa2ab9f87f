package backend

import (
	"fmt"

	"bilancio/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	users := UsersBackendType(appConfig.UsersBackend)
	if !users.IsValid() {
		return Config{}, fmt.Errorf("invalid users backend in config: %s", appConfig.UsersBackend)
	}
	events := EventsBackendType(appConfig.EventsBackend)
	if !events.IsValid() {
		return Config{}, fmt.Errorf("invalid events backend in config: %s", appConfig.EventsBackend)
	}

	return Config{
		Users:         users,
		UsersCacheTTL: appConfig.UsersCacheTTL,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,

		GoogleSpreadsheetID:   appConfig.GoogleSpreadsheetID,
		GoogleUsersSheetName:  appConfig.GoogleUsersSheetName,
		GoogleCredentialsJSON: appConfig.GoogleCredentialsJSON,
		GoogleCredentialsFile: appConfig.GoogleCredentialsFile,

		Events:       events,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
		NATSURL:      appConfig.NATSURL,
		NATSSubject:  appConfig.NATSSubject,
	}, nil
}

// Validate checks the settings the selected backends need.
func (c Config) Validate() error {
	if !c.Users.IsValid() {
		return fmt.Errorf("invalid users backend: %s", c.Users)
	}
	if !c.Events.IsValid() {
		return fmt.Errorf("invalid events backend: %s", c.Events)
	}

	switch c.Users {
	case SQLiteUsers:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresUsers:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres backend")
		}
	case SheetsUsers:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
		if c.GoogleCredentialsJSON == "" && c.GoogleCredentialsFile == "" {
			return fmt.Errorf("service account credentials are required for sheets backend")
		}
	}

	switch c.Events {
	case AMQPEvents:
		if c.AMQPURL == "" || c.AMQPExchange == "" || c.AMQPQueue == "" {
			return fmt.Errorf("AMQP URL, exchange and queue are required for amqp events")
		}
	case NATSEvents:
		if c.NATSURL == "" || c.NATSSubject == "" {
			return fmt.Errorf("NATS URL and subject are required for nats events")
		}
	}
	return nil
}
