package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
)

// UserRepository reads the users table from SQLite or Postgres.
type UserRepository struct {
	db      *sql.DB
	dialect string
	logger  *applog.Logger
}

// NewSQLiteUserRepository opens (creating if needed) the database file at
// dbPath and migrates it.
func NewSQLiteUserRepository(dbPath string, logger *applog.Logger) (*UserRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(DialectSQLite, dbPath, logger)
}

// NewPostgresUserRepository connects to databaseURL and migrates it.
func NewPostgresUserRepository(databaseURL string, logger *applog.Logger) (*UserRepository, error) {
	return open(DialectPostgres, databaseURL, logger)
}

func open(dialect, dsn string, logger *applog.Logger) (*UserRepository, error) {
	if logger == nil {
		logger = applog.Nop()
	}

	db, err := sql.Open(driverName(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// SQLite allows one writer at a time.
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, err
	}

	logger.WithComponent(applog.ComponentStorage).Info("User database ready", applog.FieldBackend, dialect)
	return &UserRepository{db: db, dialect: dialect, logger: logger.WithComponent(applog.ComponentStorage)}, nil
}

// ListUsers returns every user ordered by id.
func (r *UserRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, email, image, "createdAt" FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		var (
			u         core.User
			image     sql.NullString
			createdAt any
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &image, &createdAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Image = image.String
		if u.CreatedAt, err = parseDBTime(createdAt); err != nil {
			return nil, fmt.Errorf("user %d: %w", u.ID, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	r.logger.DebugContext(ctx, "Users listed", applog.FieldBackend, r.dialect, applog.FieldCount, len(users))
	return users, nil
}

// Ping reports whether the database is reachable.
func (r *UserRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *UserRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

var dbTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseDBTime accepts what either driver hands back for a TIMESTAMP column.
func parseDBTime(v any) (time.Time, error) {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s = t
	case []byte:
		s = string(t)
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unexpected createdAt type %T", v)
	}
	for _, layout := range dbTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable createdAt %q", s)
}
