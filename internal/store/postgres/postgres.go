// Package postgres implements the store contracts on PostgreSQL through
// database/sql and the pgx driver. The schema is applied with goose from
// the embedded migrations on startup.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/Tyrowin/chatrelay/internal/migrations"
	"github.com/Tyrowin/chatrelay/internal/store"
)

type Store struct {
	db       *sql.DB
	messages *MessageRepository
	users    *UserRepository
}

// Open connects to dsn, checks the connection and applies migrations.
func Open(ctx context.Context, dsn string, clock *chat.Clock) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return New(db, clock), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, clock *chat.Clock) *Store {
	return &Store{
		db:       db,
		messages: NewMessageRepository(db, clock),
		users:    NewUserRepository(db),
	}
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (s *Store) Messages() store.Messages { return s.messages }
func (s *Store) Users() store.Users       { return s.users }

func (s *Store) Conn() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}
