package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

const uniqueViolation = "23505"

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u chat.User) (chat.User, error) {
	query :=
		`INSERT INTO users (id, name, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = chat.NormalizeEmail(u.Email)
	u.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	_, err := r.db.ExecContext(ctx, query, u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return chat.User{}, chat.ErrEmailTaken
		}
		return chat.User{}, fmt.Errorf("%w: insert user: %v", chat.ErrStorage, err)
	}

	return u, nil
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (chat.User, error) {
	query :=
		`SELECT id, name, email, password_hash, created_at FROM users
		 WHERE email = $1`

	return r.one(ctx, query, chat.NormalizeEmail(email))
}

func (r *UserRepository) ByID(ctx context.Context, id string) (chat.User, error) {
	query :=
		`SELECT id, name, email, password_hash, created_at FROM users
		 WHERE id = $1`

	return r.one(ctx, query, id)
}

func (r *UserRepository) one(ctx context.Context, query string, arg string) (chat.User, error) {
	var u chat.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.User{}, chat.ErrNotFound
		}
		return chat.User{}, fmt.Errorf("%w: query user: %v", chat.ErrStorage, err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (r *UserRepository) List(ctx context.Context) ([]chat.User, error) {
	query :=
		`SELECT id, name, email, password_hash, created_at FROM users
		 ORDER BY name ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %v", chat.ErrStorage, err)
	}
	defer rows.Close()

	users := make([]chat.User, 0)
	for rows.Next() {
		var u chat.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan user: %v", chat.ErrStorage, err)
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate users: %v", chat.ErrStorage, err)
	}

	return users, nil
}
