package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

var messageColumns = []string{"id", "sender_id", "receiver_id", "content", "created_at", "read"}
var userColumns = []string{"id", "name", "email", "password_hash", "created_at"}

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return New(db, chat.NewClock()), mock
}

func TestAppend_Success(t *testing.T) {
	s, mock := newStoreWithMock(t)

	q := `(?s)^INSERT\s+INTO\s+messages\s*\(id,\s*sender_id,\s*receiver_id,\s*content,\s*created_at,\s*read\)\s*VALUES`
	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), "alice", "bob", "hi", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m, err := s.Messages().Append(context.Background(), chat.Message{SenderID: "alice", ReceiverID: "bob", Content: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())
	assert.False(t, m.Read)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_DBErrorIsStorageError(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(`INSERT\s+INTO\s+messages`).WillReturnError(errors.New("connection refused"))

	_, err := s.Messages().Append(context.Background(), chat.Message{SenderID: "alice", ReceiverID: "bob", Content: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, chat.ErrStorage))
}

func TestConversation_ReturnsRowsInOrder(t *testing.T) {
	s, mock := newStoreWithMock(t)

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(messageColumns).
		AddRow("m1", "alice", "bob", "hi", t0, true).
		AddRow("m2", "bob", "alice", "hey", t0.Add(time.Second), false)

	q := `(?s)^SELECT\s+id,\s*sender_id,\s*receiver_id,\s*content,\s*created_at,\s*read\s+FROM\s+messages.*ORDER\s+BY\s+created_at\s+ASC,\s*id\s+ASC$`
	mock.ExpectQuery(q).WithArgs("alice", "bob").WillReturnRows(rows)

	got, err := s.Messages().Conversation(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.True(t, got[0].Read)
	assert.Equal(t, "m2", got[1].ID)
	assert.Equal(t, t0.Add(time.Second), got[1].CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversation_Empty(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(`SELECT`).WithArgs("a", "b").WillReturnRows(sqlmock.NewRows(messageColumns))

	got, err := s.Messages().Conversation(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestConversation_QueryError(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("timeout"))

	_, err := s.Messages().Conversation(context.Background(), "a", "b")
	assert.True(t, errors.Is(err, chat.ErrStorage))
}

func TestMarkRead(t *testing.T) {
	s, mock := newStoreWithMock(t)

	q := `(?s)^UPDATE\s+messages\s+SET\s+read\s*=\s*TRUE\s+WHERE\s+receiver_id\s*=\s*\$1\s+AND\s+sender_id\s*=\s*\$2\s+AND\s+NOT\s+read$`
	mock.ExpectExec(q).WithArgs("bob", "alice").WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.Messages().MarkRead(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCreateUser_Success(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(`INSERT\s+INTO\s+users`).
		WithArgs(sqlmock.AnyArg(), "Alice", "alice@example.com", "hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := s.Users().Create(context.Background(), chat.User{Name: "Alice", Email: " Alice@Example.com", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(`INSERT\s+INTO\s+users`).WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	_, err := s.Users().Create(context.Background(), chat.User{Name: "Alice", Email: "alice@example.com"})
	assert.True(t, errors.Is(err, chat.ErrEmailTaken))
}

func TestUserByEmail(t *testing.T) {
	s, mock := newStoreWithMock(t)

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)SELECT.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow("u-1", "Alice", "alice@example.com", "hash", created))

	u, err := s.Users().ByEmail(context.Background(), "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "hash", u.PasswordHash)
}

func TestUserByID_NotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)SELECT.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Users().ByID(context.Background(), "ghost")
	assert.True(t, errors.Is(err, chat.ErrNotFound))
}

func TestListUsers(t *testing.T) {
	s, mock := newStoreWithMock(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)SELECT.*FROM\s+users\s+ORDER\s+BY\s+name`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u-1", "Alice", "alice@example.com", "h1", now).
			AddRow("u-2", "Bob", "bob@example.com", "h2", now))

	users, err := s.Users().List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Bob", users[1].Name)
}
