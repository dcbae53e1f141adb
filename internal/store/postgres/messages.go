package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

type MessageRepository struct {
	db    *sql.DB
	clock *chat.Clock
}

func NewMessageRepository(db *sql.DB, clock *chat.Clock) *MessageRepository {
	if clock == nil {
		clock = chat.NewClock()
	}
	return &MessageRepository{db: db, clock: clock}
}

func (r *MessageRepository) Append(ctx context.Context, m chat.Message) (chat.Message, error) {
	query :=
		`INSERT INTO messages (id, sender_id, receiver_id, content, created_at, read)
		 VALUES ($1, $2, $3, $4, $5, FALSE)`

	m.ID = uuid.NewString()
	m.CreatedAt = r.clock.Now()
	m.Read = false

	_, err := r.db.ExecContext(ctx, query, m.ID, m.SenderID, m.ReceiverID, m.Content, m.CreatedAt)
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: insert message: %v", chat.ErrStorage, err)
	}

	return m, nil
}

func (r *MessageRepository) Conversation(ctx context.Context, userA, userB string) ([]chat.Message, error) {
	query :=
		`SELECT id, sender_id, receiver_id, content, created_at, read FROM messages
		 WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		 ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("%w: query conversation: %v", chat.ErrStorage, err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.CreatedAt, &m.Read); err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", chat.ErrStorage, err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate messages: %v", chat.ErrStorage, err)
	}

	return messages, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, readerID, contactID string) (int64, error) {
	query :=
		`UPDATE messages SET read = TRUE
		 WHERE receiver_id = $1 AND sender_id = $2 AND NOT read`

	res, err := r.db.ExecContext(ctx, query, readerID, contactID)
	if err != nil {
		return 0, fmt.Errorf("%w: mark read: %v", chat.ErrStorage, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", chat.ErrStorage, err)
	}
	return n, nil
}
