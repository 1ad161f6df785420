package message

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const messageColumns = `seq, id, conversation_key, sender_id, receiver_id, body, message_type, asset_url, is_read, is_deleted, created_at, updated_at`

// visibleMessages is the only source reads select from; it hides tombstones.
const visibleMessages = `(SELECT * FROM chat_messages WHERE NOT is_deleted) AS m`

// SQLStore implements Store using a database/sql connection to Postgres.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row scanner) (*Message, error) {
	var m Message
	err := row.Scan(&m.Seq, &m.ID, &m.ConversationKey, &m.SenderID, &m.ReceiverID,
		&m.Body, &m.Type, &m.AssetURL, &m.Read, &m.Deleted, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLStore) Create(ctx context.Context, m *Message) error {
	query := `
		INSERT INTO chat_messages (id, conversation_key, sender_id, receiver_id, body, message_type, asset_url, is_read, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, false, clock_timestamp(), clock_timestamp())
		RETURNING seq, created_at, updated_at
	`

	row := s.db.QueryRowContext(ctx, query, m.ID, m.ConversationKey, m.SenderID, m.ReceiverID, m.Body, m.Type, m.AssetURL)
	if err := row.Scan(&m.Seq, &m.CreatedAt, &m.UpdatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrUnknownParticipant
		}
		return errors.Wrap(err, "insert message")
	}
	m.Read = false
	m.Deleted = false
	return nil
}

func (s *SQLStore) Find(ctx context.Context, id string) (*Message, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	query := `SELECT ` + messageColumns + ` FROM chat_messages WHERE id = $1`

	m, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find message")
	}
	return m, nil
}

func (s *SQLStore) ListConversation(ctx context.Context, key string, offset, limit int) ([]*Message, error) {
	if offset < 0 || limit < 0 {
		return nil, ErrInvalidRange
	}
	query := `
		SELECT ` + messageColumns + `
		FROM ` + visibleMessages + `
		WHERE m.conversation_key = $1
		ORDER BY m.created_at DESC, m.seq DESC
		OFFSET $2 LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, key, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list conversation")
	}
	defer func() {
		_ = rows.Close()
	}()

	list := make([]*Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list conversation")
	}
	return list, nil
}

func (s *SQLStore) MarkRead(ctx context.Context, key, receiverID string) (int64, error) {
	query := `
		UPDATE chat_messages
		SET is_read = true, updated_at = clock_timestamp()
		WHERE conversation_key = $1 AND receiver_id = $2 AND NOT is_read
	`

	res, err := s.db.ExecContext(ctx, query, key, receiverID)
	if err != nil {
		return 0, errors.Wrap(err, "mark read")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "mark read")
	}
	return n, nil
}

func (s *SQLStore) SoftDelete(ctx context.Context, id, senderID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	query := `
		UPDATE chat_messages
		SET is_deleted = true, updated_at = clock_timestamp()
		WHERE id = $1 AND sender_id = $2
	`

	res, err := s.db.ExecContext(ctx, query, id, senderID)
	if err != nil {
		return errors.Wrap(err, "soft delete message")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "soft delete message")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Conversations(ctx context.Context, userID string) ([]*ConversationRow, error) {
	query := `
		WITH mine AS (
			SELECT m.*
			FROM ` + visibleMessages + `
			WHERE m.sender_id = $1 OR m.receiver_id = $1
		), latest AS (
			SELECT DISTINCT ON (conversation_key) *
			FROM mine
			ORDER BY conversation_key, created_at DESC, seq ASC
		), unread AS (
			SELECT conversation_key, COUNT(*) AS n
			FROM mine
			WHERE receiver_id = $1 AND NOT is_read
			GROUP BY conversation_key
		)
		SELECT l.seq, l.id, l.conversation_key, l.sender_id, l.receiver_id, l.body, l.message_type,
			l.asset_url, l.is_read, l.is_deleted, l.created_at, l.updated_at, COALESCE(u.n, 0)
		FROM latest l
		LEFT JOIN unread u ON u.conversation_key = l.conversation_key
		ORDER BY l.created_at DESC, l.seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*ConversationRow
	for rows.Next() {
		var m Message
		var unread int
		if err := rows.Scan(&m.Seq, &m.ID, &m.ConversationKey, &m.SenderID, &m.ReceiverID,
			&m.Body, &m.Type, &m.AssetURL, &m.Read, &m.Deleted, &m.CreatedAt, &m.UpdatedAt, &unread); err != nil {
			return nil, errors.Wrap(err, "scan conversation")
		}
		out = append(out, &ConversationRow{Key: m.ConversationKey, Last: &m, UnreadCount: unread})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	return out, nil
}
