package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(s rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	if err := s.Scan(
		&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Attachment,
		&m.Timestamp, &m.IsRead, &m.DeletedForAll,
	); err != nil {
		return nil, err
	}
	m.Timestamp = m.Timestamp.UTC()
	return m, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	return insertMessage(ctx, r.db, m)
}

func insertMessage(ctx context.Context, ex execer, m *domain.Message) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO messages
			(id, sender_id, receiver_id, content, attachment, created_at, is_read, deleted_for_all)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.SenderID, m.ReceiverID, m.Content, m.Attachment, m.Timestamp.UTC(), m.IsRead, m.DeletedForAll)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `
		SELECT id, sender_id, receiver_id, content, attachment, created_at, is_read, deleted_for_all
		FROM messages WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// ListConversation is like a plain conversation listing but excludes
// messages userID has hidden via "delete for me". Oldest first.
func (r *MessageRepo) ListConversation(ctx context.Context, userID, peerID string, limit int) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, content, attachment, created_at, is_read, deleted_for_all
		FROM (
			SELECT m.id, m.sender_id, m.receiver_id, m.content, m.attachment,
			       m.created_at, m.is_read, m.deleted_for_all
			FROM messages m
			LEFT JOIN user_hidden_messages h
			       ON h.message_id = m.id AND h.user_id = $1
			WHERE h.user_id IS NULL
			  AND ((m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1))
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $3
		) latest
		ORDER BY created_at ASC, id ASC
	`, userID, peerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MessageRepo) ListPeers(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT CASE WHEN m.sender_id = $1 THEN m.receiver_id ELSE m.sender_id END AS peer
		FROM messages m
		LEFT JOIN user_hidden_messages h
		       ON h.message_id = m.id AND h.user_id = $1
		WHERE h.user_id IS NULL AND (m.sender_id = $1 OR m.receiver_id = $1)
		GROUP BY peer
		ORDER BY MAX(m.created_at) DESC, peer ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	defer rows.Close()

	var peers []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

func (r *MessageRepo) CountUnread(ctx context.Context, userID, peerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		LEFT JOIN user_hidden_messages h
		       ON h.message_id = m.id AND h.user_id = $1
		WHERE h.user_id IS NULL
		  AND m.sender_id = $2 AND m.receiver_id = $1
		  AND NOT m.is_read AND NOT m.deleted_for_all
	`, userID, peerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) MarkConversationRead(ctx context.Context, userID, peerID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE sender_id = $1 AND receiver_id = $2 AND is_read = FALSE
	`, peerID, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (r *MessageRepo) SoftDeleteForEveryone(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET deleted_for_all = TRUE, content = '', attachment = NULL WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) HideForUser(ctx context.Context, userID, messageID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_hidden_messages (user_id, message_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, messageID)
	if err != nil {
		return fmt.Errorf("hide message: %w", err)
	}
	return nil
}
