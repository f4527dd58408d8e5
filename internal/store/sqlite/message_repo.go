package sqlite

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

const messageColumns = `id, sender_id, receiver_id, content, attachment, created_at, is_read, deleted_for_all`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(s rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	var at timestamp
	if err := s.Scan(
		&m.ID,
		&m.SenderID,
		&m.ReceiverID,
		&m.Content,
		&m.Attachment,
		&at,
		&m.IsRead,
		&m.DeletedForAll,
	); err != nil {
		return nil, err
	}
	m.Timestamp = at.Time
	return m, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	return insertMessage(ctx, r.db, m)
}

func insertMessage(ctx context.Context, ex execer, m *domain.Message) error {
	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ex.ExecContext(ctx, query,
		m.ID,
		m.SenderID,
		m.ReceiverID,
		m.Content,
		m.Attachment,
		m.Timestamp.UTC(),
		m.IsRead,
		m.DeletedForAll,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// ListConversation returns the latest limit messages between userID and
// peerID that userID has not hidden, oldest first.
func (r *MessageRepo) ListConversation(ctx context.Context, userID, peerID string, limit int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM (
			SELECT m.id, m.sender_id, m.receiver_id, m.content, m.attachment, m.created_at, m.is_read, m.deleted_for_all
			FROM messages m
			LEFT JOIN user_hidden_messages h
			       ON h.message_id = m.id AND h.user_id = ?
			WHERE h.user_id IS NULL
			  AND ((m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?))
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, userID, peerID, peerID, userID, limit)
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

// ListPeers returns everyone userID has visible messages with, most
// recent conversation first.
func (r *MessageRepo) ListPeers(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT peer FROM (
			SELECT CASE WHEN m.sender_id = ? THEN m.receiver_id ELSE m.sender_id END AS peer,
			       MAX(m.created_at) AS last_at
			FROM messages m
			LEFT JOIN user_hidden_messages h
			       ON h.message_id = m.id AND h.user_id = ?
			WHERE h.user_id IS NULL AND (m.sender_id = ? OR m.receiver_id = ?)
			GROUP BY peer
		)
		ORDER BY last_at DESC, peer ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, userID, userID, userID)
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
		       ON h.message_id = m.id AND h.user_id = ?
		WHERE h.user_id IS NULL
		  AND m.sender_id = ? AND m.receiver_id = ?
		  AND m.is_read = 0 AND m.deleted_for_all = 0
	`, userID, peerID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) MarkConversationRead(ctx context.Context, userID, peerID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE sender_id = ? AND receiver_id = ? AND is_read = 0
	`, peerID, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// SoftDeleteForEveryone tombstones a message: the flag is set and the
// content dropped for good.
func (r *MessageRepo) SoftDeleteForEveryone(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET deleted_for_all = 1, content = '', attachment = NULL WHERE id = ?
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
		INSERT OR IGNORE INTO user_hidden_messages (user_id, message_id, hidden_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
	`, userID, messageID)
	if err != nil {
		return fmt.Errorf("hide message: %w", err)
	}
	return nil
}
