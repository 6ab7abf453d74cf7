package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/saludtb/tb-assistant/pkg/logging"
)

// Archive keeps a durable transcript of every conversation in Postgres.
// Redis holds the live session; this table survives TTL expiry so staff
// can review what the assistant told a patient. All methods are nil-safe
// so the engine can run without a database in development.
type Archive struct {
	db     *sql.DB
	logger *logging.Logger
}

func NewArchive(db *sql.DB, logger *logging.Logger) *Archive {
	if db == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Archive{db: db, logger: logger.Named("archive")}
}

// EnsureConversation upserts the conversation row.
func (a *Archive) EnsureConversation(ctx context.Context, conv *Conversation) error {
	if a == nil {
		return nil
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET status = $3, updated_at = $5`,
		conv.ID, conv.UserID, string(conv.Status), conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("conversation: archive upsert %s: %w", conv.ID, err)
	}
	return nil
}

// AppendMessage stores one turn and bumps the per-role counter on the
// conversation row.
func (a *Archive) AppendMessage(ctx context.Context, conversationID string, msg Message) error {
	if a == nil {
		return nil
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("conversation: archive begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, conversationID, string(msg.Role), msg.Content, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("conversation: archive message %s: %w", msg.ID, err)
	}

	column := "user_messages"
	if msg.Role == RoleAssistant {
		column = "assistant_messages"
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE conversations SET "+column+" = "+column+" + 1, updated_at = $2 WHERE id = $1",
		conversationID, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("conversation: archive counter %s: %w", conversationID, err)
	}
	return tx.Commit()
}

// GetMessages returns a conversation's archived transcript, oldest first.
func (a *Archive) GetMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if a == nil {
		return nil, errors.New("conversation: archive not configured")
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, role, content, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: archive query %s: %w", conversationID, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var role string
		var ts time.Time
		if err := rows.Scan(&m.ID, &role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("conversation: archive scan: %w", err)
		}
		m.Role = Role(role)
		m.Timestamp = ts
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: archive rows: %w", err)
	}
	return msgs, nil
}

func (a *Archive) Ping(ctx context.Context) error {
	if a == nil {
		return errors.New("conversation: archive not configured")
	}
	return a.db.PingContext(ctx)
}
