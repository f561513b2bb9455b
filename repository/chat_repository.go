package repository

import (
	"context"
	"fmt"

	"github.com/ehrma/signalcore/database"
	"github.com/ehrma/signalcore/models"
)

// ChatRepository persists relayed chat frames for history/pagination. The
// hub never reads back through this interface on the hot path — it fans out
// in memory and writes here only for later retrieval.
type ChatRepository interface {
	Create(ctx context.Context, m *models.ChatMessage) error
}

type sqliteChatRepo struct {
	db database.TxQuerier
}

func NewSQLiteChatRepo(db database.TxQuerier) ChatRepository {
	return &sqliteChatRepo{db: db}
}

func (r *sqliteChatRepo) Create(ctx context.Context, m *models.ChatMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, channel_id, sender_id, ciphertext, iv, key_epoch, encoding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChannelID, m.SenderID, m.Ciphertext, m.IV, m.KeyEpoch, m.Encoding, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to persist chat message: %w", err)
	}
	return nil
}
