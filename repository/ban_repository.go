package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ehrma/signalcore/database"
	"github.com/ehrma/signalcore/models"
)

// BanRepository persists and checks Ban rows. Expired bans are lazily
// purged: IsBanned simply excludes them rather than running a sweep.
type BanRepository interface {
	Create(ctx context.Context, b *models.Ban) error
	IsBanned(ctx context.Context, userID, serverID string) (bool, error)
}

type sqliteBanRepo struct {
	db database.TxQuerier
}

func NewSQLiteBanRepo(db database.TxQuerier) BanRepository {
	return &sqliteBanRepo{db: db}
}

func (r *sqliteBanRepo) Create(ctx context.Context, b *models.Ban) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bans (id, server_id, user_id, banned_by, reason, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ServerID, b.UserID, b.BannedBy, b.Reason, b.ExpiresAt, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ban: %w", err)
	}
	return nil
}

func (r *sqliteBanRepo) IsBanned(ctx context.Context, userID, serverID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bans
		WHERE user_id = ? AND server_id = ? AND (expires_at IS NULL OR expires_at > ?)`,
		userID, serverID, time.Now()).Scan(&n)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	return n > 0, nil
}
