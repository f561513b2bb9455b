package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ehrma/signalcore/database"
	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg"
)

// InviteRepository persists invite tokens and the atomic redeem step.
type InviteRepository interface {
	Create(ctx context.Context, inv *models.InviteToken) error
	GetByToken(ctx context.Context, token string) (*models.InviteToken, error)
	// RedeemOne atomically increments uses iff the invite is still within
	// maxUses and unexpired. Returns true iff the redemption counted.
	RedeemOne(ctx context.Context, token string) (bool, *models.InviteToken, error)
}

type sqliteInviteRepo struct {
	db database.TxQuerier
}

func NewSQLiteInviteRepo(db database.TxQuerier) InviteRepository {
	return &sqliteInviteRepo{db: db}
}

func scanInvite(scan func(dest ...any) error) (*models.InviteToken, error) {
	var inv models.InviteToken
	var maxUses sql.NullInt64
	var expiresAt sql.NullTime
	if err := scan(&inv.ID, &inv.ServerID, &inv.Token, &maxUses, &inv.Uses,
		&expiresAt, &inv.ServerAddress, &inv.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, pkg.ErrNotFound
		}
		return nil, err
	}
	if maxUses.Valid {
		v := int(maxUses.Int64)
		inv.MaxUses = &v
	}
	if expiresAt.Valid {
		inv.ExpiresAt = &expiresAt.Time
	}
	return &inv, nil
}

const inviteColumns = `id, server_id, token, max_uses, uses, expires_at, server_address, created_at`

func (r *sqliteInviteRepo) Create(ctx context.Context, inv *models.InviteToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO invite_tokens (id, server_id, token, max_uses, uses, expires_at, server_address, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
		inv.ID, inv.ServerID, inv.Token, inv.MaxUses, inv.ExpiresAt, inv.ServerAddress, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

func (r *sqliteInviteRepo) GetByToken(ctx context.Context, token string) (*models.InviteToken, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invite_tokens WHERE token = ?`, token)
	return scanInvite(row.Scan)
}

// RedeemOne is a single atomic UPDATE: the row count it changes is the only
// thing that decides success, so no check-then-act race is possible even
// under concurrent redemption.
func (r *sqliteInviteRepo) RedeemOne(ctx context.Context, token string) (bool, *models.InviteToken, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE invite_tokens
		SET uses = uses + 1
		WHERE token = ?
		  AND (max_uses IS NULL OR uses < max_uses)
		  AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)`, token)
	if err != nil {
		return false, nil, fmt.Errorf("failed to redeem invite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil, err
	}
	if n == 0 {
		return false, nil, nil
	}

	inv, err := r.GetByToken(ctx, token)
	if err != nil {
		return false, nil, err
	}
	return true, inv, nil
}
