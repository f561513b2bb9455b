package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ehrma/signalcore/database"
	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg"
)

// CredentialRepository persists session credentials and implements the
// atomic first-bind protocol.
type CredentialRepository interface {
	Create(ctx context.Context, c *models.SessionCredential) error
	GetActiveByHash(ctx context.Context, hash, serverID string) (*models.SessionCredential, error)
	// TryBind atomically sets user_public_key iff the row is still unbound.
	// Returns true iff this call performed the bind.
	TryBind(ctx context.Context, id, publicKey string) (bool, error)
	GetByID(ctx context.Context, id string) (*models.SessionCredential, error)
}

type sqliteCredentialRepo struct {
	db database.TxQuerier
}

func NewSQLiteCredentialRepo(db database.TxQuerier) CredentialRepository {
	return &sqliteCredentialRepo{db: db}
}

func scanCredential(scan func(dest ...any) error) (*models.SessionCredential, error) {
	var c models.SessionCredential
	var publicKey sql.NullString
	var boundAt, revokedAt sql.NullTime
	if err := scan(&c.ID, &c.ServerID, &publicKey, &c.CredentialHash, &c.InviteTokenID,
		&c.CreatedAt, &boundAt, &revokedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, pkg.ErrNotFound
		}
		return nil, err
	}
	if publicKey.Valid {
		c.UserPublicKey = &publicKey.String
	}
	if boundAt.Valid {
		c.BoundAt = &boundAt.Time
	}
	if revokedAt.Valid {
		c.RevokedAt = &revokedAt.Time
	}
	return &c, nil
}

const credentialColumns = `id, server_id, user_public_key, credential_hash, invite_token_id, created_at, bound_at, revoked_at`

func (r *sqliteCredentialRepo) Create(ctx context.Context, c *models.SessionCredential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_credentials (id, server_id, user_public_key, credential_hash, invite_token_id, created_at)
		VALUES (?, ?, NULL, ?, ?, ?)`,
		c.ID, c.ServerID, c.CredentialHash, c.InviteTokenID, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

func (r *sqliteCredentialRepo) GetActiveByHash(ctx context.Context, hash, serverID string) (*models.SessionCredential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+credentialColumns+` FROM session_credentials
		WHERE credential_hash = ? AND server_id = ? AND revoked_at IS NULL`, hash, serverID)
	return scanCredential(row.Scan)
}

func (r *sqliteCredentialRepo) GetByID(ctx context.Context, id string) (*models.SessionCredential, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM session_credentials WHERE id = ?`, id)
	return scanCredential(row.Scan)
}

// TryBind is a single conditional UPDATE that only ever changes a row that
// is still unbound, so two concurrent first-auths racing on the same
// credential can never both "win".
func (r *sqliteCredentialRepo) TryBind(ctx context.Context, id, publicKey string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE session_credentials
		SET user_public_key = ?, bound_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_public_key IS NULL`, publicKey, id)
	if err != nil {
		return false, fmt.Errorf("failed to bind credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
