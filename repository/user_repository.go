package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ehrma/signalcore/database"
	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg"
)

// UserRepository persists User rows, keyed by id with a unique index on
// public_key where it is set.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByPublicKey(ctx context.Context, publicKey string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	UpdateAvatar(ctx context.Context, userID, avatarRef string) error
}

type sqliteUserRepo struct {
	db database.TxQuerier
}

func NewSQLiteUserRepo(db database.TxQuerier) UserRepository {
	return &sqliteUserRepo{db: db}
}

func scanUser(scan func(dest ...any) error) (*models.User, error) {
	var u models.User
	var publicKey, avatarRef sql.NullString
	if err := scan(&u.ID, &u.Nickname, &publicKey, &avatarRef, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, pkg.ErrNotFound
		}
		return nil, err
	}
	if publicKey.Valid {
		u.PublicKey = &publicKey.String
	}
	if avatarRef.Valid {
		u.AvatarRef = &avatarRef.String
	}
	return &u, nil
}

func (r *sqliteUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, nickname, public_key, avatar_ref, created_at FROM users WHERE id = ?`, id)
	return scanUser(row.Scan)
}

func (r *sqliteUserRepo) GetByPublicKey(ctx context.Context, publicKey string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, nickname, public_key, avatar_ref, created_at FROM users WHERE public_key = ?`, publicKey)
	return scanUser(row.Scan)
}

func (r *sqliteUserRepo) Create(ctx context.Context, u *models.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, nickname, public_key, avatar_ref, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Nickname, u.PublicKey, u.AvatarRef, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *sqliteUserRepo) UpdateAvatar(ctx context.Context, userID, avatarRef string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET avatar_ref = ? WHERE id = ?`, avatarRef, userID)
	if err != nil {
		return fmt.Errorf("failed to update user avatar: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return pkg.ErrNotFound
	}
	return nil
}
