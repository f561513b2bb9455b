package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ehrma/signalcore/database"
	"github.com/ehrma/signalcore/models"
)

// ChannelPermissionRepository persists channel-scoped role overrides. It
// satisfies perm.OverrideSource.
type ChannelPermissionRepository interface {
	GetForChannel(ctx context.Context, channelID string) ([]models.ChannelPermissionOverride, error)
	SetOverride(ctx context.Context, o *models.ChannelPermissionOverride) error
	DeleteOverride(ctx context.Context, channelID, roleID string) error
}

type sqliteChannelPermRepo struct {
	db database.TxQuerier
}

func NewSQLiteChannelPermissionRepo(db database.TxQuerier) ChannelPermissionRepository {
	return &sqliteChannelPermRepo{db: db}
}

func (r *sqliteChannelPermRepo) GetForChannel(ctx context.Context, channelID string) ([]models.ChannelPermissionOverride, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT channel_id, role_id, permissions FROM channel_permission_overrides WHERE channel_id = ?`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChannelPermissionOverride
	for rows.Next() {
		var o models.ChannelPermissionOverride
		var permsJSON string
		if err := rows.Scan(&o.ChannelID, &o.RoleID, &permsJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(permsJSON), &o.Permissions); err != nil {
			return nil, fmt.Errorf("failed to decode override permissions: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *sqliteChannelPermRepo) SetOverride(ctx context.Context, o *models.ChannelPermissionOverride) error {
	permsJSON, err := json.Marshal(o.Permissions)
	if err != nil {
		return fmt.Errorf("failed to encode override permissions: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO channel_permission_overrides (channel_id, role_id, permissions)
		VALUES (?, ?, ?)
		ON CONFLICT(channel_id, role_id) DO UPDATE SET permissions = excluded.permissions`,
		o.ChannelID, o.RoleID, string(permsJSON))
	if err != nil {
		return fmt.Errorf("failed to set override: %w", err)
	}
	return nil
}

func (r *sqliteChannelPermRepo) DeleteOverride(ctx context.Context, channelID, roleID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM channel_permission_overrides WHERE channel_id = ? AND role_id = ?`, channelID, roleID)
	if err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	return nil
}
