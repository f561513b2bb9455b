package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ehrma/signalcore/database"
	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg"
)

// ChannelRepository persists Channel rows. It satisfies perm.ChannelSource.
type ChannelRepository interface {
	GetByID(ctx context.Context, id string) (*models.Channel, error)
	ListByServer(ctx context.Context, serverID string) ([]models.Channel, error)
	Create(ctx context.Context, c *models.Channel) error
}

type sqliteChannelRepo struct {
	db database.TxQuerier
}

func NewSQLiteChannelRepo(db database.TxQuerier) ChannelRepository {
	return &sqliteChannelRepo{db: db}
}

func scanChannel(scan func(dest ...any) error) (*models.Channel, error) {
	var c models.Channel
	var parentID, description, topic sql.NullString
	if err := scan(&c.ID, &c.ServerID, &parentID, &c.Name, &description, &topic,
		&c.Position, &c.MaxUsers, &c.JoinPower, &c.TalkPower, &c.IsDefault, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, pkg.ErrNotFound
		}
		return nil, err
	}
	if parentID.Valid {
		c.ParentID = &parentID.String
	}
	c.Description = description.String
	if topic.Valid {
		c.Topic = &topic.String
	}
	return &c, nil
}

const channelColumns = `id, server_id, parent_id, name, description, topic,
	position, max_users, join_power, talk_power, is_default, created_at`

func (r *sqliteChannelRepo) GetByID(ctx context.Context, id string) (*models.Channel, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)
	return scanChannel(row.Scan)
}

func (r *sqliteChannelRepo) ListByServer(ctx context.Context, serverID string) ([]models.Channel, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE server_id = ? ORDER BY position ASC`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Channel
	for rows.Next() {
		c, err := scanChannel(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *sqliteChannelRepo) Create(ctx context.Context, c *models.Channel) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO channels (id, server_id, parent_id, name, description, topic,
		                       position, max_users, join_power, talk_power, is_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ServerID, c.ParentID, c.Name, c.Description, c.Topic,
		c.Position, c.MaxUsers, c.JoinPower, c.TalkPower, c.IsDefault, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}
	return nil
}
