package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ehrma/signalcore/database"
	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg"
)

// ServerRepository persists Server rows.
type ServerRepository interface {
	GetByID(ctx context.Context, id string) (*models.Server, error)
	GetDefault(ctx context.Context) (*models.Server, error)
	Create(ctx context.Context, s *models.Server) error
	Update(ctx context.Context, s *models.Server) error
}

type sqliteServerRepo struct {
	db database.TxQuerier
}

func NewSQLiteServerRepo(db database.TxQuerier) ServerRepository {
	return &sqliteServerRepo{db: db}
}

func (r *sqliteServerRepo) scan(row *sql.Row) (*models.Server, error) {
	var s models.Server
	var passwordHash sql.NullString
	var iconRef sql.NullString
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt, &s.MaxUsers,
		&iconRef, &s.MaxWebcamProducers, &s.MaxScreenProducers, &passwordHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, pkg.ErrNotFound
		}
		return nil, err
	}
	if iconRef.Valid {
		s.IconRef = &iconRef.String
	}
	if passwordHash.Valid {
		s.PasswordHash = &passwordHash.String
	}
	return &s, nil
}

func (r *sqliteServerRepo) GetByID(ctx context.Context, id string) (*models.Server, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, max_users, icon_ref,
		       max_webcam_producers, max_screen_producers, password_hash
		FROM servers WHERE id = ?`, id)
	return r.scan(row)
}

func (r *sqliteServerRepo) GetDefault(ctx context.Context) (*models.Server, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, max_users, icon_ref,
		       max_webcam_producers, max_screen_producers, password_hash
		FROM servers ORDER BY created_at ASC LIMIT 1`)
	return r.scan(row)
}

func (r *sqliteServerRepo) Create(ctx context.Context, s *models.Server) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO servers (id, name, description, created_at, max_users, icon_ref,
		                      max_webcam_producers, max_screen_producers, password_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Description, s.CreatedAt, s.MaxUsers, s.IconRef,
		s.MaxWebcamProducers, s.MaxScreenProducers, s.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return nil
}

func (r *sqliteServerRepo) Update(ctx context.Context, s *models.Server) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE servers SET name = ?, description = ?, max_users = ?, icon_ref = ?,
		       max_webcam_producers = ?, max_screen_producers = ?, password_hash = ?
		WHERE id = ?`,
		s.Name, s.Description, s.MaxUsers, s.IconRef,
		s.MaxWebcamProducers, s.MaxScreenProducers, s.PasswordHash, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update server: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return pkg.ErrNotFound
	}
	return nil
}
