package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ehrma/signalcore/database"
	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg"
)

// RoleRepository persists Role rows. GetRolesForUser satisfies
// perm.RoleSource directly so the permission engine never depends on this
// package's concrete type.
type RoleRepository interface {
	GetByID(ctx context.Context, id string) (*models.Role, error)
	GetAll(ctx context.Context, serverID string) ([]models.Role, error)
	GetDefault(ctx context.Context, serverID string) (*models.Role, error)
	GetRolesForUser(ctx context.Context, userID, serverID string) ([]models.Role, error)
	Create(ctx context.Context, r *models.Role) error
}

type sqliteRoleRepo struct {
	db database.TxQuerier
}

func NewSQLiteRoleRepo(db database.TxQuerier) RoleRepository {
	return &sqliteRoleRepo{db: db}
}

func scanRole(scan func(dest ...any) error) (*models.Role, error) {
	var r models.Role
	var permsJSON string
	var description sql.NullString
	if err := scan(&r.ID, &r.ServerID, &r.Name, &r.Priority, &r.Color, &permsJSON, &r.IsDefault, &description); err != nil {
		if err == sql.ErrNoRows {
			return nil, pkg.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(permsJSON), &r.Permissions); err != nil {
		return nil, fmt.Errorf("failed to decode role permissions: %w", err)
	}
	if description.Valid {
		r.Description = &description.String
	}
	return &r, nil
}

const roleColumns = `id, server_id, name, priority, color, permissions, is_default, description`

func (r *sqliteRoleRepo) GetByID(ctx context.Context, id string) (*models.Role, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = ?`, id)
	return scanRole(row.Scan)
}

func (r *sqliteRoleRepo) GetAll(ctx context.Context, serverID string) ([]models.Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE server_id = ? ORDER BY priority DESC`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Role
	for rows.Next() {
		role, err := scanRole(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *role)
	}
	return out, rows.Err()
}

func (r *sqliteRoleRepo) GetDefault(ctx context.Context, serverID string) (*models.Role, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE server_id = ? AND is_default = 1 LIMIT 1`, serverID)
	return scanRole(row.Scan)
}

func (r *sqliteRoleRepo) GetRolesForUser(ctx context.Context, userID, serverID string) ([]models.Role, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT roles.id, roles.server_id, roles.name, roles.priority, roles.color,
		       roles.permissions, roles.is_default, roles.description
		FROM roles
		JOIN member_roles ON member_roles.role_id = roles.id
		WHERE member_roles.user_id = ? AND member_roles.server_id = ?`, userID, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Role
	for rows.Next() {
		role, err := scanRole(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *role)
	}
	return out, rows.Err()
}

func (r *sqliteRoleRepo) Create(ctx context.Context, role *models.Role) error {
	permsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to encode role permissions: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO roles (id, server_id, name, priority, color, permissions, is_default, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		role.ID, role.ServerID, role.Name, role.Priority, role.Color, string(permsJSON), role.IsDefault, role.Description)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}
