package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ehrma/signalcore/database"
	"github.com/ehrma/signalcore/pkg"
)

// MemberInfo is the denormalized view the hub sends in joined-server: one
// row per member with their roles already attached.
type MemberInfo struct {
	UserID    string
	Nickname  string
	PublicKey *string
	AvatarRef *string
	RoleIDs   []string
}

// MemberRepository manages server membership and role assignment.
type MemberRepository interface {
	EnsureMember(ctx context.Context, userID, serverID, nickname string) error
	IsMember(ctx context.Context, userID, serverID string) (bool, error)
	ListMembers(ctx context.Context, serverID string) ([]MemberInfo, error)

	AssignRole(ctx context.Context, userID, serverID, roleID string) error
	UnassignRole(ctx context.Context, userID, serverID, roleID string) error
	HasAnyRole(ctx context.Context, userID, serverID string) (bool, error)
	RoleIDsForUser(ctx context.Context, userID, serverID string) ([]string, error)
}

type sqliteMemberRepo struct {
	db database.TxQuerier
}

func NewSQLiteMemberRepo(db database.TxQuerier) MemberRepository {
	return &sqliteMemberRepo{db: db}
}

func (r *sqliteMemberRepo) EnsureMember(ctx context.Context, userID, serverID, nickname string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO server_members (user_id, server_id, joined_nickname, joined_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, server_id) DO NOTHING`, userID, serverID, nickname)
	if err != nil {
		return fmt.Errorf("failed to enroll member: %w", err)
	}
	return nil
}

func (r *sqliteMemberRepo) IsMember(ctx context.Context, userID, serverID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM server_members WHERE user_id = ? AND server_id = ?`, userID, serverID).Scan(&n)
	return n > 0, err
}

func (r *sqliteMemberRepo) ListMembers(ctx context.Context, serverID string) ([]MemberInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.nickname, u.public_key, u.avatar_ref
		FROM server_members sm
		JOIN users u ON u.id = sm.user_id
		WHERE sm.server_id = ?`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemberInfo
	for rows.Next() {
		var m MemberInfo
		var publicKey, avatarRef sql.NullString
		if err := rows.Scan(&m.UserID, &m.Nickname, &publicKey, &avatarRef); err != nil {
			return nil, err
		}
		if publicKey.Valid {
			m.PublicKey = &publicKey.String
		}
		if avatarRef.Valid {
			m.AvatarRef = &avatarRef.String
		}
		roleIDs, err := r.RoleIDsForUser(ctx, m.UserID, serverID)
		if err != nil {
			return nil, err
		}
		m.RoleIDs = roleIDs
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *sqliteMemberRepo) AssignRole(ctx context.Context, userID, serverID, roleID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO member_roles (user_id, server_id, role_id) VALUES (?, ?, ?)
		ON CONFLICT(user_id, server_id, role_id) DO NOTHING`, userID, serverID, roleID)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

func (r *sqliteMemberRepo) UnassignRole(ctx context.Context, userID, serverID, roleID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM member_roles WHERE user_id = ? AND server_id = ? AND role_id = ?`, userID, serverID, roleID)
	if err != nil {
		return fmt.Errorf("failed to unassign role: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return pkg.ErrNotFound
	}
	return nil
}

func (r *sqliteMemberRepo) HasAnyRole(ctx context.Context, userID, serverID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM member_roles WHERE user_id = ? AND server_id = ?`, userID, serverID).Scan(&n)
	return n > 0, err
}

func (r *sqliteMemberRepo) RoleIDsForUser(ctx context.Context, userID, serverID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT role_id FROM member_roles WHERE user_id = ? AND server_id = ?`, userID, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
