package ws

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg"
)

// ensureDefaultServer returns the one tenant server that exists after
// bootstrap, creating it on first run. The configured shared password (if
// any) is rehashed into the row whenever it no longer matches, so changing
// PASSWORD in the environment takes effect on the next restart.
func (h *Hub) ensureDefaultServer(ctx context.Context) (*models.Server, error) {
	srv, err := h.servers.GetDefault(ctx)
	if err != nil && err != pkg.ErrNotFound {
		return nil, err
	}

	if srv == nil {
		srv = &models.Server{
			ID:                 h.newID(),
			Name:               "Default Server",
			Description:        "",
			CreatedAt:          time.Now(),
			MaxUsers:           0,
			MaxWebcamProducers: 4,
			MaxScreenProducers: 1,
		}
		if h.cfg.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(h.cfg.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("%w: failed to hash password", pkg.ErrInternal)
			}
			s := string(hash)
			srv.PasswordHash = &s
		}
		if err := h.servers.Create(ctx, srv); err != nil {
			return nil, err
		}
		return srv, nil
	}

	if !passwordMatchesHash(h.cfg.Password, srv.PasswordHash) {
		if h.cfg.Password == "" {
			srv.PasswordHash = nil
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(h.cfg.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("%w: failed to hash password", pkg.ErrInternal)
			}
			s := string(hash)
			srv.PasswordHash = &s
		}
		if err := h.servers.Update(ctx, srv); err != nil {
			return nil, err
		}
	}

	return srv, nil
}

// passwordMatchesHash reports whether plain (possibly empty) already
// matches hash (possibly nil), so ensureDefaultServer can skip a rewrite on
// every boot when nothing changed.
func passwordMatchesHash(plain string, hash *string) bool {
	if plain == "" {
		return hash == nil
	}
	if hash == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*hash), []byte(plain)) == nil
}

// ensureDefaultChannels creates the Lobby/General/AFK root channels the
// first time a server has none, and returns the server's full channel list
// either way.
func (h *Hub) ensureDefaultChannels(ctx context.Context, serverID string) ([]models.Channel, error) {
	existing, err := h.channels.ListByServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	defaults := []models.Channel{
		{Name: "Lobby", Position: 0, IsDefault: true},
		{Name: "General", Position: 1},
		{Name: "AFK", Position: 2},
	}
	for i := range defaults {
		defaults[i].ID = h.newID()
		defaults[i].ServerID = serverID
		defaults[i].CreatedAt = time.Now()
		if err := h.channels.Create(ctx, &defaults[i]); err != nil {
			return nil, err
		}
	}
	return defaults, nil
}

// ensureDefaultRoles creates the Admin/Member/Guest role catalog the first
// time a server has none, and returns the server's full role list either
// way. Member is flagged IsDefault so it is auto-assigned to every joiner.
func (h *Hub) ensureDefaultRoles(ctx context.Context, serverID string) ([]models.Role, error) {
	existing, err := h.roles.GetAll(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	defaults := []models.Role{
		{
			Name:     "Admin",
			Priority: 100,
			Color:    "#e63946",
			Permissions: map[models.PermissionKey]models.TriState{
				models.PermAdmin: models.Allow,
			},
		},
		{
			Name:     "Member",
			Priority: 10,
			Color:    "#457b9d",
			IsDefault: true,
			Permissions: map[models.PermissionKey]models.TriState{
				models.PermJoin:  models.Allow,
				models.PermSpeak: models.Allow,
				models.PermVideo: models.Allow,
			},
		},
		{
			Name:     "Guest",
			Priority: 0,
			Color:    "#8d99ae",
			Permissions: map[models.PermissionKey]models.TriState{
				models.PermJoin: models.Allow,
			},
		},
	}
	for i := range defaults {
		defaults[i].ID = h.newID()
		defaults[i].ServerID = serverID
		if err := h.roles.Create(ctx, &defaults[i]); err != nil {
			return nil, err
		}
	}
	return defaults, nil
}
