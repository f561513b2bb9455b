package ws

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg/ratelimit"
)

func authResultFrame(success bool, userID, message string) []byte {
	fields := map[string]any{"success": success}
	if userID != "" {
		fields["userId"] = userID
	}
	if message != "" {
		fields["message"] = message
	}
	return frame(TypeAuthResult, fields)
}

type joinedServerMember struct {
	UserID    string  `json:"userId"`
	Nickname  string  `json:"nickname"`
	ChannelID *string `json:"channelId,omitempty"`
	Muted     bool    `json:"muted"`
	Deafened  bool    `json:"deafened"`
	PublicKey *string `json:"publicKey,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
	RoleIDs   []string `json:"roleIds"`
}

// handleAuth runs the full auth protocol described for the "auth" message:
// pre-auth rate limiting, password/credential verification, identity
// resolution, ban check, single-session enforcement, member/role
// enrollment, and the joined-server reply. It is only ever called from
// dispatch while the connection is in stateOpened.
func (h *Hub) handleAuth(c *Connection, raw []byte) {
	if !h.ipLimit.Allow(c.remoteAddr) {
		c.sendFrame(authResultFrame(false, "", "Too many auth attempts"))
		h.forceClose(c)
		return
	}

	var p authPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendFrame(authResultFrame(false, "", "malformed auth frame"))
		h.forceClose(c)
		return
	}

	ctx := context.Background()

	srv, err := h.ensureDefaultServer(ctx)
	if err != nil {
		c.sendFrame(authResultFrame(false, "", "internal error"))
		h.forceClose(c)
		return
	}

	var publicKey string
	if p.PublicKey != nil {
		publicKey = *p.PublicKey
	}

	ok, failMessage := h.verifyAuth(ctx, srv, p, publicKey)
	if !ok {
		c.sendFrame(authResultFrame(false, "", failMessage))
		h.forceClose(c)
		return
	}

	user, err := h.resolveUser(ctx, publicKey, p.Nickname)
	if err != nil {
		c.sendFrame(authResultFrame(false, "", "internal error"))
		h.forceClose(c)
		return
	}

	banned, err := h.bans.IsBanned(ctx, user.ID, srv.ID)
	if err != nil {
		c.sendFrame(authResultFrame(false, "", "internal error"))
		h.forceClose(c)
		return
	}
	if banned {
		c.sendFrame(authResultFrame(false, "", "you are banned from this server"))
		h.forceClose(c)
		return
	}

	isAdmin := p.AdminToken != nil && h.cfg.AdminToken != "" && *p.AdminToken == h.cfg.AdminToken

	if err := h.members.EnsureMember(ctx, user.ID, srv.ID, p.Nickname); err != nil {
		c.sendFrame(authResultFrame(false, "", "internal error"))
		h.forceClose(c)
		return
	}

	roles, err := h.ensureDefaultRoles(ctx, srv.ID)
	if err != nil {
		c.sendFrame(authResultFrame(false, "", "internal error"))
		h.forceClose(c)
		return
	}
	channels, err := h.ensureDefaultChannels(ctx, srv.ID)
	if err != nil {
		c.sendFrame(authResultFrame(false, "", "internal error"))
		h.forceClose(c)
		return
	}

	hasRole, err := h.members.HasAnyRole(ctx, user.ID, srv.ID)
	if err != nil {
		c.sendFrame(authResultFrame(false, "", "internal error"))
		h.forceClose(c)
		return
	}
	if !hasRole {
		for _, r := range roles {
			if r.IsDefault {
				_ = h.members.AssignRole(ctx, user.ID, srv.ID, r.ID)
				break
			}
		}
	}

	perms, err := h.perms.Resolve(ctx, user.ID, srv.ID, "")
	if err != nil {
		c.sendFrame(authResultFrame(false, "", "internal error"))
		h.forceClose(c)
		return
	}
	if isAdmin {
		perms = models.AllAllow()
	}

	c.mu.Lock()
	c.userID = user.ID
	c.nickname = p.Nickname
	c.serverID = srv.ID
	c.isAdmin = isAdmin
	if publicKey != "" {
		c.publicKey = &publicKey
	}
	c.limiter = ratelimit.NewCategoryLimiter(ratelimit.DefaultLimits)
	c.state = stateAuthenticated
	c.mu.Unlock()

	h.registerAuthenticated(c)

	c.sendFrame(authResultFrame(true, user.ID, ""))
	c.sendFrame(h.buildJoinedServer(ctx, srv, channels, roles, perms))
}

// verifyAuth implements the three success branches and the
// credential-without-publicKey rejection. It returns (false, message) on
// any failure path that should send auth-result and close the socket.
func (h *Hub) verifyAuth(ctx context.Context, srv *models.Server, p authPayload, publicKey string) (bool, string) {
	if p.Credential != nil {
		if publicKey == "" {
			return false, "credential requires a publicKey"
		}
		result, err := h.invites.Bind(ctx, *p.Credential, srv.ID, publicKey)
		if err != nil || !result.OK {
			return false, "invalid or already-bound credential"
		}
		return true, ""
	}

	if srv.PasswordHash == nil {
		return true, ""
	}

	if p.Password != nil && bcrypt.CompareHashAndPassword([]byte(*srv.PasswordHash), []byte(*p.Password)) == nil {
		return true, ""
	}

	return false, "invalid password"
}

func (h *Hub) resolveUser(ctx context.Context, publicKey, nickname string) (*models.User, error) {
	if publicKey != "" {
		user, err := h.users.GetByPublicKey(ctx, publicKey)
		if err == nil {
			return user, nil
		}
	}

	user := &models.User{
		ID:        h.newID(),
		Nickname:  nickname,
		CreatedAt: time.Now(),
	}
	if publicKey != "" {
		user.PublicKey = &publicKey
	}
	if err := h.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (h *Hub) buildJoinedServer(ctx context.Context, srv *models.Server, channels []models.Channel, roles []models.Role, myPerms models.PermissionSet) []byte {
	members, err := h.members.ListMembers(ctx, srv.ID)
	if err != nil {
		members = nil
	}

	liveByUser := make(map[string]*Connection)
	h.mu.RLock()
	for uid, c := range h.byUser {
		liveByUser[uid] = c
	}
	h.mu.RUnlock()

	out := make([]joinedServerMember, 0, len(members))
	for _, m := range members {
		jm := joinedServerMember{
			UserID:    m.UserID,
			Nickname:  m.Nickname,
			PublicKey: m.PublicKey,
			AvatarURL: m.AvatarRef,
			RoleIDs:   m.RoleIDs,
		}
		if live, ok := liveByUser[m.UserID]; ok {
			live.mu.RLock()
			if live.channelID != "" {
				ch := live.channelID
				jm.ChannelID = &ch
			}
			jm.Muted = live.isMuted
			jm.Deafened = live.isDeafened
			live.mu.RUnlock()
		}
		out = append(out, jm)
	}

	return frame(TypeJoinedServer, map[string]any{
		"serverId":    srv.ID,
		"name":        srv.Name,
		"description": srv.Description,
		"iconUrl":     srv.IconRef,
		"producerCaps": map[string]int{
			"webcam": srv.MaxWebcamProducers,
			"screen": srv.MaxScreenProducers,
		},
		"channels":      channels,
		"members":       out,
		"roles":         roles,
		"myPermissions": myPerms,
	})
}
