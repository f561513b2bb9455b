package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg"
)

func (h *Hub) handleMute(c *Connection, raw []byte) {
	var p mutePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed mute frame")
		return
	}
	c.mu.Lock()
	c.isMuted = p.Muted
	serverID, userID := c.serverID, c.userID
	c.mu.Unlock()

	h.BroadcastServer(serverID, userID, frame(TypeUserUpdated, map[string]any{
		"userId": userID, "muted": p.Muted,
	}))
}

func (h *Hub) handleDeafen(c *Connection, raw []byte) {
	var p deafenPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed deafen frame")
		return
	}
	c.mu.Lock()
	c.isDeafened = p.Deafened
	serverID, userID := c.serverID, c.userID
	c.mu.Unlock()

	h.BroadcastServer(serverID, userID, frame(TypeUserUpdated, map[string]any{
		"userId": userID, "deafened": p.Deafened,
	}))
}

// callerPerms resolves c's effective permission set, short-circuited to
// all-allow for the connection's ephemeral-admin flag.
func (h *Hub) callerPerms(ctx context.Context, c *Connection, channelID string) (models.PermissionSet, error) {
	c.mu.RLock()
	isAdmin, userID, serverID := c.isAdmin, c.userID, c.serverID
	c.mu.RUnlock()
	if isAdmin {
		return models.AllAllow(), nil
	}
	return h.perms.Resolve(ctx, userID, serverID, channelID)
}

func (h *Hub) handleKick(c *Connection, raw []byte) {
	var p kickPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed kick frame")
		return
	}

	ctx := context.Background()
	perms, err := h.callerPerms(ctx, c, "")
	if err != nil || !perms.Has(models.PermKick) {
		c.sendError(pkg.CodeNoPermission, "missing kick permission")
		return
	}

	c.mu.RLock()
	serverID := c.serverID
	c.mu.RUnlock()

	target, ok := h.connectionForUser(p.UserID)
	if !ok {
		c.sendError(pkg.CodeNotInServer, "target is not on this server")
		return
	}
	target.mu.RLock()
	sameServer := target.serverID == serverID
	target.mu.RUnlock()
	if !sameServer {
		c.sendError(pkg.CodeNotInServer, "target is not on this server")
		return
	}

	reason := ""
	if p.Reason != nil {
		reason = *p.Reason
	}
	target.sendFrame(frame(TypeUserKicked, map[string]any{"userId": p.UserID, "reason": reason}))
	h.BroadcastServer(serverID, "", frame(TypeUserKicked, map[string]any{"userId": p.UserID, "reason": reason}))
	h.forceClose(target)
}

func (h *Hub) handleMoveUser(c *Connection, raw []byte) {
	var p moveUserPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed move-user frame")
		return
	}

	ctx := context.Background()
	perms, err := h.callerPerms(ctx, c, "")
	if err != nil || !perms.Has(models.PermMoveUsers) {
		c.sendError(pkg.CodeNoPermission, "missing moveUsers permission")
		return
	}

	c.mu.RLock()
	serverID := c.serverID
	c.mu.RUnlock()

	target, ok := h.connectionForUser(p.UserID)
	if !ok {
		c.sendError(pkg.CodeNotInServer, "target is not online")
		return
	}
	target.mu.RLock()
	sameServer := target.serverID == serverID
	target.mu.RUnlock()
	if !sameServer {
		c.sendError(pkg.CodeNotInServer, "target is not on this server")
		return
	}

	if err := h.joinChannelFor(ctx, target, p.ChannelID); err != nil {
		sendWSErr(c, err)
		return
	}

	h.BroadcastServer(serverID, "", frame(TypeUserMoved, map[string]any{
		"userId": p.UserID, "channelId": p.ChannelID,
	}))
}

func (h *Hub) handleBan(c *Connection, raw []byte) {
	var p banPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed ban frame")
		return
	}

	ctx := context.Background()
	perms, err := h.callerPerms(ctx, c, "")
	if err != nil || !perms.Has(models.PermBan) {
		c.sendError(pkg.CodeNoPermission, "missing ban permission")
		return
	}

	c.mu.RLock()
	serverID, callerID := c.serverID, c.userID
	c.mu.RUnlock()

	reason := ""
	if p.Reason != nil {
		reason = *p.Reason
	}
	ban := &models.Ban{
		ID:        h.newID(),
		ServerID:  serverID,
		UserID:    p.UserID,
		BannedBy:  callerID,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if err := h.bans.Create(ctx, ban); err != nil {
		c.sendError(pkg.CodeInternalError, "failed to record ban")
		return
	}

	payload := map[string]any{"userId": p.UserID, "reason": reason}
	h.SendToUser(p.UserID, frame(TypeUserBanned, payload))
	h.BroadcastServer(serverID, "", frame(TypeUserBanned, payload))

	if target, ok := h.connectionForUser(p.UserID); ok {
		h.forceClose(target)
	}
}

func (h *Hub) handleAssignRole(c *Connection, raw []byte) {
	h.mutateRole(c, raw, true)
}

func (h *Hub) handleUnassignRole(c *Connection, raw []byte) {
	h.mutateRole(c, raw, false)
}

func (h *Hub) mutateRole(c *Connection, raw []byte, assign bool) {
	var p roleAssignmentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed role assignment frame")
		return
	}

	ctx := context.Background()
	perms, err := h.callerPerms(ctx, c, "")
	if err != nil || !perms.Has(models.PermManageRoles) {
		c.sendError(pkg.CodeNoPermission, "missing manageRoles permission")
		return
	}

	c.mu.RLock()
	serverID := c.serverID
	c.mu.RUnlock()

	if assign {
		err = h.members.AssignRole(ctx, p.UserID, serverID, p.RoleID)
	} else {
		err = h.members.UnassignRole(ctx, p.UserID, serverID, p.RoleID)
	}
	if err != nil {
		c.sendError(pkg.CodeInternalError, "failed to update role assignment")
		return
	}

	h.perms.InvalidateUser(p.UserID)

	h.BroadcastServer(serverID, "", frame(TypeRoleAssigned, map[string]any{
		"userId": p.UserID, "roleId": p.RoleID, "assigned": assign,
	}))

	if target, ok := h.connectionForUser(p.UserID); ok {
		target.mu.RLock()
		targetChannel := target.channelID
		target.mu.RUnlock()
		updated, err := h.perms.Resolve(ctx, p.UserID, serverID, targetChannel)
		if err == nil {
			target.sendFrame(frame(TypePermissionsUpdated, map[string]any{
				"permissions": updated,
			}))
		}
	}
}
