package ws

import (
	"context"
	"encoding/json"

	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg"
)

func (h *Hub) channelUserIDs(serverID, channelID string) []string {
	conns := h.connectionsInChannel(serverID, channelID)
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.userID)
	}
	return ids
}

// joinChannelFor implements the full join-channel contract: permission and
// capacity checks, leaving any current channel first, router allocation,
// the joined-channel reply plus new-producer replay, and the two
// broadcasts. It is shared by the join-channel handler and move-user, which
// runs the same semantics against a target connection.
func (h *Hub) joinChannelFor(ctx context.Context, c *Connection, channelID string) error {
	c.mu.RLock()
	serverID := c.serverID
	userID := c.userID
	c.mu.RUnlock()

	channel, err := h.channels.GetByID(ctx, channelID)
	if err != nil || channel.ServerID != serverID {
		return errWS(pkg.CodeChannelNotFound, "channel not found")
	}

	perms, err := h.perms.Resolve(ctx, userID, serverID, channelID)
	if err != nil {
		return errWS(pkg.CodeInternalError, "failed to resolve permissions")
	}
	if !perms.Has(models.PermJoin) {
		return errWS(pkg.CodeNoPermission, "missing join permission")
	}

	if channel.MaxUsers > 0 && len(h.connectionsInChannel(serverID, channelID)) >= channel.MaxUsers {
		return errWS(pkg.CodeChannelFull, "channel is full")
	}

	h.leaveCurrentChannel(ctx, c)

	caps, err := h.media.EnsureRouter(ctx, serverID, channelID)
	if err != nil {
		return errWS(pkg.CodeInternalError, "failed to allocate router")
	}

	c.mu.Lock()
	c.channelID = channelID
	c.state = stateInChannel
	c.mu.Unlock()

	c.sendFrame(frame(TypeJoinedChannel, map[string]any{
		"channelId":             channelID,
		"users":                 h.channelUserIDs(serverID, channelID),
		"routerRtpCapabilities": json.RawMessage(caps),
	}))

	for _, p := range h.media.ProducersInChannel(serverID, channelID) {
		if p.OwnerConnID == userID {
			continue
		}
		c.sendFrame(frame(TypeNewProducer, map[string]any{
			"producerId": p.ID,
			"kind":       p.Kind,
			"userId":     p.OwnerConnID,
		}))
	}

	h.BroadcastChannel(serverID, channelID, userID, frame(TypeUserJoinedChannel, map[string]any{
		"channelId": channelID,
		"userId":    userID,
	}))
	h.BroadcastServer(serverID, userID, frame(TypeUserUpdated, map[string]any{
		"userId":    userID,
		"channelId": channelID,
	}))
	return nil
}

// leaveCurrentChannel is a no-op if c is not currently in a channel.
// Otherwise it closes every producer the connection owns (broadcasting
// producer-closed for each), tears down its transports, clears channelId,
// and broadcasts user-left-channel / user-updated. Safe to call as the
// first step of both leave-channel and join-channel.
func (h *Hub) leaveCurrentChannel(ctx context.Context, c *Connection) {
	c.mu.RLock()
	serverID := c.serverID
	channelID := c.channelID
	userID := c.userID
	c.mu.RUnlock()

	if channelID == "" {
		return
	}

	closed := h.media.ClosePeer(ctx, userID, serverID, channelID)
	for _, p := range closed {
		h.BroadcastChannel(serverID, channelID, userID, frame(TypeProducerClosed, map[string]any{
			"producerId": p.ID,
			"userId":     userID,
		}))
	}

	c.mu.Lock()
	c.channelID = ""
	c.state = stateAuthenticated
	c.mu.Unlock()

	h.BroadcastChannel(serverID, channelID, userID, frame(TypeUserLeftChannel, map[string]any{
		"channelId": channelID,
		"userId":    userID,
	}))
	h.BroadcastServer(serverID, userID, frame(TypeUserUpdated, map[string]any{
		"userId":    userID,
		"channelId": nil,
	}))
}

func (h *Hub) handleJoinChannel(c *Connection, raw []byte) {
	var p joinChannelPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed join-channel frame")
		return
	}
	if err := h.joinChannelFor(context.Background(), c, p.ChannelID); err != nil {
		sendWSErr(c, err)
	}
}

func (h *Hub) handleLeaveChannel(c *Connection, raw []byte) {
	h.leaveCurrentChannel(context.Background(), c)
}
