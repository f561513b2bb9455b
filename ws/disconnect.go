package ws

import "context"

// runDisconnectCleanup implements the unconditional cleanup contract: every
// live producer of the closing connection gets a producer-closed broadcast,
// transports are torn down, user-left-channel/user-updated fire if
// applicable, and the connection is dropped from the registry. It is called
// through cleanupOnce so it runs exactly once regardless of whether the
// socket closed on its own, was kicked, banned, or heartbeat-terminated.
func (h *Hub) runDisconnectCleanup(c *Connection) {
	c.mu.RLock()
	userID := c.userID
	serverID := c.serverID
	c.mu.RUnlock()

	if userID == "" {
		return
	}

	h.leaveCurrentChannel(context.Background(), c)

	h.mu.Lock()
	if cur, ok := h.byUser[userID]; ok && cur == c {
		delete(h.byUser, userID)
	}
	h.mu.Unlock()

	_ = serverID
}
