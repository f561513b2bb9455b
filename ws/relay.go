package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg"
)

// maxChatCiphertext bounds the base64 ciphertext length per the wire
// contract; a frame over this is rejected outright rather than relayed.
const maxChatCiphertext = 4 << 20 // 4 MiB

// handleChat implements the chat relay: in-channel requirement, the size
// cap, server-stamped timestamp, and the include-self fan-out policy so the
// sender's own client history matches what every other channel member sees.
func (h *Hub) handleChat(c *Connection, raw []byte) {
	var p chatPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed chat frame")
		return
	}
	if len(p.Ciphertext) > maxChatCiphertext {
		c.sendError(pkg.CodeChatTooLarge, "ciphertext exceeds 4 MiB")
		return
	}

	userID, serverID, channelID, ok := h.inChannelScope(c)
	if !ok {
		c.sendError(pkg.CodeNotInChannel, "join a channel first")
		return
	}

	encoding := "text"
	if p.Encoding != nil {
		encoding = *p.Encoding
	}

	msg := &models.ChatMessage{
		ID:         h.newID(),
		ChannelID:  channelID,
		SenderID:   userID,
		Ciphertext: p.Ciphertext,
		IV:         p.IV,
		KeyEpoch:   p.KeyEpoch,
		Encoding:   encoding,
		CreatedAt:  time.Now(),
	}
	if err := h.chat.Create(context.Background(), msg); err != nil {
		c.sendError(pkg.CodeInternalError, "failed to record chat message")
		return
	}

	h.BroadcastChannel(serverID, channelID, "", frame(TypeChat, map[string]any{
		"userId":     userID,
		"channelId":  channelID,
		"ciphertext": p.Ciphertext,
		"iv":         p.IV,
		"keyEpoch":   p.KeyEpoch,
		"encoding":   encoding,
		"timestamp":  msg.CreatedAt.UnixMilli(),
	}))
}

// handleSpeaking is a pure channel broadcast excluding the sender; nothing
// is persisted, matching the connection's transient isMuted/isDeafened
// treatment of voice-activity signaling.
func (h *Hub) handleSpeaking(c *Connection, raw []byte) {
	var p speakingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed speaking frame")
		return
	}
	userID, serverID, channelID, ok := h.inChannelScope(c)
	if !ok {
		c.sendError(pkg.CodeNotInChannel, "join a channel first")
		return
	}
	h.BroadcastChannel(serverID, channelID, userID, frame(TypeSpeaking, map[string]any{
		"userId":   userID,
		"speaking": p.Speaking,
	}))
}

// handleE2EE relays an opaque end-to-end-encrypted payload per the routing
// table in the E2EE relay design: the server only ever reads `kind` and, for
// unicast variants, `targetUserId` — never the encrypted body itself.
func (h *Hub) handleE2EE(c *Connection, raw []byte) {
	var p e2eePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed e2ee frame")
		return
	}
	var inner e2eeInner
	if err := json.Unmarshal(p.Payload, &inner); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed e2ee payload")
		return
	}

	c.mu.RLock()
	userID, serverID, channelID := c.userID, c.serverID, c.channelID
	c.mu.RUnlock()
	if serverID == "" {
		c.sendError(pkg.CodeNotInServer, "join a server first")
		return
	}

	out := frame(TypeE2EE, map[string]any{
		"fromUserId": userID,
		"payload":    json.RawMessage(p.Payload),
	})

	switch inner.Kind {
	case "encrypted-channel-key", "verification-request", "verification-confirm":
		h.unicast(serverID, inner.TargetUserID, out)
	case "public-key-announce":
		if inner.TargetUserID != nil {
			h.unicast(serverID, inner.TargetUserID, out)
			return
		}
		if channelID == "" {
			return
		}
		h.BroadcastChannel(serverID, channelID, userID, out)
	case "key-ratchet":
		if channelID == "" {
			return
		}
		h.BroadcastChannel(serverID, channelID, userID, out)
	default:
		c.sendError(pkg.CodeInvalidJSON, "unknown e2ee payload kind")
	}
}

// unicast delivers data to targetUserID iff that user is online and on the
// same server as the sender; the target's serverId is compared with the
// sender's after the lookup and before anything is sent, so cross-server
// delivery never happens.
func (h *Hub) unicast(senderServerID string, targetUserID *string, data []byte) {
	if targetUserID == nil {
		return
	}
	target, ok := h.connectionForUser(*targetUserID)
	if !ok {
		return
	}
	target.mu.RLock()
	sameServer := target.serverID == senderServerID
	target.mu.RUnlock()
	if !sameServer {
		return
	}
	target.sendFrame(data)
}
