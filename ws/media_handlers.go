package ws

import (
	"context"
	"encoding/json"

	"github.com/ehrma/signalcore/media"
	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg"
)

func (h *Hub) handleRTPCapabilities(c *Connection, raw []byte) {
	var p rtpCapabilitiesPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed rtp-capabilities frame")
		return
	}
	c.mu.Lock()
	c.rtpCapabilities = p.RTPCapabilities
	c.mu.Unlock()
}

func (h *Hub) inChannelScope(c *Connection) (userID, serverID, channelID string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.serverID, c.channelID, c.state == stateInChannel
}

func (h *Hub) handleCreateTransport(c *Connection, raw []byte) {
	var p createTransportPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed create-transport frame")
		return
	}
	userID, serverID, channelID, ok := h.inChannelScope(c)
	if !ok {
		c.sendError(pkg.CodeNotInChannel, "join a channel first")
		return
	}

	direction := media.DirectionRecv
	if p.Direction == string(media.DirectionSend) {
		direction = media.DirectionSend
	}

	params, err := h.media.CreateTransport(context.Background(), userID, userID, serverID, channelID, direction)
	if err != nil {
		c.sendError(pkg.CodeInternalError, "failed to create transport")
		return
	}
	c.sendFrame(frame(TypeTransportCreated, map[string]any{
		"transportId":    params.ID,
		"iceParameters":  params.ICEParameters,
		"iceCandidates":  params.ICECandidates,
		"dtlsParameters": params.DTLSParameters,
	}))
}

func (h *Hub) handleConnectTransport(c *Connection, raw []byte) {
	var p connectTransportPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed connect-transport frame")
		return
	}
	userID, serverID, channelID, ok := h.inChannelScope(c)
	if !ok {
		c.sendError(pkg.CodeNotInChannel, "join a channel first")
		return
	}

	if err := h.media.ConnectTransport(context.Background(), userID, serverID, channelID, p.TransportID, p.DTLSParameters); err != nil {
		c.sendError(pkg.CodeInternalError, "failed to connect transport")
	}
}

// mediaTypePermission maps a produce mediaType to the permission key that
// gates it, per the produce contract.
func mediaTypePermission(kind media.Kind) models.PermissionKey {
	switch kind {
	case media.KindWebcam:
		return models.PermVideo
	case media.KindScreen, media.KindScreenAudio:
		return models.PermScreenShare
	default:
		return models.PermSpeak
	}
}

// producerCap returns the server's per-channel producer cap for kind: webcam
// and screen (with screen-audio) are capped; mic returns 0, meaning uncapped.
func (h *Hub) producerCap(srv *models.Server, kind media.Kind) int {
	switch kind {
	case media.KindWebcam:
		return srv.MaxWebcamProducers
	case media.KindScreen, media.KindScreenAudio:
		return srv.MaxScreenProducers
	default:
		return 0
	}
}

func (h *Hub) handleProduce(c *Connection, raw []byte) {
	var p producePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed produce frame")
		return
	}
	userID, serverID, channelID, ok := h.inChannelScope(c)
	if !ok {
		c.sendError(pkg.CodeNotInChannel, "join a channel first")
		return
	}

	kind := media.Kind(p.MediaType)
	ctx := context.Background()

	perms, err := h.perms.Resolve(ctx, userID, serverID, channelID)
	if err != nil {
		c.sendError(pkg.CodeInternalError, "failed to resolve permissions")
		return
	}
	c.mu.RLock()
	isAdmin := c.isAdmin
	c.mu.RUnlock()
	if !isAdmin && !perms.Has(mediaTypePermission(kind)) {
		c.sendError(pkg.CodeNoPermission, "missing permission for this media type")
		return
	}

	if cap := h.capForKind(ctx, serverID, kind); cap > 0 {
		if h.media.ProducerCount(serverID, channelID, kind) >= cap {
			c.sendError(pkg.CodeProducerLimit, "producer cap reached for this media type")
			return
		}
	}

	producerID, err := h.media.Produce(ctx, userID, serverID, channelID, p.TransportID, kind, p.RTPParameters)
	if err != nil {
		c.sendError(pkg.CodeInternalError, "failed to produce")
		return
	}

	c.sendFrame(frame(TypeProduced, map[string]any{"producerId": producerID, "mediaType": p.MediaType}))
	h.BroadcastChannel(serverID, channelID, userID, frame(TypeNewProducer, map[string]any{
		"producerId": producerID, "kind": p.MediaType, "userId": userID,
	}))
}

func (h *Hub) capForKind(ctx context.Context, serverID string, kind media.Kind) int {
	srv, err := h.servers.GetByID(ctx, serverID)
	if err != nil {
		return 0
	}
	return h.producerCap(srv, kind)
}

func (h *Hub) handleStopProducer(c *Connection, raw []byte) {
	var p stopProducerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed stop-producer frame")
		return
	}
	userID, serverID, channelID, ok := h.inChannelScope(c)
	if !ok {
		c.sendError(pkg.CodeNotInChannel, "join a channel first")
		return
	}

	prod, err := h.media.StopProducer(context.Background(), userID, serverID, channelID, p.ProducerID)
	if err != nil {
		c.sendError(pkg.CodeInternalError, "failed to stop producer")
		return
	}
	if prod == nil {
		return
	}
	h.BroadcastChannel(serverID, channelID, userID, frame(TypeProducerClosed, map[string]any{
		"producerId": prod.ID, "userId": userID,
	}))
}

func (h *Hub) handleConsume(c *Connection, raw []byte) {
	var p consumePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed consume frame")
		return
	}
	userID, serverID, channelID, ok := h.inChannelScope(c)
	if !ok {
		c.sendError(pkg.CodeNotInChannel, "join a channel first")
		return
	}

	c.mu.RLock()
	rtpCaps := c.rtpCapabilities
	c.mu.RUnlock()
	if rtpCaps == nil {
		c.sendError(pkg.CodeNotReady, "send rtp-capabilities before consuming")
		return
	}

	transportID := h.recvTransportFor(userID)
	consumerID, rtpParameters, canConsume, err := h.media.Consume(context.Background(), userID, serverID, channelID, transportID, p.ProducerID, rtpCaps)
	if err != nil {
		c.sendError(pkg.CodeInternalError, "failed to consume")
		return
	}
	if !canConsume {
		c.sendError(pkg.CodeCannotConsume, "router cannot produce a compatible consumer")
		return
	}
	c.sendFrame(frame(TypeConsumeResult, map[string]any{
		"consumerId":    consumerID,
		"producerId":    p.ProducerID,
		"rtpParameters": json.RawMessage(rtpParameters),
	}))
}

// recvTransportFor is a placeholder for resolving which of the caller's
// transports is the recv-direction one; the wire contract leaves transport
// selection to the adapter's own bookkeeping since a peer has at most one
// recv transport per channel in this deployment.
func (h *Hub) recvTransportFor(userID string) string {
	return userID + ":recv"
}

func (h *Hub) handleResumeConsumer(c *Connection, raw []byte) {
	var p resumeConsumerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed resume-consumer frame")
		return
	}
	userID, serverID, channelID, ok := h.inChannelScope(c)
	if !ok {
		c.sendError(pkg.CodeNotInChannel, "join a channel first")
		return
	}
	if err := h.media.ResumeConsumer(context.Background(), userID, serverID, channelID, p.ConsumerID); err != nil {
		c.sendError(pkg.CodeInternalError, "failed to resume consumer")
	}
}

func (h *Hub) handleSetPreferredLayers(c *Connection, raw []byte) {
	var p setPreferredLayersPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(pkg.CodeInvalidJSON, "malformed set-preferred-layers frame")
		return
	}
	userID, serverID, channelID, ok := h.inChannelScope(c)
	if !ok {
		c.sendError(pkg.CodeNotInChannel, "join a channel first")
		return
	}
	temporal := 0
	if p.TemporalLayer != nil {
		temporal = *p.TemporalLayer
	}
	if err := h.media.SetPreferredLayers(context.Background(), userID, serverID, channelID, p.ConsumerID, p.SpatialLayer, temporal); err != nil {
		c.sendError(pkg.CodeInternalError, "failed to set preferred layers")
	}
}
