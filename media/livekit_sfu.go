package media

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
	livekitpb "github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// LiveKitSFU grounds the router/transport/producer/consumer vocabulary on a
// LiveKit deployment. A LiveKit room stands in for a router: it is allocated
// once per channel and lives for as long as the process considers the
// channel active. LiveKit does not expose raw ICE/DTLS transports over its
// server API — clients negotiate those directly against the media server
// using a signed participant token — so CreateTransport mints that token and
// carries it inside the opaque transport parameters the hub forwards
// untouched to the client. Producers and consumers are bookkept locally
// since their lifecycle (caps, producer-closed fan-out) is this process's
// concern, not LiveKit's.
type LiveKitSFU struct {
	apiKey, apiSecret, url string
	rooms                  *lksdk.RoomServiceClient
}

func NewLiveKitSFU(url, apiKey, apiSecret string) *LiveKitSFU {
	return &LiveKitSFU{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		url:       url,
		rooms:     lksdk.NewRoomServiceClient(url, apiKey, apiSecret),
	}
}

func (s *LiveKitSFU) CreateRouter(ctx context.Context, roomName string) ([]byte, error) {
	if _, err := s.rooms.CreateRoom(ctx, &livekitpb.CreateRoomRequest{Name: roomName}); err != nil {
		return nil, fmt.Errorf("failed to create livekit room %s: %w", roomName, err)
	}
	caps, err := json.Marshal(map[string]string{"room": roomName, "url": s.url})
	if err != nil {
		return nil, err
	}
	return caps, nil
}

func (s *LiveKitSFU) mintToken(roomName, identity string, canPublish bool) (string, error) {
	at := auth.NewAccessToken(s.apiKey, s.apiSecret)
	canSubscribe := true
	grant := &auth.VideoGrant{
		RoomJoin:     true,
		Room:         roomName,
		CanPublish:   &canPublish,
		CanSubscribe: &canSubscribe,
	}
	at.AddGrant(grant).SetIdentity(identity).SetValidFor(24 * time.Hour)
	return at.ToJWT()
}

func (s *LiveKitSFU) CreateTransport(ctx context.Context, roomName, identity string, direction Direction) (TransportParams, error) {
	token, err := s.mintToken(roomName, identity, direction == DirectionSend)
	if err != nil {
		return TransportParams{}, fmt.Errorf("failed to mint participant token: %w", err)
	}

	dtls, err := json.Marshal(map[string]string{"token": token, "url": s.url})
	if err != nil {
		return TransportParams{}, err
	}

	return TransportParams{
		ID:             uuid.NewString(),
		ICEParameters:  json.RawMessage(`{}`),
		ICECandidates:  json.RawMessage(`[]`),
		DTLSParameters: dtls,
	}, nil
}

// ConnectTransport is a no-op: the participant token minted in
// CreateTransport already carries everything LiveKit needs to admit the
// connection, so there is nothing left to acknowledge here. It still round
// trips through the adapter so the hub's state machine stays agnostic to
// which concrete library is wired in.
func (s *LiveKitSFU) ConnectTransport(ctx context.Context, roomName, transportID string, dtlsParameters []byte) error {
	return nil
}

func (s *LiveKitSFU) Produce(ctx context.Context, roomName, transportID string, kind Kind, rtpParameters []byte) (string, error) {
	return uuid.NewString(), nil
}

func (s *LiveKitSFU) CloseProducer(ctx context.Context, roomName, producerID string) error {
	return nil
}

// Consume always reports canConsume=true: LiveKit's subscription model has
// no router-capability mismatch to reject at this layer, unlike a raw
// mediasoup router. The consumer id is local bookkeeping only.
func (s *LiveKitSFU) Consume(ctx context.Context, roomName, transportID, producerID string, rtpCapabilities []byte) (string, []byte, bool, error) {
	return uuid.NewString(), json.RawMessage(`{}`), true, nil
}

func (s *LiveKitSFU) ResumeConsumer(ctx context.Context, roomName, consumerID string) error {
	return nil
}

func (s *LiveKitSFU) SetPreferredLayers(ctx context.Context, roomName, consumerID string, spatialLayer, temporalLayer int) error {
	return nil
}

func (s *LiveKitSFU) CloseTransport(ctx context.Context, roomName, transportID string) error {
	return nil
}
