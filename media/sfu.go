package media

import "context"

// SFULibrary is the boundary to the actual media engine. The signaling core
// never implements RTP forwarding itself — this interface is what a real SFU
// client library (mediasoup-worker bindings, a LiveKit room, or similar)
// would satisfy. The hub and this package only ever talk to routers,
// transports, producers and consumers through it.
type SFULibrary interface {
	// CreateRouter returns an opaque capabilities blob for a freshly
	// allocated (or already-running) router scoped to roomName.
	CreateRouter(ctx context.Context, roomName string) (routerRTPCapabilities []byte, err error)

	CreateTransport(ctx context.Context, roomName, identity string, direction Direction) (TransportParams, error)

	ConnectTransport(ctx context.Context, roomName, transportID string, dtlsParameters []byte) error

	Produce(ctx context.Context, roomName, transportID string, kind Kind, rtpParameters []byte) (producerID string, err error)

	CloseProducer(ctx context.Context, roomName, producerID string) error

	// Consume returns canConsume=false when the router reports the producer
	// is not consumable with the given capabilities (CANNOT_CONSUME).
	Consume(ctx context.Context, roomName, transportID, producerID string, rtpCapabilities []byte) (consumerID string, rtpParameters []byte, canConsume bool, err error)

	ResumeConsumer(ctx context.Context, roomName, consumerID string) error

	SetPreferredLayers(ctx context.Context, roomName, consumerID string, spatialLayer, temporalLayer int) error

	CloseTransport(ctx context.Context, roomName, transportID string) error
}
