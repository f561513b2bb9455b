package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/ehrma/signalcore/pkg"
)

func roomName(serverID, channelID string) string {
	return serverID + ":" + channelID
}

type router struct {
	rtpCapabilities []byte
	producers       map[string]*Producer
}

type peer struct {
	transports map[string]*Transport
	producers  map[string]*Producer
	consumers  map[string]*Consumer
}

func newPeer() *peer {
	return &peer{
		transports: map[string]*Transport{},
		producers:  map[string]*Producer{},
		consumers:  map[string]*Consumer{},
	}
}

// Adapter is the per-process façade the hub drives. It owns no network
// sockets of its own — every call delegates to an SFULibrary implementation
// and keeps the indexing (producer counts, per-peer ownership) the hub needs
// to enforce caps and fan out producer-closed notifications.
type Adapter struct {
	lib SFULibrary

	mu      sync.Mutex
	routers map[string]*router // keyed by roomName
	peers   map[string]*peer   // keyed by connection id
}

func NewAdapter(lib SFULibrary) *Adapter {
	return &Adapter{
		lib:     lib,
		routers: map[string]*router{},
		peers:   map[string]*peer{},
	}
}

func (a *Adapter) peerFor(connID string) *peer {
	p, ok := a.peers[connID]
	if !ok {
		p = newPeer()
		a.peers[connID] = p
	}
	return p
}

// EnsureRouter allocates the channel's router lazily and returns its RTP
// capabilities, verbatim from the SFU library.
func (a *Adapter) EnsureRouter(ctx context.Context, serverID, channelID string) ([]byte, error) {
	room := roomName(serverID, channelID)

	a.mu.Lock()
	r, ok := a.routers[room]
	a.mu.Unlock()
	if ok {
		return r.rtpCapabilities, nil
	}

	caps, err := a.lib.CreateRouter(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create router", pkg.ErrInternal)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.routers[room]; ok {
		return existing.rtpCapabilities, nil
	}
	a.routers[room] = &router{rtpCapabilities: caps, producers: map[string]*Producer{}}
	return caps, nil
}

func (a *Adapter) CreateTransport(ctx context.Context, connID, identity, serverID, channelID string, direction Direction) (TransportParams, error) {
	room := roomName(serverID, channelID)
	params, err := a.lib.CreateTransport(ctx, room, identity, direction)
	if err != nil {
		return TransportParams{}, fmt.Errorf("%w: failed to create transport", pkg.ErrInternal)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.peerFor(connID).transports[params.ID] = &Transport{ID: params.ID, Direction: direction, Params: params}
	return params, nil
}

func (a *Adapter) ConnectTransport(ctx context.Context, connID, serverID, channelID, transportID string, dtlsParameters []byte) error {
	room := roomName(serverID, channelID)

	a.mu.Lock()
	p, ok := a.peers[connID]
	a.mu.Unlock()
	if !ok || p.transports[transportID] == nil {
		return fmt.Errorf("%w: unknown transport", pkg.ErrBadRequest)
	}

	if err := a.lib.ConnectTransport(ctx, room, transportID, dtlsParameters); err != nil {
		return fmt.Errorf("%w: failed to connect transport", pkg.ErrInternal)
	}
	return nil
}

// ProducerCount reports how many live producers of kind exist in the
// channel, across every connection — used to enforce per-channel caps before
// calling Produce.
func (a *Adapter) ProducerCount(serverID, channelID string, kind Kind) int {
	room := roomName(serverID, channelID)

	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.routers[room]
	if !ok {
		return 0
	}
	n := 0
	for _, prod := range r.producers {
		if prod.Kind == kind {
			n++
		}
	}
	return n
}

func (a *Adapter) Produce(ctx context.Context, connID, serverID, channelID, transportID string, kind Kind, rtpParameters []byte) (string, error) {
	room := roomName(serverID, channelID)

	a.mu.Lock()
	p, ok := a.peers[connID]
	a.mu.Unlock()
	if !ok || p.transports[transportID] == nil {
		return "", fmt.Errorf("%w: unknown transport", pkg.ErrBadRequest)
	}

	producerID, err := a.lib.Produce(ctx, room, transportID, kind, rtpParameters)
	if err != nil {
		return "", fmt.Errorf("%w: failed to produce", pkg.ErrInternal)
	}

	prod := &Producer{ID: producerID, TransportID: transportID, Kind: kind, OwnerConnID: connID}

	a.mu.Lock()
	defer a.mu.Unlock()
	p.producers[producerID] = prod
	r, ok := a.routers[room]
	if !ok {
		r = &router{producers: map[string]*Producer{}}
		a.routers[room] = r
	}
	r.producers[producerID] = prod
	return producerID, nil
}

// StopProducer closes a producer the caller owns and returns it for
// producer-closed fan-out. Returns nil, nil if the caller does not own (or
// the producer no longer exists) so callers can no-op silently.
func (a *Adapter) StopProducer(ctx context.Context, connID, serverID, channelID, producerID string) (*Producer, error) {
	room := roomName(serverID, channelID)

	a.mu.Lock()
	p, ok := a.peers[connID]
	if !ok {
		a.mu.Unlock()
		return nil, nil
	}
	prod, ok := p.producers[producerID]
	a.mu.Unlock()
	if !ok {
		return nil, nil
	}

	if err := a.lib.CloseProducer(ctx, room, producerID); err != nil {
		return nil, fmt.Errorf("%w: failed to close producer", pkg.ErrInternal)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	delete(p.producers, producerID)
	if r, ok := a.routers[room]; ok {
		delete(r.producers, producerID)
	}
	return prod, nil
}

func (a *Adapter) Consume(ctx context.Context, connID, serverID, channelID, transportID, producerID string, rtpCapabilities []byte) (consumerID string, rtpParameters []byte, ok bool, err error) {
	room := roomName(serverID, channelID)

	a.mu.Lock()
	p, exists := a.peers[connID]
	a.mu.Unlock()
	if !exists || p.transports[transportID] == nil {
		return "", nil, false, fmt.Errorf("%w: unknown transport", pkg.ErrBadRequest)
	}

	consumerID, rtpParameters, canConsume, err := a.lib.Consume(ctx, room, transportID, producerID, rtpCapabilities)
	if err != nil {
		return "", nil, false, fmt.Errorf("%w: failed to consume", pkg.ErrInternal)
	}
	if !canConsume {
		return "", nil, false, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	p.consumers[consumerID] = &Consumer{ID: consumerID, TransportID: transportID, ProducerID: producerID, RTPParams: rtpParameters, Paused: true}
	return consumerID, rtpParameters, true, nil
}

func (a *Adapter) ResumeConsumer(ctx context.Context, connID, serverID, channelID, consumerID string) error {
	room := roomName(serverID, channelID)

	a.mu.Lock()
	p, ok := a.peers[connID]
	a.mu.Unlock()
	if !ok || p.consumers[consumerID] == nil {
		return fmt.Errorf("%w: unknown consumer", pkg.ErrBadRequest)
	}

	if err := a.lib.ResumeConsumer(ctx, room, consumerID); err != nil {
		return fmt.Errorf("%w: failed to resume consumer", pkg.ErrInternal)
	}

	a.mu.Lock()
	p.consumers[consumerID].Paused = false
	a.mu.Unlock()
	return nil
}

func clampLayer(v int) int {
	if v < 0 {
		return 0
	}
	if v > 2 {
		return 2
	}
	return v
}

func (a *Adapter) SetPreferredLayers(ctx context.Context, connID, serverID, channelID, consumerID string, spatialLayer, temporalLayer int) error {
	room := roomName(serverID, channelID)

	a.mu.Lock()
	p, ok := a.peers[connID]
	a.mu.Unlock()
	if !ok || p.consumers[consumerID] == nil {
		return fmt.Errorf("%w: unknown consumer", pkg.ErrBadRequest)
	}

	return a.lib.SetPreferredLayers(ctx, room, consumerID, clampLayer(spatialLayer), clampLayer(temporalLayer))
}

// ProducersInChannel lists every live producer currently in the channel, for
// replay to a client that just joined.
func (a *Adapter) ProducersInChannel(serverID, channelID string) []Producer {
	room := roomName(serverID, channelID)

	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.routers[room]
	if !ok {
		return nil
	}
	out := make([]Producer, 0, len(r.producers))
	for _, p := range r.producers {
		out = append(out, *p)
	}
	return out
}

// ClosePeer tears down every transport, producer and consumer owned by
// connID (on leave-channel or disconnect) and returns the producers that
// were closed, for producer-closed fan-out.
func (a *Adapter) ClosePeer(ctx context.Context, connID, serverID, channelID string) []Producer {
	room := roomName(serverID, channelID)

	a.mu.Lock()
	p, ok := a.peers[connID]
	if !ok {
		a.mu.Unlock()
		return nil
	}
	delete(a.peers, connID)
	r := a.routers[room]

	closed := make([]Producer, 0, len(p.producers))
	for id, prod := range p.producers {
		closed = append(closed, *prod)
		if r != nil {
			delete(r.producers, id)
		}
	}
	transportIDs := make([]string, 0, len(p.transports))
	for id := range p.transports {
		transportIDs = append(transportIDs, id)
	}
	a.mu.Unlock()

	for _, id := range transportIDs {
		_ = a.lib.CloseTransport(ctx, room, id)
	}
	return closed
}
