package media

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeSFU is an in-memory stand-in for the real media engine, sufficient to
// exercise the adapter's bookkeeping (producer caps, ownership, cleanup)
// without a live SFU.
type fakeSFU struct {
	mu  sync.Mutex
	seq int64
}

func (f *fakeSFU) next(prefix string) string {
	n := atomic.AddInt64(&f.seq, 1)
	return prefix + "-" + string(rune('a'+n%26)) + string(rune('0'+n%10))
}

func (f *fakeSFU) CreateRouter(ctx context.Context, roomName string) ([]byte, error) {
	return json.Marshal(map[string]string{"room": roomName})
}

func (f *fakeSFU) CreateTransport(ctx context.Context, roomName, identity string, direction Direction) (TransportParams, error) {
	return TransportParams{ID: f.next("transport"), ICEParameters: []byte(`{}`), DTLSParameters: []byte(`{}`)}, nil
}

func (f *fakeSFU) ConnectTransport(ctx context.Context, roomName, transportID string, dtlsParameters []byte) error {
	return nil
}

func (f *fakeSFU) Produce(ctx context.Context, roomName, transportID string, kind Kind, rtpParameters []byte) (string, error) {
	return f.next("producer"), nil
}

func (f *fakeSFU) CloseProducer(ctx context.Context, roomName, producerID string) error { return nil }

func (f *fakeSFU) Consume(ctx context.Context, roomName, transportID, producerID string, rtpCapabilities []byte) (string, []byte, bool, error) {
	return f.next("consumer"), []byte(`{}`), true, nil
}

func (f *fakeSFU) ResumeConsumer(ctx context.Context, roomName, consumerID string) error { return nil }

func (f *fakeSFU) SetPreferredLayers(ctx context.Context, roomName, consumerID string, spatialLayer, temporalLayer int) error {
	return nil
}

func (f *fakeSFU) CloseTransport(ctx context.Context, roomName, transportID string) error { return nil }

// TestScenarioS4ProducerCap mirrors the literal producer-cap scenario: with a
// cap of 2, a third concurrent webcam producer in the same channel must be
// rejected by the caller checking ProducerCount, while a later mic producer
// from the rejected connection still succeeds.
func TestScenarioS4ProducerCap(t *testing.T) {
	a := NewAdapter(&fakeSFU{})
	ctx := context.Background()
	const cap = 2

	admit := func(connID string) bool {
		tp, err := a.CreateTransport(ctx, connID, connID, "srv", "chan", DirectionSend)
		if err != nil {
			t.Fatal(err)
		}
		if a.ProducerCount("srv", "chan", KindWebcam) >= cap {
			return false
		}
		if _, err := a.Produce(ctx, connID, "srv", "chan", tp.ID, KindWebcam, []byte(`{}`)); err != nil {
			t.Fatal(err)
		}
		return true
	}

	if !admit("conn1") || !admit("conn2") {
		t.Fatalf("expected the first two webcam producers to be admitted")
	}
	if admit("conn3") {
		t.Fatalf("expected the third webcam producer to be rejected by the cap")
	}

	tp, err := a.CreateTransport(ctx, "conn3", "conn3", "srv", "chan", DirectionSend)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Produce(ctx, "conn3", "srv", "chan", tp.ID, KindMic, []byte(`{}`)); err != nil {
		t.Fatalf("expected a mic producer from the capped connection to still succeed: %v", err)
	}
}

func TestClosePeerClosesOwnedProducersOnly(t *testing.T) {
	a := NewAdapter(&fakeSFU{})
	ctx := context.Background()

	tp1, _ := a.CreateTransport(ctx, "conn1", "conn1", "srv", "chan", DirectionSend)
	tp2, _ := a.CreateTransport(ctx, "conn2", "conn2", "srv", "chan", DirectionSend)
	p1, _ := a.Produce(ctx, "conn1", "srv", "chan", tp1.ID, KindMic, []byte(`{}`))
	_, _ = a.Produce(ctx, "conn2", "srv", "chan", tp2.ID, KindMic, []byte(`{}`))

	closed := a.ClosePeer(ctx, "conn1", "srv", "chan")
	if len(closed) != 1 || closed[0].ID != p1 {
		t.Fatalf("expected exactly conn1's producer to be reported closed, got %+v", closed)
	}
	if n := a.ProducerCount("srv", "chan", KindMic); n != 1 {
		t.Fatalf("expected conn2's producer to remain, got count %d", n)
	}
}

func TestProducersInChannelListsAcrossConnections(t *testing.T) {
	a := NewAdapter(&fakeSFU{})
	ctx := context.Background()

	tp1, _ := a.CreateTransport(ctx, "conn1", "conn1", "srv", "chan", DirectionSend)
	tp2, _ := a.CreateTransport(ctx, "conn2", "conn2", "srv", "chan", DirectionSend)
	_, _ = a.Produce(ctx, "conn1", "srv", "chan", tp1.ID, KindMic, []byte(`{}`))
	_, _ = a.Produce(ctx, "conn2", "srv", "chan", tp2.ID, KindWebcam, []byte(`{}`))

	producers := a.ProducersInChannel("srv", "chan")
	if len(producers) != 2 {
		t.Fatalf("expected 2 producers, got %d", len(producers))
	}
}
