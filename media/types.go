// Package media adapts the signaling core to the SFU: a thin façade over
// routers, transports, producers, and consumers. The SFU itself is an
// external library (the process never decodes media); this package only
// brokers its setup and keeps the bookkeeping the hub needs for permission
// caps and broadcast fan-out.
package media

import "encoding/json"

type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

type Kind string

const (
	KindMic         Kind = "mic"
	KindWebcam      Kind = "webcam"
	KindScreen      Kind = "screen"
	KindScreenAudio Kind = "screen-audio"
)

// TransportParams is opaque to everything except the concrete SFU
// implementation — the hub only ever forwards it between client and adapter.
type TransportParams struct {
	ID              string          `json:"id"`
	ICEParameters   json.RawMessage `json:"iceParameters"`
	ICECandidates   json.RawMessage `json:"iceCandidates"`
	DTLSParameters  json.RawMessage `json:"dtlsParameters"`
}

type Producer struct {
	ID          string
	TransportID string
	Kind        Kind
	OwnerConnID string
}

type Consumer struct {
	ID          string
	TransportID string
	ProducerID  string
	RTPParams   json.RawMessage
	Paused      bool
}

type Transport struct {
	ID        string
	Direction Direction
	Params    TransportParams
}
