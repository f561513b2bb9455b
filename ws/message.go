package ws

import "encoding/json"

// MaxFramePayload bounds a single WS frame, per the wire contract.
const MaxFramePayload = 4 << 20 // 4 MiB

// Client → server message types.
const (
	TypeAuth               = "auth"
	TypeJoinChannel        = "join-channel"
	TypeLeaveChannel       = "leave-channel"
	TypeMute               = "mute"
	TypeDeafen             = "deafen"
	TypeRTPCapabilities    = "rtp-capabilities"
	TypeCreateTransport    = "create-transport"
	TypeConnectTransport   = "connect-transport"
	TypeProduce            = "produce"
	TypeStopProducer       = "stop-producer"
	TypeConsume            = "consume"
	TypeResumeConsumer     = "resume-consumer"
	TypeSetPreferredLayers = "set-preferred-layers"
	TypeChat               = "chat"
	TypeE2EE               = "e2ee"
	TypeSpeaking           = "speaking"
	TypeKick               = "kick"
	TypeMoveUser           = "move-user"
	TypeBan                = "ban"
	TypeAssignRole         = "assign-role"
	TypeUnassignRole       = "unassign-role"
)

// Server → client (and error/notification) message types.
const (
	TypeError               = "error"
	TypeAuthResult           = "auth-result"
	TypeJoinedServer         = "joined-server"
	TypeJoinedChannel        = "joined-channel"
	TypeUserJoinedChannel    = "user-joined-channel"
	TypeUserLeftChannel      = "user-left-channel"
	TypeUserUpdated          = "user-updated"
	TypeTransportCreated     = "transport-created"
	TypeProduced             = "produced"
	TypeNewProducer          = "new-producer"
	TypeConsumeResult        = "consume-result"
	TypeProducerClosed       = "producer-closed"
	TypeUserKicked           = "user-kicked"
	TypeUserMoved            = "user-moved"
	TypeUserBanned           = "user-banned"
	TypeRoleAssigned         = "role-assigned"
	TypeChannelCreated       = "channel-created"
	TypeChannelDeleted       = "channel-deleted"
	TypePermissionsUpdated   = "permissions-updated"
	TypeServerUpdated        = "server-updated"
)

// envelope peels off just enough to route a raw frame.
type envelope struct {
	Type string `json:"type"`
}

func frame(typ string, fields map[string]any) []byte {
	out := map[string]any{"type": typ}
	for k, v := range fields {
		out[k] = v
	}
	data, err := json.Marshal(out)
	if err != nil {
		// fields are always built from known-marshalable types; a failure
		// here means a programmer error, not a runtime condition to recover.
		panic(err)
	}
	return data
}

func errorFrame(code, message string) []byte {
	return frame(TypeError, map[string]any{"code": code, "message": message})
}

type authPayload struct {
	Nickname   string  `json:"nickname"`
	PublicKey  *string `json:"publicKey,omitempty"`
	Password   *string `json:"password,omitempty"`
	Credential *string `json:"credential,omitempty"`
	AdminToken *string `json:"adminToken,omitempty"`
}

type joinChannelPayload struct {
	ChannelID string `json:"channelId"`
}

type mutePayload struct {
	Muted bool `json:"muted"`
}

type deafenPayload struct {
	Deafened bool `json:"deafened"`
}

type rtpCapabilitiesPayload struct {
	RTPCapabilities json.RawMessage `json:"rtpCapabilities"`
}

type createTransportPayload struct {
	Direction string `json:"direction"`
}

type connectTransportPayload struct {
	TransportID    string          `json:"transportId"`
	DTLSParameters json.RawMessage `json:"dtlsParameters"`
}

type producePayload struct {
	TransportID   string          `json:"transportId"`
	Kind          string          `json:"kind"`
	RTPParameters json.RawMessage `json:"rtpParameters"`
	MediaType     string          `json:"mediaType"`
}

type stopProducerPayload struct {
	ProducerID string `json:"producerId"`
}

type consumePayload struct {
	ProducerID string `json:"producerId"`
}

type resumeConsumerPayload struct {
	ConsumerID string `json:"consumerId"`
}

type setPreferredLayersPayload struct {
	ConsumerID    string `json:"consumerId"`
	SpatialLayer  int    `json:"spatialLayer"`
	TemporalLayer *int   `json:"temporalLayer,omitempty"`
}

type chatPayload struct {
	Ciphertext string  `json:"ciphertext"`
	IV         string  `json:"iv"`
	KeyEpoch   int     `json:"keyEpoch"`
	Encoding   *string `json:"encoding,omitempty"`
}

type e2eePayload struct {
	Payload json.RawMessage `json:"payload"`
}

type e2eeInner struct {
	Kind         string  `json:"kind"`
	TargetUserID *string `json:"targetUserId,omitempty"`
}

type speakingPayload struct {
	Speaking bool `json:"speaking"`
}

type kickPayload struct {
	UserID string  `json:"userId"`
	Reason *string `json:"reason,omitempty"`
}

type moveUserPayload struct {
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId"`
}

type banPayload struct {
	UserID string  `json:"userId"`
	Reason *string `json:"reason,omitempty"`
}

type roleAssignmentPayload struct {
	UserID string `json:"userId"`
	RoleID string `json:"roleId"`
}
