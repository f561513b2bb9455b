package models

import "time"

// Server is the top-level tenant. Exactly one default server exists after
// bootstrap (created on first auth by ensureDefaultServer in ws/bootstrap.go).
type Server struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	CreatedAt           time.Time `json:"createdAt"`
	MaxUsers            int       `json:"maxUsers"`
	IconRef             *string   `json:"iconRef,omitempty"`
	MaxWebcamProducers  int       `json:"maxWebcamProducers"`
	MaxScreenProducers  int       `json:"maxScreenProducers"`
	PasswordHash        *string   `json:"-"`
}

// Channel belongs to a server and forms a forest via ParentID. A nil
// ParentID marks a root channel.
type Channel struct {
	ID          string    `json:"id"`
	ServerID    string    `json:"serverId"`
	ParentID    *string   `json:"parentId,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Topic       *string   `json:"topic,omitempty"`
	Position    int       `json:"position"`
	MaxUsers    int       `json:"maxUsers"` // 0 = unlimited
	JoinPower   int       `json:"joinPower"`
	TalkPower   int       `json:"talkPower"`
	IsDefault   bool      `json:"isDefault"`
	CreatedAt   time.Time `json:"createdAt"`
}

// User is a stable identity, created on first auth and never deleted by
// core logic. PublicKey is globally unique when present.
type User struct {
	ID        string    `json:"id"`
	Nickname  string    `json:"nickname"`
	PublicKey *string   `json:"publicKey,omitempty"`
	AvatarRef *string   `json:"avatarRef,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ServerMember records a user's membership in a server. Created on first
// join; removed only via admin action (kick/ban), never by the user leaving
// a channel.
type ServerMember struct {
	UserID          string    `json:"userId"`
	ServerID        string    `json:"serverId"`
	JoinedNickname  string    `json:"joinedNickname"`
	JoinedAt        time.Time `json:"joinedAt"`
}

// Ban records a server-scoped ban. Expired bans are lazily purged on check,
// not eagerly swept.
type Ban struct {
	ID        string     `json:"id"`
	ServerID  string     `json:"serverId"`
	UserID    string     `json:"userId"`
	BannedBy  string     `json:"bannedBy"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ChatMessage is the persisted row behind a relayed chat frame. The server
// stores Ciphertext opaquely and never inspects it beyond length.
type ChatMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	SenderID  string    `json:"senderId"`
	Ciphertext string   `json:"ciphertext"`
	IV         string   `json:"iv"`
	KeyEpoch   int      `json:"keyEpoch"`
	Encoding   string   `json:"encoding"`
	CreatedAt  time.Time `json:"createdAt"`
}
