package models

import "time"

// InviteToken is minted by an admin and redeemed by a prospective member.
// Uses never exceeds MaxUses when MaxUses is set; redemption past ExpiresAt
// always fails.
type InviteToken struct {
	ID            string     `json:"id"`
	ServerID      string     `json:"serverId"`
	Token         string     `json:"token"`
	MaxUses       *int       `json:"maxUses,omitempty"`
	Uses          int        `json:"uses"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	ServerAddress string     `json:"serverAddress"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// SessionCredential is the one-time-secret hash produced by a redeemed
// invite. It starts unbound (UserPublicKey nil) and binds permanently to
// the first public key presented against it on a successful WS auth.
type SessionCredential struct {
	ID             string     `json:"id"`
	ServerID       string     `json:"serverId"`
	UserPublicKey  *string    `json:"userPublicKey,omitempty"`
	CredentialHash string     `json:"-"`
	InviteTokenID  string     `json:"inviteTokenId"`
	CreatedAt      time.Time  `json:"createdAt"`
	BoundAt        *time.Time `json:"boundAt,omitempty"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
}
