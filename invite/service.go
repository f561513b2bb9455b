// Package invite implements invite minting, redemption, and the first-bind
// credential protocol.
package invite

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg"
	"github.com/ehrma/signalcore/repository"
)

// IDGenerator abstracts id minting so tests can supply deterministic ids
// without importing a concrete uuid implementation into this package.
type IDGenerator func() string

type Service struct {
	invites     repository.InviteRepository
	credentials repository.CredentialRepository
	newID       IDGenerator
}

func NewService(invites repository.InviteRepository, credentials repository.CredentialRepository, newID IDGenerator) *Service {
	return &Service{invites: invites, credentials: credentials, newID: newID}
}

// Mint creates a new invite token. maxUses and expiresAt are both optional.
func (s *Service) Mint(ctx context.Context, serverID, serverAddress string, maxUses *int, expiresAt *time.Time) (*models.InviteToken, error) {
	token, err := randomToken(16)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate invite token", pkg.ErrInternal)
	}

	inv := &models.InviteToken{
		ID:            s.newID(),
		ServerID:      serverID,
		Token:         token,
		MaxUses:       maxUses,
		ExpiresAt:     expiresAt,
		ServerAddress: serverAddress,
		CreatedAt:     time.Now(),
	}
	if err := s.invites.Create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Lookup fetches invite metadata without consuming a use.
func (s *Service) Lookup(ctx context.Context, token string) (*models.InviteToken, error) {
	return s.invites.GetByToken(ctx, token)
}

// Redeem atomically consumes one use and mints a fresh unbound credential.
// The plaintext credential is returned exactly once — only its SHA-256 hash
// is ever persisted.
func (s *Service) Redeem(ctx context.Context, token string) (plaintextCredential string, err error) {
	ok, inv, err := s.invites.RedeemOne(ctx, token)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: invite is expired, exhausted, or unknown", pkg.ErrConflict)
	}

	plaintextCredential, err = randomToken(32)
	if err != nil {
		return "", fmt.Errorf("%w: failed to generate credential", pkg.ErrInternal)
	}
	hash := hashCredential(plaintextCredential)

	cred := &models.SessionCredential{
		ID:             s.newID(),
		ServerID:       inv.ServerID,
		CredentialHash: hash,
		InviteTokenID:  inv.ID,
		CreatedAt:      time.Now(),
	}
	if err := s.credentials.Create(ctx, cred); err != nil {
		return "", err
	}
	return plaintextCredential, nil
}

// BindResult is the outcome of presenting a credential during WS auth.
type BindResult struct {
	OK       bool
	ServerID string
}

// Bind implements the first-auth binding protocol: a fresh credential binds
// to the presented public key; a previously-bound credential only succeeds
// again for the same public key. publicKey must be non-empty — callers are
// responsible for rejecting credential-without-publicKey before calling in.
func (s *Service) Bind(ctx context.Context, plaintextCredential, serverID, publicKey string) (BindResult, error) {
	hash := hashCredential(plaintextCredential)

	cred, err := s.credentials.GetActiveByHash(ctx, hash, serverID)
	if err != nil {
		if err == pkg.ErrNotFound {
			return BindResult{}, nil
		}
		return BindResult{}, err
	}

	if cred.UserPublicKey == nil {
		bound, err := s.credentials.TryBind(ctx, cred.ID, publicKey)
		if err != nil {
			return BindResult{}, err
		}
		if bound {
			return BindResult{OK: true, ServerID: cred.ServerID}, nil
		}

		// Lost the race to another auth attempt for the same credential.
		// Only accept if the winner bound the same identity we presented.
		fresh, err := s.credentials.GetByID(ctx, cred.ID)
		if err != nil {
			return BindResult{}, err
		}
		if fresh.UserPublicKey != nil && *fresh.UserPublicKey == publicKey {
			return BindResult{OK: true, ServerID: cred.ServerID}, nil
		}
		return BindResult{}, nil
	}

	if *cred.UserPublicKey == publicKey {
		return BindResult{OK: true, ServerID: cred.ServerID}, nil
	}
	return BindResult{}, nil
}

func hashCredential(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func randomToken(numBytes int) (string, error) {
	buf := make([]byte, numBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
