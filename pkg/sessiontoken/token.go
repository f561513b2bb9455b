// Package sessiontoken issues and verifies the short-lived JWTs the REST
// surface hands out alongside a redeemed invite credential. The credential
// itself authenticates the WebSocket handshake; this token authenticates the
// brief REST window before that handshake — setting an avatar during
// onboarding, for instance — without requiring a second admin-gated path.
package sessiontoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const uploadTTL = 10 * time.Minute

type uploadClaims struct {
	ServerID string `json:"serverId"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
}

func New(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

// IssueUpload mints a token scoped to serverID, valid for uploadTTL.
func (i *Issuer) IssueUpload(serverID string) (string, error) {
	claims := uploadClaims{
		ServerID: serverID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(uploadTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// VerifyUpload returns the serverID a token was scoped to, or an error if the
// token is malformed, expired, or signed with a different secret.
func (i *Issuer) VerifyUpload(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &uploadClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*uploadClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid upload token")
	}
	return claims.ServerID, nil
}
