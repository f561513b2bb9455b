// Package admin guards the privileged REST surface with a single bearer
// token comparison — the same credential that grants ephemeral admin over a
// WebSocket also unlocks admin REST endpoints.
package admin

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Gate decides whether a request carries the configured admin bearer token.
// An empty Token with Open set to true leaves every gated route reachable —
// an explicit opt-in a deployer must choose, never an accidental default.
type Gate struct {
	Token string
	Open  bool
}

func New(token string, open bool) *Gate {
	return &Gate{Token: token, Open: open}
}

// Allows reports whether r carries a valid Authorization: Bearer <token>
// header, or whether the gate is configured wide open.
func (g *Gate) Allows(r *http.Request) bool {
	if g.Open && g.Token == "" {
		return true
	}
	if g.Token == "" {
		return false
	}
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	presented := strings.TrimPrefix(auth, prefix)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(g.Token)) == 1
}
