// Package handlers holds the thin net/http adapters for the REST surface
// (invites, avatar/icon upload); the routing layer itself stays a minimal
// net/http.ServeMux wired in cmd/server.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ehrma/signalcore/admin"
	"github.com/ehrma/signalcore/invite"
	"github.com/ehrma/signalcore/pkg"
	"github.com/ehrma/signalcore/pkg/ratelimit"
	"github.com/ehrma/signalcore/pkg/sessiontoken"
)

// InviteHandler exposes the C4 invite/credential service over HTTP: admin
// minting, public metadata lookup, and IP-rate-limited redemption.
type InviteHandler struct {
	invites *invite.Service
	gate    *admin.Gate
	redeem  *ratelimit.IPLimiter
	tokens  *sessiontoken.Issuer
	cfg     struct{ trustProxy bool }
}

func NewInviteHandler(invites *invite.Service, gate *admin.Gate, redeemLimiter *ratelimit.IPLimiter, tokens *sessiontoken.Issuer, trustProxy bool) *InviteHandler {
	h := &InviteHandler{invites: invites, gate: gate, redeem: redeemLimiter, tokens: tokens}
	h.cfg.trustProxy = trustProxy
	return h
}

type mintInviteRequest struct {
	ServerAddress string     `json:"serverAddress"`
	MaxUses       *int       `json:"maxUses,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// Mint handles POST /api/servers/{serverId}/invites, admin-gated per C8.
func (h *InviteHandler) Mint(w http.ResponseWriter, r *http.Request) {
	if !h.gate.Allows(r) {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "admin token required")
		return
	}
	serverID := r.PathValue("serverId")
	if serverID == "" {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "serverId is required")
		return
	}

	var req mintInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inv, err := h.invites.Mint(r.Context(), serverID, req.ServerAddress, req.MaxUses, req.ExpiresAt)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusCreated, inv)
}

// Lookup handles GET /api/invites/{token}.
func (h *InviteHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	inv, err := h.invites.Lookup(r.Context(), token)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, inv)
}

type redeemRequest struct {
	Token string `json:"token"`
}

type redeemResponse struct {
	Credential  string `json:"credential"`
	UploadToken string `json:"uploadToken,omitempty"`
}

// Redeem handles POST /api/invites/redeem, rate-limited 20/60s per caller IP
// ahead of the atomic single-use-increment that the service performs. On
// success it also mints a short-lived upload token scoped to the invite's
// server, so the new member can set an avatar before ever opening a socket.
func (h *InviteHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	ip := ratelimit.ExtractIP(r, h.cfg.trustProxy)
	if !h.redeem.Allow(ip) {
		pkg.ErrorWithMessage(w, http.StatusTooManyRequests, "too many redemption attempts")
		return
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inv, err := h.invites.Lookup(r.Context(), req.Token)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	cred, err := h.invites.Redeem(r.Context(), req.Token)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	resp := redeemResponse{Credential: cred}
	if uploadToken, err := h.tokens.IssueUpload(inv.ServerID); err == nil {
		resp.UploadToken = uploadToken
	}
	pkg.JSON(w, http.StatusOK, resp)
}
