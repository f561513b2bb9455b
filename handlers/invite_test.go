package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ehrma/signalcore/admin"
	"github.com/ehrma/signalcore/invite"
	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg"
	"github.com/ehrma/signalcore/pkg/ratelimit"
	"github.com/ehrma/signalcore/pkg/sessiontoken"
)

type fakeInviteRepo struct {
	mu      sync.Mutex
	byToken map[string]*models.InviteToken
}

func newFakeInviteRepo() *fakeInviteRepo {
	return &fakeInviteRepo{byToken: map[string]*models.InviteToken{}}
}
func (f *fakeInviteRepo) Create(_ context.Context, inv *models.InviteToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byToken[inv.Token] = inv
	return nil
}
func (f *fakeInviteRepo) GetByToken(_ context.Context, token string) (*models.InviteToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.byToken[token]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}
func (f *fakeInviteRepo) RedeemOne(_ context.Context, token string) (bool, *models.InviteToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.byToken[token]
	if !ok {
		return false, nil, nil
	}
	if inv.MaxUses != nil && inv.Uses >= *inv.MaxUses {
		return false, nil, nil
	}
	inv.Uses++
	cp := *inv
	return true, &cp, nil
}

type fakeCredentialRepo struct {
	mu   sync.Mutex
	byID map[string]*models.SessionCredential
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{byID: map[string]*models.SessionCredential{}}
}
func (f *fakeCredentialRepo) Create(_ context.Context, c *models.SessionCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[c.ID] = c
	return nil
}
func (f *fakeCredentialRepo) GetActiveByHash(_ context.Context, hash, serverID string) (*models.SessionCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.CredentialHash == hash && c.ServerID == serverID && c.RevokedAt == nil {
			cp := *c
			return &cp, nil
		}
	}
	return nil, pkg.ErrNotFound
}
func (f *fakeCredentialRepo) TryBind(_ context.Context, id, publicKey string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return false, pkg.ErrNotFound
	}
	if c.UserPublicKey != nil {
		return false, nil
	}
	c.UserPublicKey = &publicKey
	return true, nil
}
func (f *fakeCredentialRepo) GetByID(_ context.Context, id string) (*models.SessionCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func testInviteHandler(t *testing.T) *InviteHandler {
	t.Helper()
	var n int
	newID := func() string {
		n++
		return "invite-id-" + string(rune('a'+n%26))
	}
	svc := invite.NewService(newFakeInviteRepo(), newFakeCredentialRepo(), newID)
	gate := admin.New("admin-secret", false)
	limiter := ratelimit.NewIPLimiter(1000, time.Minute)
	t.Cleanup(limiter.Stop)
	tokens := sessiontoken.New("jwt-secret")
	return NewInviteHandler(svc, gate, limiter, tokens, false)
}

func TestMintRejectsWithoutAdminToken(t *testing.T) {
	h := testInviteHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/servers/srv-1/invites", bytes.NewBufferString(`{}`))
	req.SetPathValue("serverId", "srv-1")
	rec := httptest.NewRecorder()

	h.Mint(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMintAndRedeemIssuesUploadToken(t *testing.T) {
	h := testInviteHandler(t)

	mintReq := httptest.NewRequest(http.MethodPost, "/api/servers/srv-1/invites", bytes.NewBufferString(`{}`))
	mintReq.SetPathValue("serverId", "srv-1")
	mintReq.Header.Set("Authorization", "Bearer admin-secret")
	mintRec := httptest.NewRecorder()
	h.Mint(mintRec, mintReq)
	if mintRec.Code != http.StatusCreated {
		t.Fatalf("expected 201 minting invite, got %d: %s", mintRec.Code, mintRec.Body.String())
	}

	var mintResp struct {
		Data models.InviteToken `json:"data"`
	}
	if err := json.Unmarshal(mintRec.Body.Bytes(), &mintResp); err != nil {
		t.Fatalf("decode mint response: %v", err)
	}

	redeemBody, _ := json.Marshal(map[string]string{"token": mintResp.Data.Token})
	redeemReq := httptest.NewRequest(http.MethodPost, "/api/invites/redeem", bytes.NewBuffer(redeemBody))
	redeemRec := httptest.NewRecorder()
	h.Redeem(redeemRec, redeemReq)

	if redeemRec.Code != http.StatusOK {
		t.Fatalf("expected 200 redeeming invite, got %d: %s", redeemRec.Code, redeemRec.Body.String())
	}

	var redeemResp struct {
		Data redeemResponse `json:"data"`
	}
	if err := json.Unmarshal(redeemRec.Body.Bytes(), &redeemResp); err != nil {
		t.Fatalf("decode redeem response: %v", err)
	}
	if redeemResp.Data.Credential == "" {
		t.Fatal("expected a non-empty credential")
	}
	if redeemResp.Data.UploadToken == "" {
		t.Fatal("expected redeem to also mint an upload token")
	}
}

func TestRedeemRejectsUnknownToken(t *testing.T) {
	h := testInviteHandler(t)
	body, _ := json.Marshal(map[string]string{"token": "does-not-exist"})
	req := httptest.NewRequest(http.MethodPost, "/api/invites/redeem", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()

	h.Redeem(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown token, got %d", rec.Code)
	}
}
