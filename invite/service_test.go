package invite

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg"
)

// In-memory fakes, enough to exercise the atomicity contracts without a
// real database — RedeemOne and TryBind are implemented with the same
// check-under-lock semantics the SQL WHERE clauses provide.

type fakeInviteRepo struct {
	mu  sync.Mutex
	byToken map[string]*models.InviteToken
}

func newFakeInviteRepo() *fakeInviteRepo {
	return &fakeInviteRepo{byToken: map[string]*models.InviteToken{}}
}

func (f *fakeInviteRepo) Create(_ context.Context, inv *models.InviteToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *inv
	f.byToken[inv.Token] = &cp
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
	if inv.ExpiresAt != nil && inv.ExpiresAt.Before(time.Now()) {
		return false, nil, nil
	}
	inv.Uses++
	cp := *inv
	return true, &cp, nil
}

type fakeCredentialRepo struct {
	mu    sync.Mutex
	byID  map[string]*models.SessionCredential
	byHash map[string]string // hash -> id
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{byID: map[string]*models.SessionCredential{}, byHash: map[string]string{}}
}

func (f *fakeCredentialRepo) Create(_ context.Context, c *models.SessionCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.byID[c.ID] = &cp
	f.byHash[c.CredentialHash] = c.ID
	return nil
}

func (f *fakeCredentialRepo) GetActiveByHash(_ context.Context, hash, serverID string) (*models.SessionCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byHash[hash]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	c := f.byID[id]
	if c.ServerID != serverID || c.RevokedAt != nil {
		return nil, pkg.ErrNotFound
	}
	cp := *c
	return &cp, nil
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

func idSeq() IDGenerator {
	var n int64
	return func() string {
		v := atomic.AddInt64(&n, 1)
		return "id-" + time.Now().Format("150405") + "-" + string(rune('a'+v%26))
	}
}

// TestScenarioS2InviteBindAndReconnect implements spec scenario S2.
func TestScenarioS2InviteBindAndReconnect(t *testing.T) {
	invites := newFakeInviteRepo()
	creds := newFakeCredentialRepo()
	svc := NewService(invites, creds, idSeq())

	one := 1
	inv, err := svc.Mint(context.Background(), "srv", "wss://example", &one, nil)
	if err != nil {
		t.Fatal(err)
	}

	plaintext, err := svc.Redeem(context.Background(), inv.Token)
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.Bind(context.Background(), plaintext, "srv", "0xB")
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK {
		t.Fatalf("expected first bind to succeed")
	}

	res, err = svc.Bind(context.Background(), plaintext, "srv", "0xC")
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Fatalf("expected bind with a different public key to fail")
	}

	res, err = svc.Bind(context.Background(), plaintext, "srv", "0xB")
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK {
		t.Fatalf("expected reconnect with the originally bound public key to succeed")
	}
}

// TestScenarioS5ConcurrentRedemption implements spec scenario S5.
func TestScenarioS5ConcurrentRedemption(t *testing.T) {
	invites := newFakeInviteRepo()
	creds := newFakeCredentialRepo()
	svc := NewService(invites, creds, idSeq())

	one := 1
	inv, err := svc.Mint(context.Background(), "srv", "wss://example", &one, nil)
	if err != nil {
		t.Fatal(err)
	}

	var successes int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Redeem(context.Background(), inv.Token); err == nil {
				atomic.AddInt64(&successes, 1)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful redemption out of 10 concurrent attempts, got %d", successes)
	}
}

func TestConcurrentBindRaceSameIdentityWins(t *testing.T) {
	invites := newFakeInviteRepo()
	creds := newFakeCredentialRepo()
	svc := NewService(invites, creds, idSeq())

	plaintext, err := svc.Redeem(context.Background(), mustMint(t, svc).Token)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make([]BindResult, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, _ := svc.Bind(context.Background(), plaintext, "srv", "0xSame")
			results[i] = res
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if !res.OK {
			t.Fatalf("expected every concurrent bind with the same identity to succeed, goroutine %d did not", i)
		}
	}
}

func mustMint(t *testing.T, svc *Service) *models.InviteToken {
	t.Helper()
	inv, err := svc.Mint(context.Background(), "srv", "wss://example", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return inv
}
