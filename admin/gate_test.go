package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGateAllowsCorrectBearerToken(t *testing.T) {
	g := New("sekret", false)
	r := httptest.NewRequest(http.MethodPost, "/api/servers/s1/invites", nil)
	r.Header.Set("Authorization", "Bearer sekret")
	if !g.Allows(r) {
		t.Fatal("expected gate to allow a matching bearer token")
	}
}

func TestGateRejectsWrongToken(t *testing.T) {
	g := New("sekret", false)
	r := httptest.NewRequest(http.MethodPost, "/api/servers/s1/invites", nil)
	r.Header.Set("Authorization", "Bearer wrong")
	if g.Allows(r) {
		t.Fatal("expected gate to reject a mismatched bearer token")
	}
}

func TestGateRejectsMissingHeader(t *testing.T) {
	g := New("sekret", false)
	r := httptest.NewRequest(http.MethodPost, "/api/servers/s1/invites", nil)
	if g.Allows(r) {
		t.Fatal("expected gate to reject a request with no Authorization header")
	}
}

func TestGateOpenWithNoTokenConfigured(t *testing.T) {
	g := New("", true)
	r := httptest.NewRequest(http.MethodPost, "/api/servers/s1/invites", nil)
	if !g.Allows(r) {
		t.Fatal("expected an open gate with no token to allow any request")
	}
}

func TestGateClosedByDefaultWithNoToken(t *testing.T) {
	g := New("", false)
	r := httptest.NewRequest(http.MethodPost, "/api/servers/s1/invites", nil)
	if g.Allows(r) {
		t.Fatal("expected a gate with no token and Open=false to reject everything")
	}
}
