package handlers

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ehrma/signalcore/admin"
	"github.com/ehrma/signalcore/models"
	"github.com/ehrma/signalcore/pkg"
	"github.com/ehrma/signalcore/pkg/sessiontoken"
)

type fakeUploadUserRepo struct {
	mu   sync.Mutex
	byID map[string]*models.User
}

func newFakeUploadUserRepo() *fakeUploadUserRepo {
	return &fakeUploadUserRepo{byID: map[string]*models.User{"user-1": {ID: "user-1", Nickname: "alice"}}}
}
func (f *fakeUploadUserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	cp := *u
	return &cp, nil
}
func (f *fakeUploadUserRepo) GetByPublicKey(_ context.Context, publicKey string) (*models.User, error) {
	return nil, pkg.ErrNotFound
}
func (f *fakeUploadUserRepo) Create(_ context.Context, u *models.User) error { return nil }
func (f *fakeUploadUserRepo) UpdateAvatar(_ context.Context, userID, avatarRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return pkg.ErrNotFound
	}
	u.AvatarRef = &avatarRef
	return nil
}

type fakeUploadServerRepo struct {
	mu  sync.Mutex
	srv map[string]*models.Server
}

func newFakeUploadServerRepo() *fakeUploadServerRepo {
	return &fakeUploadServerRepo{srv: map[string]*models.Server{"srv-1": {ID: "srv-1", Name: "Default"}}}
}
func (f *fakeUploadServerRepo) GetByID(_ context.Context, id string) (*models.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.srv[id]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	cp := *s
	return &cp, nil
}
func (f *fakeUploadServerRepo) GetDefault(_ context.Context) (*models.Server, error) {
	return nil, pkg.ErrNotFound
}
func (f *fakeUploadServerRepo) Create(_ context.Context, s *models.Server) error { return nil }
func (f *fakeUploadServerRepo) Update(_ context.Context, s *models.Server) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.srv[s.ID] = &cp
	return nil
}

func pngMultipartBody(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))

	var imgBuf bytes.Buffer
	if err := png.Encode(&imgBuf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", "avatar.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(imgBuf.Bytes()); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func TestUserAvatarRejectsWithoutAuthorization(t *testing.T) {
	dataDir := t.TempDir()
	h := NewUploadHandler(newFakeUploadUserRepo(), newFakeUploadServerRepo(), dataDir, admin.New("admin-secret", false), sessiontoken.New("jwt-secret"))

	body, contentType := pngMultipartBody(t)
	req := httptest.NewRequest(http.MethodPost, "/api/users/user-1/avatar", body)
	req.Header.Set("Content-Type", contentType)
	req.SetPathValue("userId", "user-1")
	rec := httptest.NewRecorder()

	h.UserAvatar(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with no admin token or upload token, got %d", rec.Code)
	}
}

func TestUserAvatarAcceptsAdminToken(t *testing.T) {
	dataDir := t.TempDir()
	users := newFakeUploadUserRepo()
	h := NewUploadHandler(users, newFakeUploadServerRepo(), dataDir, admin.New("admin-secret", false), sessiontoken.New("jwt-secret"))

	body, contentType := pngMultipartBody(t)
	req := httptest.NewRequest(http.MethodPost, "/api/users/user-1/avatar", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer admin-secret")
	req.SetPathValue("userId", "user-1")
	rec := httptest.NewRecorder()

	h.UserAvatar(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	stored, err := users.GetByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.AvatarRef == nil {
		t.Fatal("expected avatar ref to be set")
	}
	if filepath.Ext(*stored.AvatarRef) != ".png" {
		t.Fatalf("expected a .png ref, got %q", *stored.AvatarRef)
	}
}

func TestUserAvatarAcceptsScopedUploadToken(t *testing.T) {
	dataDir := t.TempDir()
	tokens := sessiontoken.New("jwt-secret")
	h := NewUploadHandler(newFakeUploadUserRepo(), newFakeUploadServerRepo(), dataDir, admin.New("admin-secret", false), tokens)

	uploadToken, err := tokens.IssueUpload("srv-1")
	if err != nil {
		t.Fatalf("IssueUpload: %v", err)
	}

	body, contentType := pngMultipartBody(t)
	req := httptest.NewRequest(http.MethodPost, "/api/users/user-1/avatar", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+uploadToken)
	req.SetPathValue("userId", "user-1")
	rec := httptest.NewRecorder()

	h.UserAvatar(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServerIconRejectsTokenScopedToDifferentServer(t *testing.T) {
	dataDir := t.TempDir()
	tokens := sessiontoken.New("jwt-secret")
	h := NewUploadHandler(newFakeUploadUserRepo(), newFakeUploadServerRepo(), dataDir, admin.New("admin-secret", false), tokens)

	uploadToken, err := tokens.IssueUpload("some-other-server")
	if err != nil {
		t.Fatalf("IssueUpload: %v", err)
	}

	body, contentType := pngMultipartBody(t)
	req := httptest.NewRequest(http.MethodPost, "/api/servers/srv-1/icon", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+uploadToken)
	req.SetPathValue("serverId", "srv-1")
	rec := httptest.NewRecorder()

	h.ServerIcon(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a token scoped to a different server, got %d", rec.Code)
	}
}

func TestUserAvatarRejectsOversizedFile(t *testing.T) {
	dataDir := t.TempDir()
	h := NewUploadHandler(newFakeUploadUserRepo(), newFakeUploadServerRepo(), dataDir, admin.New("admin-secret", false), sessiontoken.New("jwt-secret"))

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", "big.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	oversized := bytes.Repeat([]byte{0xFF}, uploadMaxSize+1024)
	if _, err := part.Write(oversized); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/users/user-1/avatar", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer admin-secret")
	req.SetPathValue("userId", "user-1")
	rec := httptest.NewRecorder()

	h.UserAvatar(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an oversized upload, got %d", rec.Code)
	}
}
