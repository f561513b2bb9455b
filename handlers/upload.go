package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ehrma/signalcore/admin"
	"github.com/ehrma/signalcore/pkg"
	"github.com/ehrma/signalcore/pkg/sessiontoken"
	"github.com/ehrma/signalcore/repository"
)

// uploadMaxSize bounds avatar/icon uploads: small, optimized images only,
// well under the 4 MiB WS frame cap this process also enforces.
const uploadMaxSize = 2 << 20 // 2 MiB

var allowedImageExt = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// UploadHandler persists user avatars and server icons under dataDir: a
// parse-validate-save-then-update-row flow covering two endpoints, user
// avatar and server icon.
type UploadHandler struct {
	users   repository.UserRepository
	servers repository.ServerRepository
	dataDir string
	gate    *admin.Gate
	tokens  *sessiontoken.Issuer
}

func NewUploadHandler(users repository.UserRepository, servers repository.ServerRepository, dataDir string, gate *admin.Gate, tokens *sessiontoken.Issuer) *UploadHandler {
	return &UploadHandler{users: users, servers: servers, dataDir: dataDir, gate: gate, tokens: tokens}
}

// authorizeUpload accepts either a valid admin bearer token or an upload JWT
// scoped to serverID — the two paths an avatar/icon write can legitimately
// arrive by: an admin acting on a server, or a freshly onboarded member
// acting on the server their invite just placed them in.
func (h *UploadHandler) authorizeUpload(r *http.Request, serverID string) bool {
	if h.gate.Allows(r) {
		return true
	}
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	scoped, err := h.tokens.VerifyUpload(strings.TrimPrefix(auth, prefix))
	if err != nil {
		return false
	}
	return serverID == "" || scoped == serverID
}

// readImageFile parses the "file" multipart field, enforces the size and
// mime constraints, and returns its bytes plus the extension to store it
// under.
func readImageFile(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(uploadMaxSize); err != nil {
		return nil, "", fmt.Errorf("%w: failed to parse multipart form", pkg.ErrBadRequest)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("%w: missing file field", pkg.ErrBadRequest)
	}
	defer file.Close()

	if header.Size > uploadMaxSize {
		return nil, "", fmt.Errorf("%w: file exceeds 2 MiB", pkg.ErrBadRequest)
	}

	data, err := io.ReadAll(io.LimitReader(file, uploadMaxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to read upload", pkg.ErrInternal)
	}
	if len(data) > uploadMaxSize {
		return nil, "", fmt.Errorf("%w: file exceeds 2 MiB", pkg.ErrBadRequest)
	}

	mime := http.DetectContentType(data)
	ext, ok := allowedImageExt[mime]
	if !ok {
		return nil, "", fmt.Errorf("%w: unsupported image type %q", pkg.ErrBadRequest, mime)
	}
	return data, ext, nil
}

func writeUpload(dir, filename string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create upload directory", pkg.ErrInternal)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: failed to write upload", pkg.ErrInternal)
	}
	return nil
}

// UserAvatar handles POST /api/users/{userId}/avatar, storing the file at
// <dataDir>/avatars/<userId>.<ext> and pointing the user row at it.
func (h *UploadHandler) UserAvatar(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "userId is required")
		return
	}
	if !h.authorizeUpload(r, "") {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "admin token or upload token required")
		return
	}

	data, ext, err := readImageFile(r)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	dir := filepath.Join(h.dataDir, "avatars")
	filename := fmt.Sprintf("%s.%s", userID, ext)
	if err := writeUpload(dir, filename, data); err != nil {
		pkg.Error(w, err)
		return
	}

	ref := "/avatars/" + filename
	if err := h.users.UpdateAvatar(r.Context(), userID, ref); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"avatarRef": ref})
}

// ServerIcon handles POST /api/servers/{serverId}/icon, storing the file at
// <dataDir>/icons/<serverId>.<ext> and pointing the server row at it.
func (h *UploadHandler) ServerIcon(w http.ResponseWriter, r *http.Request) {
	serverID := r.PathValue("serverId")
	if serverID == "" {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "serverId is required")
		return
	}
	if !h.authorizeUpload(r, serverID) {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "admin token or upload token required")
		return
	}

	data, ext, err := readImageFile(r)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	dir := filepath.Join(h.dataDir, "icons")
	filename := fmt.Sprintf("%s.%s", serverID, ext)
	if err := writeUpload(dir, filename, data); err != nil {
		pkg.Error(w, err)
		return
	}

	srv, err := h.servers.GetByID(r.Context(), serverID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	ref := "/icons/" + filename
	srv.IconRef = &ref
	if err := h.servers.Update(r.Context(), srv); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"iconRef": ref})
}
