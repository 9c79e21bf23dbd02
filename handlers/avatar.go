package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	_ "image/jpeg"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/umakantv/go-utils/errs"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

const (
	maxAvatarBytes = 1 << 20 // 1 MB upload ceiling

	// Stored avatars are re-encoded to PNG fitted within these bounds.
	avatarMaxWidth  = 250
	avatarMaxHeight = 300
)

var allowedAvatarExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

func avatarCacheKey(userID string) string {
	return "avatar:" + userID
}

// normalizeAvatar decodes an uploaded image and re-encodes it as PNG, scaled
// down to fit the avatar bounds while keeping the aspect ratio. Images
// already inside the bounds keep their size.
func normalizeAvatar(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width > avatarMaxWidth || height > avatarMaxHeight {
		scaleW := float64(avatarMaxWidth) / float64(width)
		scaleH := float64(avatarMaxHeight) / float64(height)
		scale := scaleW
		if scaleH < scale {
			scale = scaleH
		}
		width = int(float64(width) * scale)
		height = int(float64(height) * scale)
		if width < 1 {
			width = 1
		}
		if height < 1 {
			height = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// UploadAvatar handles POST /users/me/avatar - multipart field "avatar"
func (h *UserHandler) UploadAvatar(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, _, ok := authedUser(w, r, h.auth)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes+4096)
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		logRequest(ctx, "error", "Invalid avatar upload", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Please upload an image under 1 MB"))
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		logRequest(ctx, "error", "Missing avatar file", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Please upload an image"))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedAvatarExtensions[ext] {
		logRequest(ctx, "error", "Disallowed avatar extension", zap.String("filename", header.Filename))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Please upload an image"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarBytes+1))
	if err != nil || len(data) > maxAvatarBytes {
		logRequest(ctx, "error", "Avatar too large", zap.Int("size", len(data)))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Please upload an image under 1 MB"))
		return
	}

	normalized, err := normalizeAvatar(data)
	if err != nil {
		logRequest(ctx, "error", "Failed to decode avatar", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Please upload an image"))
		return
	}

	_, err = h.db.Exec("UPDATE users SET avatar = ?, updated_at = ? WHERE id = ?",
		normalized, time.Now().UTC(), user.ID)
	if err != nil {
		logRequest(ctx, "error", "Failed to store avatar", zap.Error(err), zap.String("user_id", user.ID))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to store avatar"))
		return
	}

	h.cache.Delete(avatarCacheKey(user.ID))

	logRequest(ctx, "info", "Avatar stored", zap.String("user_id", user.ID), zap.Int("bytes", len(normalized)))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// DeleteAvatar handles DELETE /users/me/avatar
func (h *UserHandler) DeleteAvatar(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, _, ok := authedUser(w, r, h.auth)
	if !ok {
		return
	}

	_, err := h.db.Exec("UPDATE users SET avatar = NULL, updated_at = ? WHERE id = ?",
		time.Now().UTC(), user.ID)
	if err != nil {
		logRequest(ctx, "error", "Failed to remove avatar", zap.Error(err), zap.String("user_id", user.ID))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to remove avatar"))
		return
	}

	h.cache.Delete(avatarCacheKey(user.ID))

	logRequest(ctx, "info", "Avatar removed", zap.String("user_id", user.ID))

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Avatar removed"})
}

// GetAvatar handles GET /users/{id}/avatar - public, no authentication
func (h *UserHandler) GetAvatar(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	if _, err := uuid.Parse(idStr); err != nil {
		logRequest(ctx, "error", "Invalid user ID", zap.String("id", idStr))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Invalid user ID"))
		return
	}

	// PNG bytes are cached base64-encoded; raw bytes would not survive the
	// redis JSON round trip intact
	if cached, err := h.cache.Get(avatarCacheKey(idStr)); err == nil {
		if encoded, ok := cached.(string); ok && encoded != "" {
			if body, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(body) > 0 {
				w.Header().Set("Content-Type", "image/png")
				w.Write(body)
				return
			}
		}
	}

	var avatar []byte
	err := h.db.Get(&avatar, "SELECT avatar FROM users WHERE id = ?", idStr)
	if err == sql.ErrNoRows || (err == nil && len(avatar) == 0) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errs.NewNotFoundError("Avatar not found"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to query avatar", zap.Error(err), zap.String("id", idStr))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Database error"))
		return
	}

	h.cache.Set(avatarCacheKey(idStr), base64.StdEncoding.EncodeToString(avatar), 10*time.Minute)

	w.Header().Set("Content-Type", "image/png")
	w.Write(avatar)
}
