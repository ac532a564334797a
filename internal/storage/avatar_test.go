package storage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zazaki-quiz/backend/internal/gamification"
	"github.com/zazaki-quiz/backend/internal/middleware"
	"github.com/zazaki-quiz/backend/internal/models"
)

type memUploader struct {
	prefix      string
	contentType string
	err         error
}

func (m *memUploader) Upload(_ context.Context, data []byte, prefix, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.prefix, m.contentType = prefix, contentType
	return "https://cdn.example.com/" + objectPath(prefix, contentType), nil
}

type memAvatars map[int64]string

func (m memAvatars) SetAvatarURL(_ context.Context, userID int64, url string) error {
	if _, ok := m[userID]; !ok {
		return ErrNotFound
	}
	m[userID] = url
	return nil
}

type avatarBadges struct {
	users map[int64]string
	calls int
}

// EvaluateUser grants profile_face once the user has an avatar.
func (b *avatarBadges) EvaluateUser(_ context.Context, userID int64) (*gamification.EvaluationResult, error) {
	b.calls++
	res := &gamification.EvaluationResult{UserID: userID, Granted: []models.BadgeUnlock{}}
	if b.users[userID] != "" {
		res.Granted = append(res.Granted, models.BadgeUnlock{BadgeID: 9, Code: "profile_face"})
	}
	return res, nil
}

const uploader int64 = 5

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, field string, data []byte, asUser int64) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, "me.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/avatar", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if asUser != 0 {
		req = req.WithContext(middleware.WithUser(req.Context(), asUser, models.RoleUser))
	}
	return req
}

func newTestHandler(up *memUploader) (*Handler, memAvatars, *avatarBadges) {
	users := memAvatars{uploader: ""}
	badges := &avatarBadges{users: users}
	return NewHandler(NewAvatarService(up, users, badges)), users, badges
}

func TestUploadAvatar_UnlocksAvatarBadge(t *testing.T) {
	up := &memUploader{}
	h, users, badges := newTestHandler(up)

	rec := httptest.NewRecorder()
	h.UploadAvatar(rec, multipartRequest(t, "avatar", pngBytes(t), uploader))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "avatars/5", up.prefix)
	assert.Equal(t, "image/png", up.contentType)
	assert.True(t, strings.HasSuffix(users[uploader], ".png"))
	assert.Equal(t, 1, badges.calls)
	assert.Contains(t, rec.Body.String(), "profile_face")
}

func TestUploadAvatar_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
	}{
		{"anonymous", func(t *testing.T) *http.Request {
			return multipartRequest(t, "avatar", pngBytes(t), 0)
		}, http.StatusUnauthorized},
		{"wrong field", func(t *testing.T) *http.Request {
			return multipartRequest(t, "picture", pngBytes(t), uploader)
		}, http.StatusBadRequest},
		{"not an image", func(t *testing.T) *http.Request {
			return multipartRequest(t, "avatar", []byte("#!/bin/sh\necho hi\n"), uploader)
		}, http.StatusUnsupportedMediaType},
		{"too large", func(t *testing.T) *http.Request {
			big := append(pngBytes(t), make([]byte, MaxAvatarBytes)...)
			return multipartRequest(t, "avatar", big, uploader)
		}, http.StatusRequestEntityTooLarge},
		{"unknown user", func(t *testing.T) *http.Request {
			return multipartRequest(t, "avatar", pngBytes(t), 77)
		}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, users, badges := newTestHandler(&memUploader{})
			rec := httptest.NewRecorder()
			h.UploadAvatar(rec, tt.req(t))
			assert.Equal(t, tt.status, rec.Code)
			assert.Empty(t, users[uploader])
			assert.Zero(t, badges.calls)
		})
	}
}

func TestSetAvatar_UploadFailureKeepsOldAvatar(t *testing.T) {
	users := memAvatars{uploader: "https://cdn.example.com/old.png"}
	svc := NewAvatarService(&memUploader{err: errors.New("bucket not found")}, users, &avatarBadges{users: users})

	_, err := svc.SetAvatar(t.Context(), uploader, pngBytes(t))
	assert.Error(t, err)
	assert.Equal(t, "https://cdn.example.com/old.png", users[uploader])
}

func TestObjectPath(t *testing.T) {
	a := objectPath("/avatars/5/", "image/webp")
	b := objectPath("avatars/5", "image/webp")
	assert.True(t, strings.HasPrefix(a, "avatars/5/"))
	assert.True(t, strings.HasSuffix(a, ".webp"))
	assert.NotEqual(t, a, b)
}
