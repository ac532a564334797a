package gamification

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zazaki-quiz/backend/internal/middleware"
	"github.com/zazaki-quiz/backend/internal/models"
)

func newRouter(svc *Service) *mux.Router {
	h := NewHandler(svc)
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/me/gamification", h.GetGamification).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/me/unlocks", h.GetUnlocks).Methods(http.MethodGet)
	r.HandleFunc("/admin/maintenance/fix-xp", h.FixXP).Methods(http.MethodPost)
	r.HandleFunc("/admin/badges", h.ListBadges).Methods(http.MethodGet)
	r.HandleFunc("/admin/badges", h.CreateBadge).Methods(http.MethodPost)
	r.HandleFunc("/admin/badges/{id}", h.UpdateBadge).Methods(http.MethodPut)
	r.HandleFunc("/admin/users/{id}/badges/reset", h.ResetUserBadges).Methods(http.MethodPost)
	return r
}

func serve(r http.Handler, method, path, body string, asUser int64) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if asUser != 0 {
		req = req.WithContext(middleware.WithUser(req.Context(), asUser, models.RoleUser))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_GamificationAndUnlocks(t *testing.T) {
	repo := seededRepo()
	repo.users[userID] = &models.User{ID: userID, TotalXP: 1000, Streak: 3}
	repo.attemptXP[userID] = 1500
	svc := NewService(repo, nil)
	r := newRouter(svc)

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/me/gamification", "", 0).Code)

	_, err := svc.FixXP(t.Context())
	require.NoError(t, err)

	rec := serve(r, http.MethodGet, "/api/v1/me/gamification", "", userID)
	require.Equal(t, http.StatusOK, rec.Code)
	var state models.GamificationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&state))
	assert.Len(t, state.Badges, 3)

	rec = serve(r, http.MethodGet, "/api/v1/me/unlocks", "", userID)
	require.Equal(t, http.StatusOK, rec.Code)
	var unlocks models.UnlocksResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&unlocks))
	assert.Len(t, unlocks.Unlocks, 3)

	rec = serve(r, http.MethodGet, "/api/v1/me/unlocks", "", userID)
	assert.JSONEq(t, `{"unlocks":[]}`, rec.Body.String())
}

func TestHandler_FixXP(t *testing.T) {
	repo := newFakeRepo()
	repo.users[1] = &models.User{ID: 1, TotalXP: 3}
	r := newRouter(NewService(repo, nil))

	rec := serve(r, http.MethodPost, "/admin/maintenance/fix-xp", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.XPFixResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 1, res.UsersChecked)
	assert.Equal(t, 1, res.DiscrepanciesFixed)
}

func TestHandler_BadgeAdmin(t *testing.T) {
	repo := newFakeRepo()
	r := newRouter(NewService(repo, nil))

	rec := serve(r, http.MethodPost, "/admin/badges", `{"code":"xp_500","title":"Bronze","criteria":{"kind":"xp_at_least","value":500}}`, 1)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Badge
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.True(t, created.IsActive)

	rec = serve(r, http.MethodPost, "/admin/badges", `{"code":"xp_500","title":"Again","criteria":{"kind":"has_avatar"}}`, 1)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(r, http.MethodPost, "/admin/badges", `{"code":"bad","title":"Bad","criteria":{"kind":"all"}}`, 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodPut, "/admin/badges/1", `{"code":"xp_500","title":"Bronze","criteria":{"kind":"xp_at_least","value":600},"is_active":false}`, 1)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(r, http.MethodPut, "/admin/badges/99", `{"code":"q","title":"Q","criteria":{"kind":"has_avatar"}}`, 1)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(r, http.MethodPut, "/admin/badges/abc", `{}`, 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodGet, "/admin/badges", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	var badges []models.Badge
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&badges))
	require.Len(t, badges, 1)
	assert.False(t, badges[0].IsActive)
}

func TestHandler_ResetUserBadges(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo, nil)
	r := newRouter(svc)
	_, err := svc.EvaluateUser(t.Context(), userID)
	require.NoError(t, err)

	rec := serve(r, http.MethodPost, "/admin/users/7/badges/reset", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Removed 3 badges from user 7.")
	assert.Equal(t, 0, repo.earnedCount(userID))
}
