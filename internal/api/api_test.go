package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"boltalka/internal/auth"
	"boltalka/internal/models"
	"boltalka/internal/storage"

	"github.com/stretchr/testify/require"
)

type staticRooms []models.RoomSnapshot

func (s staticRooms) Rooms() ([]models.RoomSnapshot, error) {
	return s, nil
}

type countingBroadcaster struct {
	calls int
}

func (c *countingBroadcaster) BroadcastRooms() {
	c.calls++
}

type mapPresence map[string][]models.Member

func (m mapPresence) Snapshot() map[string][]models.Member {
	return m
}

type testServer struct {
	mux   *http.ServeMux
	store *storage.BboltStorage
	auth  *auth.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureRooms(models.DefaultRooms))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	authService, err := auth.NewAuthService(ctx, auth.Config{Secret: "test-secret", TokenExpiry: time.Hour}, store)
	require.NoError(t, err)

	a := New(authService, store, staticRooms{{Name: "main", UserCount: 2}}, "vapid-public")
	limiter := NewRateLimiter(ctx, 100, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", limiter.Limit(a.RegisterHandler))
	mux.HandleFunc("POST /api/auth/login", limiter.Limit(a.LoginHandler))
	mux.HandleFunc("POST /api/auth/logout", a.LogoutHandler)
	mux.HandleFunc("GET /api/users/me", a.RequireAuth(a.MeHandler))
	mux.HandleFunc("PUT /api/users/me/color", a.RequireAuth(a.UpdateColorHandler))
	mux.HandleFunc("PUT /api/users/me/gender", a.RequireAuth(a.UpdateGenderHandler))
	mux.HandleFunc("GET /api/rooms", a.RoomsHandler)
	mux.HandleFunc("GET /api/messages/room/{room}", a.RequireAuth(a.RoomMessagesHandler))
	mux.HandleFunc("GET /api/messages/conversations", a.RequireAuth(a.ConversationsHandler))
	mux.HandleFunc("GET /api/messages/private/{userId}", a.RequireAuth(a.PrivateMessagesHandler))
	mux.HandleFunc("POST /api/messages/mark-read/{userId}", a.RequireAuth(a.MarkReadHandler))
	mux.HandleFunc("GET /api/messages/unread-count", a.RequireAuth(a.UnreadCountHandler))
	mux.HandleFunc("GET /api/push/vapid-key", a.VAPIDKeyHandler)
	mux.HandleFunc("POST /api/push/subscribe", a.RequireAuth(a.SubscribeHandler))

	return &testServer{mux: mux, store: store, auth: authService}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) register(t *testing.T, nickname string) auth.AuthResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", auth.RegisterRequest{Nickname: nickname, Password: "secret1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp auth.AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestAuthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	reg := ts.register(t, "alice")
	require.NotEmpty(t, reg.Token)

	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", auth.RegisterRequest{Nickname: "alice", Password: "secret1"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/register", "", auth.RegisterRequest{Nickname: "a", Password: "secret1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", auth.LoginRequest{Login: "alice", Password: "wrong1"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", auth.LoginRequest{Login: "alice", Password: "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[auth.AuthResponse](t, rec)
	require.Equal(t, reg.User.ID, login.User.ID)
	require.NotEmpty(t, rec.Result().Cookies())

	rec = ts.do(t, http.MethodGet, "/api/users/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alice", decode[models.User](t, rec).Nickname)

	rec = ts.do(t, http.MethodPost, "/api/auth/logout", login.Token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/users/me", login.Token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/users/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCookieAuth(t *testing.T) {
	ts := newTestServer(t)
	reg := ts.register(t, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(&http.Cookie{Name: tokenCookie, Value: reg.Token})
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestProfileEndpoints(t *testing.T) {
	ts := newTestServer(t)
	reg := ts.register(t, "alice")

	rec := ts.do(t, http.MethodPut, "/api/users/me/color", reg.Token, colorRequest{MessageColor: "purple"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "purple", decode[models.User](t, rec).MessageColor)

	rec = ts.do(t, http.MethodPut, "/api/users/me/color", reg.Token, colorRequest{MessageColor: "pink"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/users/me/gender", reg.Token, genderRequest{Gender: models.GenderFemale})
	require.Equal(t, http.StatusOK, rec.Code)

	user, err := ts.store.GetUser(reg.User.ID)
	require.NoError(t, err)
	require.Equal(t, "purple", user.MessageColor)
	require.Equal(t, models.GenderFemale, user.Gender)
}

func TestMessageEndpoints(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bobby")

	_, err := ts.store.InsertMessage(models.Message{ID: "m1", UserID: bob.User.ID, Nickname: "bobby", Text: "hello", Room: "main", Timestamp: time.Now()})
	require.NoError(t, err)
	for i := range 3 {
		_, err := ts.store.InsertPrivateMessage(models.PrivateMessage{
			ID:           "p" + string(rune('0'+i)),
			FromUserID:   bob.User.ID,
			FromNickname: "bobby",
			ToUserID:     alice.User.ID,
			ToNickname:   "alice",
			Text:         "psst",
			Timestamp:    time.Now().Add(time.Duration(i) * time.Millisecond),
		})
		require.NoError(t, err)
	}

	rec := ts.do(t, http.MethodGet, "/api/messages/room/main", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]models.Message](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/messages/room/nowhere", alice.Token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/messages/unread-count", alice.Token, nil)
	require.Equal(t, 3, decode[unreadCountResponse](t, rec).UnreadCount)

	rec = ts.do(t, http.MethodGet, "/api/messages/conversations", alice.Token, nil)
	conversations := decode[[]models.Conversation](t, rec)
	require.Len(t, conversations, 1)
	require.Equal(t, bob.User.ID, conversations[0].UserID)
	require.Equal(t, 3, conversations[0].UnreadCount)

	rec = ts.do(t, http.MethodPost, "/api/messages/mark-read/"+bob.User.ID, alice.Token, nil)
	require.Equal(t, markReadResponse{Success: true, ModifiedCount: 3}, decode[markReadResponse](t, rec))
	rec = ts.do(t, http.MethodPost, "/api/messages/mark-read/"+bob.User.ID, alice.Token, nil)
	require.Equal(t, 0, decode[markReadResponse](t, rec).ModifiedCount)

	_, err = ts.store.InsertPrivateMessage(models.PrivateMessage{
		ID: "p9", FromUserID: bob.User.ID, FromNickname: "bobby", ToUserID: alice.User.ID, ToNickname: "alice",
		Text: "again", Timestamp: time.Now().Add(time.Second),
	})
	require.NoError(t, err)

	rec = ts.do(t, http.MethodGet, "/api/messages/private/"+bob.User.ID+"?limit=2", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	private := decode[[]models.PrivateMessage](t, rec)
	require.Len(t, private, 2)
	require.Equal(t, "again", private[1].Text)

	rec = ts.do(t, http.MethodGet, "/api/messages/unread-count", alice.Token, nil)
	require.Equal(t, 0, decode[unreadCountResponse](t, rec).UnreadCount)
}

func TestRoomsAndPush(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")

	rec := ts.do(t, http.MethodGet, "/api/rooms", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, decode[[]models.RoomSnapshot](t, rec)[0].UserCount)

	rec = ts.do(t, http.MethodGet, "/api/push/vapid-key", "", nil)
	require.Equal(t, "vapid-public", decode[vapidKeyResponse](t, rec).PublicKey)

	rec = ts.do(t, http.MethodPost, "/api/push/subscribe", alice.Token, subscribeRequest{Endpoint: "https://push/1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/push/subscribe", alice.Token, subscribeRequest{
		Endpoint: "https://push/1",
		Keys:     models.PushKeys{P256dh: "key", Auth: "auth"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	subs, err := ts.store.ListPushSubscriptions(alice.User.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 2, time.Hour)
	handler := rl.Limit(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		handler(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	require.True(t, rl.Allow("10.0.0.2"))
}

func TestRequireSameOrigin(t *testing.T) {
	handler := RequireSameOrigin(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for origin, want := range map[string]int{
		"":                     http.StatusOK,
		"http://example.com":   http.StatusOK,
		"https://evil.example": http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodPost, "http://example.com/api/auth/logout", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		rec := httptest.NewRecorder()
		handler(rec, req)
		require.Equal(t, want, rec.Code, origin)
	}
}

func TestAdminHandler(t *testing.T) {
	ts := newTestServer(t)
	broadcaster := &countingBroadcaster{}
	presence := mapPresence{"main": {{ConnectionID: "c1", Nickname: "alice"}}}
	h := NewAdminHandler(ts.store, presence, broadcaster)

	post := func(body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		rec := httptest.NewRecorder()
		h.AddRoomHandler(rec, httptest.NewRequest(http.MethodPost, "/admin/rooms", &buf))
		return rec
	}

	rec := post(AddRoomRequest{Name: "Bad Name"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, broadcaster.calls)

	rec = post(AddRoomRequest{Name: "games", DisplayName: "Игры"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Игры", decode[models.Room](t, rec).DisplayName)
	require.Equal(t, 1, broadcaster.calls)

	room, err := ts.store.GetRoom("games")
	require.NoError(t, err)
	require.Equal(t, "Игры", room.DisplayName)

	rec = httptest.NewRecorder()
	h.PresenceHandler(rec, httptest.NewRequest(http.MethodGet, "/admin/presence", nil))
	snapshot := decode[map[string][]models.Member](t, rec)
	require.Equal(t, "alice", snapshot["main"][0].Nickname)
}
