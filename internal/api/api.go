package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"boltalka/internal/auth"
	"boltalka/internal/models"
)

const tokenCookie = "token"

type authenticator interface {
	Register(req auth.RegisterRequest) (auth.AuthResponse, error)
	Login(req auth.LoginRequest) (auth.AuthResponse, error)
	Logout(token string) error
	UserID(token string) (string, error)
}

type dataStore interface {
	GetUser(id string) (models.User, error)
	UpdateProfile(user models.User) error
	GetRoom(name string) (models.Room, error)
	LastMessages(room string, limit int) ([]models.Message, error)
	Conversations(userID string) ([]models.Conversation, error)
	PrivateMessages(userID, partnerID string, limit int) ([]models.PrivateMessage, error)
	MarkRead(recipientID, senderID string) (int, error)
	UnreadCount(userID string) (int, error)
	AddPushSubscription(sub models.PushSubscription) error
}

type roomLister interface {
	Rooms() ([]models.RoomSnapshot, error)
}

type API struct {
	auth           authenticator
	store          dataStore
	rooms          roomLister
	vapidPublicKey string
}

func New(auth authenticator, store dataStore, rooms roomLister, vapidPublicKey string) *API {
	return &API{
		auth:           auth,
		store:          store,
		rooms:          rooms,
		vapidPublicKey: vapidPublicKey,
	}
}

type userIDKey struct{}

// UserIDFromContext returns the user set by RequireAuth.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// RequireAuth accepts a bearer token or the token cookie.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.auth.UserID(getToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	}
}

// RequireSameOrigin rejects browser requests whose Origin host differs from
// the request host. Requests without Origin pass.
func RequireSameOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			host := origin
			if i := strings.Index(host, "://"); i >= 0 {
				host = host[i+3:]
			}
			if host != r.Host {
				writeError(w, http.StatusForbidden, "cross-origin request rejected")
				return
			}
		}
		next(w, r)
	}
}

func getToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(tokenCookie); err == nil {
		return c.Value
	}
	return ""
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// queryLimit parses ?limit=, falling back to def and capping at ceiling.
func queryLimit(r *http.Request, def, ceiling int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	return min(limit, ceiling)
}
