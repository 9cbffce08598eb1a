package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"boltalka/internal/auth"
	"boltalka/internal/content"
	"boltalka/internal/models"
)

const (
	defaultRoomHistory    = 50
	defaultPrivateHistory = 100
	maxHistory            = 500
)

func setTokenCookie(w http.ResponseWriter, resp auth.AuthResponse) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    resp.Token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(resp.TokenExpiry, 0),
	})
}

func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := a.auth.Register(req)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	setTokenCookie(w, resp)
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		slog.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	setTokenCookie(w, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if token := getToken(r); token != "" {
		_ = a.auth.Logout(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.store.GetUser(UserIDFromContext(r.Context()))
	if err != nil {
		a.storeError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type colorRequest struct {
	MessageColor string `json:"messageColor"`
}

type genderRequest struct {
	Gender models.Gender `json:"gender"`
}

func (a *API) UpdateColorHandler(w http.ResponseWriter, r *http.Request) {
	var req colorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := content.ValidateMessageColor(req.MessageColor); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.updateProfile(w, r, func(u *models.User) { u.MessageColor = req.MessageColor })
}

func (a *API) UpdateGenderHandler(w http.ResponseWriter, r *http.Request) {
	var req genderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := content.ValidateGender(req.Gender); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.updateProfile(w, r, func(u *models.User) { u.Gender = req.Gender })
}

// updateProfile changes stored attributes only. Live sessions keep the
// values they authenticated with until they reconnect.
func (a *API) updateProfile(w http.ResponseWriter, r *http.Request, change func(u *models.User)) {
	user, err := a.store.GetUser(UserIDFromContext(r.Context()))
	if err != nil {
		a.storeError(w, err, "user not found")
		return
	}
	change(&user)
	if err := a.store.UpdateProfile(user); err != nil {
		a.storeError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.rooms.Rooms()
	if err != nil {
		a.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (a *API) RoomMessagesHandler(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	if _, err := a.store.GetRoom(room); err != nil {
		a.storeError(w, err, "room not found")
		return
	}

	messages, err := a.store.LastMessages(room, queryLimit(r, defaultRoomHistory, maxHistory))
	if err != nil {
		a.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (a *API) ConversationsHandler(w http.ResponseWriter, r *http.Request) {
	conversations, err := a.store.Conversations(UserIDFromContext(r.Context()))
	if err != nil {
		a.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}

// PrivateMessagesHandler returns the exchange with a partner and marks the
// partner's messages as read.
func (a *API) PrivateMessagesHandler(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	partnerID := r.PathValue("userId")

	messages, err := a.store.PrivateMessages(userID, partnerID, queryLimit(r, defaultPrivateHistory, maxHistory))
	if err != nil {
		a.storeError(w, err, "")
		return
	}
	if _, err := a.store.MarkRead(userID, partnerID); err != nil {
		slog.Error("failed to mark messages read", "user_id", userID, "partner_id", partnerID, "error", err)
	}
	writeJSON(w, http.StatusOK, messages)
}

type markReadResponse struct {
	Success       bool `json:"success"`
	ModifiedCount int  `json:"modifiedCount"`
}

func (a *API) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	modified, err := a.store.MarkRead(UserIDFromContext(r.Context()), r.PathValue("userId"))
	if err != nil {
		a.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{Success: true, ModifiedCount: modified})
}

type unreadCountResponse struct {
	UnreadCount int `json:"unreadCount"`
}

func (a *API) UnreadCountHandler(w http.ResponseWriter, r *http.Request) {
	count, err := a.store.UnreadCount(UserIDFromContext(r.Context()))
	if err != nil {
		a.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, unreadCountResponse{UnreadCount: count})
}

type vapidKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

func (a *API) VAPIDKeyHandler(w http.ResponseWriter, r *http.Request) {
	if a.vapidPublicKey == "" {
		writeError(w, http.StatusNotFound, "push notifications are disabled")
		return
	}
	writeJSON(w, http.StatusOK, vapidKeyResponse{PublicKey: a.vapidPublicKey})
}

type subscribeRequest struct {
	Endpoint string          `json:"endpoint"`
	Keys     models.PushKeys `json:"keys"`
}

func (a *API) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint and keys are required")
		return
	}

	err := a.store.AddPushSubscription(models.PushSubscription{
		UserID:   UserIDFromContext(r.Context()),
		Endpoint: req.Endpoint,
		Keys:     req.Keys,
	})
	if err != nil {
		a.storeError(w, err, "")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// storeError maps models.ErrNotFound to 404 and everything else to 500.
func (a *API) storeError(w http.ResponseWriter, err error, notFound string) {
	if notFound != "" && errors.Is(err, models.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	slog.Error("storage error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
