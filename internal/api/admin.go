package api

import (
	"net/http"
	"regexp"
	"strings"

	"boltalka/internal/models"
)

var roomNameRegex = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

type roomStore interface {
	UpsertRoom(room models.Room) (models.Room, error)
}

type presenceSource interface {
	Snapshot() map[string][]models.Member
}

type roomBroadcaster interface {
	BroadcastRooms()
}

type AdminHandler struct {
	store     roomStore
	presence  presenceSource
	broadcast roomBroadcaster
}

func NewAdminHandler(store roomStore, presence presenceSource, broadcast roomBroadcaster) *AdminHandler {
	return &AdminHandler{store: store, presence: presence, broadcast: broadcast}
}

type AddRoomRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
}

// AddRoomHandler creates or updates a room and pushes the new room list to
// every connection.
func (h *AdminHandler) AddRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req AddRoomRequest
	if !decodeBody(w, r, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	if !roomNameRegex.MatchString(name) {
		writeError(w, http.StatusBadRequest, "room name must be 1-32 lowercase letters, digits, dash or underscore")
		return
	}

	room, err := h.store.UpsertRoom(models.Room{
		Name:        name,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save room: "+err.Error())
		return
	}

	h.broadcast.BroadcastRooms()
	writeJSON(w, http.StatusOK, room)
}

// PresenceHandler returns every room's live members.
func (h *AdminHandler) PresenceHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.presence.Snapshot())
}
