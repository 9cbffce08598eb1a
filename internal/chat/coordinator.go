package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"boltalka/internal/auth"
	"boltalka/internal/models"
	"boltalka/internal/presence"
)

const (
	DefaultHistoryLimit = 50
	DefaultRoom         = "main"
)

// ErrTerminal is returned when the connection must be closed.
var ErrTerminal = errors.New("connection terminated")

type Verifier interface {
	Authenticate(token string) (models.User, error)
}

type Store interface {
	ListRooms() ([]models.Room, error)
	LastMessages(room string, limit int) ([]models.Message, error)
	InsertMessage(message models.Message) (models.Message, error)
	InsertPrivateMessage(message models.PrivateMessage) (models.PrivateMessage, error)
}

// Transport delivers events to live connections only. Nothing is queued for
// connections that are gone.
type Transport interface {
	JoinGroup(connectionID, group string)
	LeaveGroup(connectionID, group string)
	EmitToGroup(group string, event models.ServerEvent)
	EmitToConnection(connectionID string, event models.ServerEvent)
	EmitToAll(event models.ServerEvent)
}

// Coordinator moves sessions in and out of rooms and keeps every client's
// room list current.
type Coordinator struct {
	verifier     Verifier
	store        Store
	registry     *presence.Registry
	transport    Transport
	historyLimit int
	defaultRoom  string
}

func roomGroup(room string) string {
	return "room:" + room
}

// Authenticate verifies the token and places the session in its room.
// Failure emits auth_error and returns ErrTerminal.
func (c *Coordinator) Authenticate(s *Session, token, requestedRoom string) error {
	if s.Authenticated() {
		c.emitError(s, "already authenticated")
		return nil
	}

	user, err := c.verifier.Authenticate(token)
	if err != nil {
		slog.Warn("authentication failed", "connection_id", s.ConnectionID, "error", err)
		reason := "invalid token"
		if errors.Is(err, auth.ErrUserNotFound) {
			reason = "user not found"
		}
		c.transport.EmitToConnection(s.ConnectionID, models.NewAuthErrorEvent(reason))
		return fmt.Errorf("%w: %w", ErrTerminal, err)
	}

	room := c.resolveRoom(strings.TrimSpace(requestedRoom))
	s.bind(user, room)
	c.enter(s, room)

	c.transport.EmitToConnection(s.ConnectionID, models.NewHistoryEvent(c.history(room)))
	c.transport.EmitToConnection(s.ConnectionID, models.ServerEvent{
		Type: models.ServerEventAuthenticated,
		Data: models.AuthenticatedPayload{Nickname: s.Nickname, Room: room},
	})
	c.BroadcastRooms()
	c.transport.EmitToGroup(roomGroup(room), presenceEvent(models.ServerEventUserJoined, s, room, joinedText(s.Gender)))

	slog.Info("user authenticated", "connection_id", s.ConnectionID, "user_id", s.UserID, "room", room)
	return nil
}

// SwitchRoom moves an authenticated session into another existing room.
func (c *Coordinator) SwitchRoom(s *Session, room string) {
	if !s.Authenticated() {
		c.emitError(s, "not authenticated")
		return
	}

	room = strings.TrimSpace(room)
	if room == "" {
		c.emitError(s, "room name is required")
		return
	}
	exists, err := c.roomExists(room)
	if err != nil {
		slog.Error("failed to list rooms", "error", err)
		c.emitError(s, "failed to switch room")
		return
	}
	if !exists {
		c.emitError(s, "unknown room")
		return
	}

	old := s.CurrentRoom
	if old == room {
		c.transport.EmitToConnection(s.ConnectionID, models.NewRoomChangedEvent(room, c.history(room)))
		return
	}

	if old != "" {
		c.exit(s, old)
		c.transport.EmitToGroup(roomGroup(old), presenceEvent(models.ServerEventUserLeft, s, old, switchedText(s.Gender, room)))
	}

	s.CurrentRoom = room
	c.enter(s, room)

	c.transport.EmitToConnection(s.ConnectionID, models.NewRoomChangedEvent(room, c.history(room)))
	c.BroadcastRooms()
	c.transport.EmitToGroup(roomGroup(room), presenceEvent(models.ServerEventUserJoined, s, room, joinedText(s.Gender)))

	slog.Info("user switched room", "connection_id", s.ConnectionID, "user_id", s.UserID, "from", old, "to", room)
}

// Disconnect removes the session from presence. Calling it again, or for a
// session that never authenticated, does nothing.
func (c *Coordinator) Disconnect(s *Session) {
	if !s.Authenticated() {
		return
	}

	room := s.CurrentRoom
	c.registry.Remove(s.ConnectionID)
	if room != "" {
		c.transport.LeaveGroup(s.ConnectionID, roomGroup(room))
		c.transport.EmitToGroup(roomGroup(room), presenceEvent(models.ServerEventUserLeft, s, room, leftText(s.Gender)))
	}

	slog.Info("user disconnected", "connection_id", s.ConnectionID, "user_id", s.UserID)
	s.reset()
	c.BroadcastRooms()
}

// Rooms joins the durable room list with live occupancy.
func (c *Coordinator) Rooms() ([]models.RoomSnapshot, error) {
	rooms, err := c.store.ListRooms()
	if err != nil {
		return nil, err
	}

	live := c.registry.Snapshot()
	snapshots := make([]models.RoomSnapshot, 0, len(rooms))
	for _, room := range rooms {
		users := live[room.Name]
		if users == nil {
			users = []models.Member{}
		}
		snapshots = append(snapshots, models.RoomSnapshot{
			Name:        room.Name,
			DisplayName: room.DisplayName,
			Description: room.Description,
			UserCount:   len(users),
			Users:       users,
		})
	}
	return snapshots, nil
}

// BroadcastRooms sends the full room snapshot to every connection.
func (c *Coordinator) BroadcastRooms() {
	rooms, err := c.Rooms()
	if err != nil {
		slog.Error("failed to build rooms snapshot", "error", err)
		return
	}
	c.transport.EmitToAll(models.NewRoomsUpdateEvent(rooms))
}

func (c *Coordinator) enter(s *Session, room string) {
	c.registry.Join(room, s.Member())
	c.transport.JoinGroup(s.ConnectionID, roomGroup(room))
}

func (c *Coordinator) exit(s *Session, room string) {
	c.registry.Leave(room, s.ConnectionID)
	c.transport.LeaveGroup(s.ConnectionID, roomGroup(room))
}

// history degrades to an empty list when the store fails.
func (c *Coordinator) history(room string) []models.Message {
	messages, err := c.store.LastMessages(room, c.historyLimit)
	if err != nil {
		slog.Error("failed to load history", "room", room, "error", err)
		return []models.Message{}
	}
	return messages
}

func (c *Coordinator) resolveRoom(requested string) string {
	if requested == "" {
		return c.defaultRoom
	}
	exists, err := c.roomExists(requested)
	if err != nil {
		slog.Error("failed to list rooms", "error", err)
		return c.defaultRoom
	}
	if !exists {
		slog.Warn("requested room does not exist", "room", requested)
		return c.defaultRoom
	}
	return requested
}

func (c *Coordinator) roomExists(name string) (bool, error) {
	rooms, err := c.store.ListRooms()
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(rooms, func(r models.Room) bool {
		return r.Name == name
	}), nil
}

func (c *Coordinator) emitError(s *Session, reason string) {
	c.transport.EmitToConnection(s.ConnectionID, models.NewErrorEvent(reason))
}

func presenceEvent(t models.ServerEventType, s *Session, room, message string) models.ServerEvent {
	return models.ServerEvent{
		Type: t,
		Data: models.PresencePayload{
			Nickname:     s.Nickname,
			MessageColor: s.MessageColor,
			Gender:       s.Gender,
			Room:         room,
			Message:      message,
			UserID:       s.UserID,
		},
	}
}
