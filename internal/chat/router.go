package chat

import (
	"log/slog"
	"slices"
	"time"

	"boltalka/internal/content"
	"boltalka/internal/models"
	"boltalka/internal/presence"

	"github.com/google/uuid"
)

// Notifier is told about private messages whose recipient is offline.
type Notifier interface {
	NotifyPrivateMessage(message models.PrivateMessage)
}

type noopNotifier struct{}

func (noopNotifier) NotifyPrivateMessage(models.PrivateMessage) {}

// Router persists inbound messages and fans them out.
type Router struct {
	store     Store
	registry  *presence.Registry
	transport Transport
	notifier  Notifier
	now       func() time.Time
}

// HandleSend validates, persists and delivers one message. Nothing is
// delivered unless the store accepted the message.
func (r *Router) HandleSend(s *Session, msg models.SendMessage) {
	if !s.Authenticated() {
		r.emitError(s, "not authenticated")
		return
	}
	if s.CurrentRoom == "" {
		r.emitError(s, "not in a room")
		return
	}

	text, err := content.MessageText(msg.Text)
	if err != nil {
		r.emitError(s, err.Error())
		return
	}

	if msg.IsPrivate() {
		r.sendPrivate(s, msg, text)
		return
	}
	r.sendPublic(s, msg, text)
}

func (r *Router) sendPublic(s *Session, msg models.SendMessage, text string) {
	saved, err := r.store.InsertMessage(models.Message{
		ID:           uuid.NewString(),
		UserID:       s.UserID,
		Nickname:     s.Nickname,
		MessageColor: s.MessageColor,
		Text:         text,
		Room:         s.CurrentRoom,
		ToUserID:     msg.ToUserID,
		ToNickname:   msg.ToNickname,
		Timestamp:    r.now(),
	})
	if err != nil {
		slog.Error("failed to save message", "user_id", s.UserID, "room", s.CurrentRoom, "error", err)
		r.emitError(s, "failed to send message")
		return
	}

	r.transport.EmitToGroup(roomGroup(saved.Room), models.ServerEvent{Type: models.ServerEventNewMessage, Data: saved})
}

func (r *Router) sendPrivate(s *Session, msg models.SendMessage, text string) {
	saved, err := r.store.InsertPrivateMessage(models.PrivateMessage{
		ID:               uuid.NewString(),
		FromUserID:       s.UserID,
		FromNickname:     s.Nickname,
		FromMessageColor: s.MessageColor,
		ToUserID:         msg.ToUserID,
		ToNickname:       msg.ToNickname,
		Text:             text,
		Timestamp:        r.now(),
	})
	if err != nil {
		slog.Error("failed to save private message", "from", s.UserID, "to", msg.ToUserID, "error", err)
		r.emitError(s, "failed to send message")
		return
	}

	recipients := r.registry.ConnectionsOf(saved.ToUserID)

	targets := append([]string{s.ConnectionID}, recipients...)
	slices.Sort(targets)
	targets = slices.Compact(targets)

	event := models.ServerEvent{Type: models.ServerEventPrivateMessage, Data: saved}
	for _, connID := range targets {
		r.transport.EmitToConnection(connID, event)
	}
	for _, connID := range recipients {
		r.transport.EmitToConnection(connID, models.ServerEvent{Type: models.ServerEventUnreadCountUpdate})
	}

	if len(recipients) == 0 {
		r.notifier.NotifyPrivateMessage(saved)
	}
}

// HandleTyping tells the other members of the room that the user is typing.
// Authenticated sessions outside a room are ignored.
func (r *Router) HandleTyping(s *Session) {
	if !s.Authenticated() {
		r.emitError(s, "not authenticated")
		return
	}
	if s.CurrentRoom == "" {
		return
	}

	event := models.ServerEvent{
		Type: models.ServerEventUserTyping,
		Data: models.TypingPayload{Nickname: s.Nickname, Room: s.CurrentRoom},
	}
	for _, member := range r.registry.MembersOf(s.CurrentRoom) {
		if member.ConnectionID == s.ConnectionID {
			continue
		}
		r.transport.EmitToConnection(member.ConnectionID, event)
	}
}

func (r *Router) emitError(s *Session, reason string) {
	r.transport.EmitToConnection(s.ConnectionID, models.NewErrorEvent(reason))
}
