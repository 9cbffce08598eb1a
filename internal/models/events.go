package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrMalformedEvent = errors.New("malformed event")
)

type ClientEventType string

const (
	ClientEventAuthenticate ClientEventType = "authenticate"
	ClientEventJoinRoom     ClientEventType = "join_room"
	ClientEventSendMessage  ClientEventType = "send_message"
	ClientEventTyping       ClientEventType = "typing"
)

type ServerEventType string

const (
	ServerEventAuthenticated     ServerEventType = "authenticated"
	ServerEventAuthError         ServerEventType = "auth_error"
	ServerEventMessageHistory    ServerEventType = "message_history"
	ServerEventNewMessage        ServerEventType = "new_message"
	ServerEventPrivateMessage    ServerEventType = "private_message"
	ServerEventRoomChanged       ServerEventType = "room_changed"
	ServerEventRoomsUpdate       ServerEventType = "rooms_update"
	ServerEventUserJoined        ServerEventType = "user_joined"
	ServerEventUserLeft          ServerEventType = "user_left"
	ServerEventUserTyping        ServerEventType = "user_typing"
	ServerEventUnreadCountUpdate ServerEventType = "unread_count_update"
	ServerEventError             ServerEventType = "error"
)

// ClientEvent is a frame read from the client socket.
type ClientEvent struct {
	Type ClientEventType `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerEvent is a frame written to the client socket.
type ServerEvent struct {
	Type ServerEventType `json:"event"`
	Data any             `json:"data,omitempty"`
}

// ClientCommand is one of Authenticate, JoinRoom, SendMessage or Typing.
type ClientCommand interface {
	clientCommand()
}

type Authenticate struct {
	Token string `json:"token"`
	Room  string `json:"room,omitempty"`
}

// JoinRoom carries the target room name, sent by the client as a bare string.
type JoinRoom struct {
	Room string
}

type SendMessage struct {
	Text       string `json:"text"`
	ToUserID   string `json:"toUserId,omitempty"`
	ToNickname string `json:"toNickname,omitempty"`
}

// IsPrivate reports whether both recipient fields are set.
func (m SendMessage) IsPrivate() bool {
	return m.ToUserID != "" && m.ToNickname != ""
}

type Typing struct{}

func (Authenticate) clientCommand() {}
func (JoinRoom) clientCommand()     {}
func (SendMessage) clientCommand()  {}
func (Typing) clientCommand()       {}

// Decode converts the raw frame into its typed command.
func (e ClientEvent) Decode() (ClientCommand, error) {
	switch e.Type {
	case ClientEventAuthenticate:
		var cmd Authenticate
		if err := decodeData(e.Data, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case ClientEventJoinRoom:
		var room string
		if err := decodeData(e.Data, &room); err != nil {
			return nil, err
		}
		return JoinRoom{Room: room}, nil
	case ClientEventSendMessage:
		var cmd SendMessage
		if err := decodeData(e.Data, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case ClientEventTyping:
		return Typing{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformedEvent)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

type AuthenticatedPayload struct {
	Nickname string `json:"nickname"`
	Room     string `json:"room"`
}

type RoomChangedPayload struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

// PresencePayload is the body of user_joined and user_left.
type PresencePayload struct {
	Nickname     string `json:"nickname"`
	MessageColor string `json:"messageColor"`
	Gender       Gender `json:"gender"`
	Room         string `json:"room"`
	Message      string `json:"message"`
	UserID       string `json:"userId"`
}

type TypingPayload struct {
	Nickname string `json:"nickname"`
	Room     string `json:"room"`
}

func NewErrorEvent(reason string) ServerEvent {
	return ServerEvent{Type: ServerEventError, Data: reason}
}

func NewAuthErrorEvent(reason string) ServerEvent {
	return ServerEvent{Type: ServerEventAuthError, Data: reason}
}

func NewHistoryEvent(messages []Message) ServerEvent {
	if messages == nil {
		messages = []Message{}
	}
	return ServerEvent{Type: ServerEventMessageHistory, Data: messages}
}

func NewRoomChangedEvent(room string, messages []Message) ServerEvent {
	if messages == nil {
		messages = []Message{}
	}
	return ServerEvent{Type: ServerEventRoomChanged, Data: RoomChangedPayload{Room: room, Messages: messages}}
}

func NewRoomsUpdateEvent(rooms []RoomSnapshot) ServerEvent {
	if rooms == nil {
		rooms = []RoomSnapshot{}
	}
	return ServerEvent{Type: ServerEventRoomsUpdate, Data: rooms}
}
