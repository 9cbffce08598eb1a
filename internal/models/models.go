package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// MessageColors lists the colors a user may pick for their messages.
var MessageColors = []string{"black", "blue", "green", "purple", "orange"}

const DefaultMessageColor = "black"

// User represents a registered chat user.
type User struct {
	ID           string    `json:"id"`
	Nickname     string    `json:"nickname"`
	Email        string    `json:"email,omitempty"`
	MessageColor string    `json:"messageColor"`
	Gender       Gender    `json:"gender"`
	CreatedAt    time.Time `json:"createdAt"`
	LastSeen     time.Time `json:"lastSeen"`
}

// Room is a durable named channel scoping public messages and presence.
type Room struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Message is a public room message.
// ToUserID and ToNickname are an @-mention annotation, not a delivery restriction.
type Message struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Nickname     string    `json:"nickname"`
	MessageColor string    `json:"messageColor"`
	Text         string    `json:"text"`
	Room         string    `json:"room"`
	ToUserID     string    `json:"toUserId,omitempty"`
	ToNickname   string    `json:"toNickname,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// PrivateMessage is a message addressed to a single recipient.
type PrivateMessage struct {
	ID               string    `json:"id"`
	FromUserID       string    `json:"fromUserId"`
	FromNickname     string    `json:"fromNickname"`
	FromMessageColor string    `json:"fromMessageColor"`
	ToUserID         string    `json:"toUserId"`
	ToNickname       string    `json:"toNickname"`
	Text             string    `json:"text"`
	Read             bool      `json:"read"`
	Timestamp        time.Time `json:"timestamp"`
}

// Conversation summarizes the private message history with one counterpart.
// It is computed on demand and never stored.
type Conversation struct {
	UserID            string    `json:"userId"`
	Nickname          string    `json:"nickname"`
	LastMessage       string    `json:"lastMessage"`
	LastMessageTime   time.Time `json:"lastMessageTime"`
	UnreadCount       int       `json:"unreadCount"`
	LastMessageFromMe bool      `json:"lastMessageFromMe"`
}

// Member is a live connection present in a room.
type Member struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	Nickname     string `json:"nickname"`
	MessageColor string `json:"messageColor"`
	Gender       Gender `json:"gender"`
}

// RoomSnapshot is a room joined with its live occupancy.
type RoomSnapshot struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Description string   `json:"description"`
	UserCount   int      `json:"userCount"`
	Users       []Member `json:"users"`
}

// PushSubscription is a browser web-push endpoint registered by a user.
type PushSubscription struct {
	UserID   string   `json:"userId"`
	Endpoint string   `json:"endpoint"`
	Keys     PushKeys `json:"keys"`
}

type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// DefaultRooms are created on startup when absent.
var DefaultRooms = []Room{
	{Name: "main", DisplayName: "Главная", Description: "Общий чат"},
	{Name: "dating", DisplayName: "Знакомства", Description: "Знакомства и общение"},
	{Name: "lounge", DisplayName: "Беспредел", Description: "Свободное общение"},
}
