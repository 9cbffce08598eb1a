package storage

import (
	"encoding"
	"encoding/binary"
	"time"

	"boltalka/internal/models"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID           string `msgpack:"id"`
	Nickname     string `msgpack:"nickname"`
	Email        string `msgpack:"email"`
	PasswordHash string `msgpack:"passwordHash"`
	MessageColor string `msgpack:"messageColor"`
	Gender       string `msgpack:"gender"`
	CreatedAt    int64  `msgpack:"createdAt"`
	LastSeen     int64  `msgpack:"lastSeen"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

func (u *DBUser) toModel() models.User {
	return models.User{
		ID:           u.ID,
		Nickname:     u.Nickname,
		Email:        u.Email,
		MessageColor: u.MessageColor,
		Gender:       models.Gender(u.Gender),
		CreatedAt:    fromMillis(u.CreatedAt),
		LastSeen:     fromMillis(u.LastSeen),
	}
}

type DBRoom struct {
	Name        string `msgpack:"name"`
	DisplayName string `msgpack:"displayName"`
	Description string `msgpack:"description"`
	CreatedAt   int64  `msgpack:"createdAt"`
}

func (r *DBRoom) Key() []byte {
	return []byte(r.Name)
}

func (r *DBRoom) MarshalBinary() (data []byte, err error) {
	type alias DBRoom
	return msgpack.Marshal((*alias)(r))
}

func (r *DBRoom) UnmarshalBinary(data []byte) error {
	type alias DBRoom
	return msgpack.Unmarshal(data, (*alias)(r))
}

func (r *DBRoom) toModel() models.Room {
	return models.Room{
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Description: r.Description,
		CreatedAt:   fromMillis(r.CreatedAt),
	}
}

type DBMessage struct {
	Seq          uint64 `msgpack:"seq"`
	ID           string `msgpack:"id"`
	UserID       string `msgpack:"userId"`
	Nickname     string `msgpack:"nickname"`
	MessageColor string `msgpack:"messageColor"`
	Text         string `msgpack:"text"`
	Room         string `msgpack:"room"`
	ToUserID     string `msgpack:"toUserId"`
	ToNickname   string `msgpack:"toNickname"`
	Timestamp    int64  `msgpack:"timestamp"`
}

// Key orders messages by timestamp, then by insertion sequence.
func (m *DBMessage) Key() []byte {
	return timeKey(m.Timestamp, m.Seq)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func (m *DBMessage) toModel() models.Message {
	return models.Message{
		ID:           m.ID,
		UserID:       m.UserID,
		Nickname:     m.Nickname,
		MessageColor: m.MessageColor,
		Text:         m.Text,
		Room:         m.Room,
		ToUserID:     m.ToUserID,
		ToNickname:   m.ToNickname,
		Timestamp:    fromMillis(m.Timestamp),
	}
}

type DBPrivateMessage struct {
	Seq              uint64 `msgpack:"seq"`
	ID               string `msgpack:"id"`
	FromUserID       string `msgpack:"fromUserId"`
	FromNickname     string `msgpack:"fromNickname"`
	FromMessageColor string `msgpack:"fromMessageColor"`
	ToUserID         string `msgpack:"toUserId"`
	ToNickname       string `msgpack:"toNickname"`
	Text             string `msgpack:"text"`
	Read             bool   `msgpack:"read"`
	Timestamp        int64  `msgpack:"timestamp"`
}

func (m *DBPrivateMessage) Key() []byte {
	return timeKey(m.Timestamp, m.Seq)
}

func (m *DBPrivateMessage) MarshalBinary() (data []byte, err error) {
	type alias DBPrivateMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBPrivateMessage) UnmarshalBinary(data []byte) error {
	type alias DBPrivateMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func (m *DBPrivateMessage) toModel() models.PrivateMessage {
	return models.PrivateMessage{
		ID:               m.ID,
		FromUserID:       m.FromUserID,
		FromNickname:     m.FromNickname,
		FromMessageColor: m.FromMessageColor,
		ToUserID:         m.ToUserID,
		ToNickname:       m.ToNickname,
		Text:             m.Text,
		Read:             m.Read,
		Timestamp:        fromMillis(m.Timestamp),
	}
}

type DBPushSubscription struct {
	UserID   string `msgpack:"userId"`
	Endpoint string `msgpack:"endpoint"`
	P256dh   string `msgpack:"p256dh"`
	Auth     string `msgpack:"auth"`
}

func (s *DBPushSubscription) Key() []byte {
	return []byte(s.Endpoint)
}

func (s *DBPushSubscription) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscription
	return msgpack.Marshal((*alias)(s))
}

func (s *DBPushSubscription) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscription
	return msgpack.Unmarshal(data, (*alias)(s))
}

func timeKey(millis int64, seq uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(millis))
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
