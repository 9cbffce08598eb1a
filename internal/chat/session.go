package chat

import "boltalka/internal/models"

// Session is the state of one connection. It is owned by the goroutine
// serving that connection and must not be shared.
type Session struct {
	ConnectionID string

	// Copied from the user at authentication time.
	UserID       string
	Nickname     string
	MessageColor string
	Gender       models.Gender

	// Empty when the session is not in a room.
	CurrentRoom string
}

func NewSession(connectionID string) *Session {
	return &Session{ConnectionID: connectionID}
}

func (s *Session) Authenticated() bool {
	return s.UserID != ""
}

// Member is the presence entry for this session.
func (s *Session) Member() models.Member {
	return models.Member{
		ConnectionID: s.ConnectionID,
		UserID:       s.UserID,
		Nickname:     s.Nickname,
		MessageColor: s.MessageColor,
		Gender:       s.Gender,
	}
}

func (s *Session) bind(user models.User, room string) {
	s.UserID = user.ID
	s.Nickname = user.Nickname
	s.MessageColor = user.MessageColor
	s.Gender = user.Gender
	s.CurrentRoom = room
}

func (s *Session) reset() {
	*s = Session{ConnectionID: s.ConnectionID}
}
