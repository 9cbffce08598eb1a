package chat

import (
	"errors"
	"log/slog"
	"time"

	"boltalka/internal/models"
	"boltalka/internal/presence"
)

type Config struct {
	Verifier  Verifier
	Store     Store
	Registry  *presence.Registry
	Transport Transport
	// Notifier is optional.
	Notifier Notifier

	HistoryLimit int
	DefaultRoom  string
	Now          func() time.Time
}

// Service dispatches client commands of every connection to the Coordinator
// and the Router.
type Service struct {
	*Coordinator
	*Router
}

func NewService(config Config) (*Service, error) {
	if config.Verifier == nil || config.Store == nil || config.Transport == nil {
		return nil, errors.New("chat: verifier, store and transport are required")
	}
	if config.Registry == nil {
		config.Registry = presence.NewRegistry()
	}
	if config.Notifier == nil {
		config.Notifier = noopNotifier{}
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultHistoryLimit
	}
	if config.DefaultRoom == "" {
		config.DefaultRoom = DefaultRoom
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Service{
		Coordinator: &Coordinator{
			verifier:     config.Verifier,
			store:        config.Store,
			registry:     config.Registry,
			transport:    config.Transport,
			historyLimit: config.HistoryLimit,
			defaultRoom:  config.DefaultRoom,
		},
		Router: &Router{
			store:     config.Store,
			registry:  config.Registry,
			transport: config.Transport,
			notifier:  config.Notifier,
			now:       config.Now,
		},
	}, nil
}

// Handle runs one decoded command for the session. A returned error wraps
// ErrTerminal and means the connection must be closed.
func (svc *Service) Handle(s *Session, cmd models.ClientCommand) error {
	switch cmd := cmd.(type) {
	case models.Authenticate:
		return svc.Authenticate(s, cmd.Token, cmd.Room)
	case models.JoinRoom:
		svc.SwitchRoom(s, cmd.Room)
	case models.SendMessage:
		svc.HandleSend(s, cmd)
	case models.Typing:
		svc.HandleTyping(s)
	default:
		slog.Warn("unhandled command", "connection_id", s.ConnectionID, "command", cmd)
		svc.Coordinator.emitError(s, "unknown event")
	}
	return nil
}

// Reject answers a frame that could not be decoded.
func (svc *Service) Reject(s *Session, err error) {
	slog.Debug("rejected client event", "connection_id", s.ConnectionID, "error", err)
	switch {
	case errors.Is(err, models.ErrUnknownEvent):
		svc.Coordinator.emitError(s, "unknown event")
	default:
		svc.Coordinator.emitError(s, "malformed event")
	}
}
