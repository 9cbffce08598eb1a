package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 16 * 1024
)

type Server struct {
	hub      eventHub
	handler  eventHandler
	upgrader *websocket.Upgrader
	wg       sync.WaitGroup
}

// NewServer returns the websocket endpoint. An empty allowedOrigin accepts
// any origin.
func NewServer(hub eventHub, handler eventHandler, allowedOrigin string) *Server {
	return &Server{
		hub:     hub,
		handler: handler,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || origin == "" || origin == allowedOrigin
			},
		},
	}
}

// HandleConnections upgrades the request and serves the socket until it
// closes. Authentication happens over the socket.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("error upgrading to websocket", "error", err)
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("failed to set read deadline", "error", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	connectionID := uuid.NewString()
	slog.Debug("websocket connected", "connection_id", connectionID, "remote_addr", r.RemoteAddr)

	c := NewConnection(s.hub, s.handler, &gorillaConn{Conn: conn}, connectionID)
	if err := c.Handle(r.Context()); err != nil && !isClosure(err) {
		slog.Info("websocket closed", "connection_id", connectionID, "error", err)
		return
	}
	slog.Debug("websocket closed", "connection_id", connectionID)
}

// Wait blocks until every served connection has finished its cleanup.
func (s *Server) Wait() {
	s.wg.Wait()
}

// gorillaConn adds write deadlines and pings to *websocket.Conn.
type gorillaConn struct {
	*websocket.Conn
}

func (c *gorillaConn) WriteJSON(v any) error {
	if err := c.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.Conn.WriteJSON(v)
}

func (c *gorillaConn) Ping() error {
	return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func isClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
		errors.Is(err, errHubClosed)
}
