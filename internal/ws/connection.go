package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"boltalka/internal/chat"
	"boltalka/internal/models"
)

const defaultPingInterval = 54 * time.Second

var errHubClosed = errors.New("hub closed the connection")

type wsConnection interface {
	Close() error
	WriteJSON(v any) error
	ReadJSON(v any) error
	Ping() error
}

type eventHub interface {
	Register(connectionID string) <-chan models.ServerEvent
	Unregister(connectionID string)
}

type eventHandler interface {
	Handle(s *chat.Session, cmd models.ClientCommand) error
	Reject(s *chat.Session, err error)
	Disconnect(s *chat.Session)
}

// clientFrame is a frame read from the socket, or the decode error for it.
type clientFrame struct {
	event models.ClientEvent
	err   error
}

// Connection serves one websocket. The session is only touched by the main
// loop goroutine and, after it returns, by Handle.
type Connection struct {
	ws           wsConnection
	hub          eventHub
	handler      eventHandler
	session      *chat.Session
	fromClient   chan clientFrame
	fromServer   <-chan models.ServerEvent
	errorCh      chan error
	pingInterval time.Duration
}

func NewConnection(
	hub eventHub,
	handler eventHandler,
	ws wsConnection,
	connectionID string,
) *Connection {
	return &Connection{
		ws:           ws,
		hub:          hub,
		handler:      handler,
		session:      chat.NewSession(connectionID),
		fromClient:   make(chan clientFrame),
		fromServer:   hub.Register(connectionID),
		errorCh:      make(chan error, 2),
		pingInterval: defaultPingInterval,
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Unregister(c.session.ConnectionID)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	c.handler.Disconnect(c.session)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var frame clientFrame
		if err := c.ws.ReadJSON(&frame.event); err != nil {
			if !isDecodeError(err) {
				return err
			}
			frame = clientFrame{err: errors.Join(models.ErrMalformedEvent, err)}
		}
		select {
		case c.fromClient <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.fromClient:
			if err := c.processClientFrame(frame); err != nil {
				c.flush()
				return err
			}
		case event, ok := <-c.fromServer:
			if !ok {
				return errHubClosed
			}
			if err := c.ws.WriteJSON(event); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.ws.Ping(); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processClientFrame(frame clientFrame) error {
	if frame.err != nil {
		c.handler.Reject(c.session, frame.err)
		return nil
	}

	cmd, err := frame.event.Decode()
	if err != nil {
		c.handler.Reject(c.session, err)
		return nil
	}

	return c.handler.Handle(c.session, cmd)
}

// flush writes the events already queued for the connection, so a terminal
// error reaches the client before the socket closes.
func (c *Connection) flush() {
	for {
		select {
		case event, ok := <-c.fromServer:
			if !ok {
				return
			}
			if err := c.ws.WriteJSON(event); err != nil {
				return
			}
		default:
			return
		}
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
