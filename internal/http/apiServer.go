package http

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"boltalka/internal/api"
)

const (
	authAttempts = 5
	authWindow   = 15 * time.Minute
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

// NewAPIServer wires the public REST routes and the websocket endpoint.
// assets may be nil when no frontend is served.
func NewAPIServer(ctx context.Context, apiHandlers *api.API, chat http.HandlerFunc, assets fs.FS, addr string) *APIServer {
	limiter := api.NewRateLimiter(ctx, authAttempts, authWindow)

	mux := http.NewServeMux()

	if assets != nil {
		mux.HandleFunc("/", NewFileServerHandler(assets))
	}

	// Auth
	mux.HandleFunc("POST /api/auth/register", api.RequireSameOrigin(limiter.Limit(apiHandlers.RegisterHandler)))
	mux.HandleFunc("POST /api/auth/login", api.RequireSameOrigin(limiter.Limit(apiHandlers.LoginHandler)))
	mux.HandleFunc("POST /api/auth/logout", api.RequireSameOrigin(apiHandlers.LogoutHandler))

	// Users
	mux.HandleFunc("GET /api/users/me", apiHandlers.RequireAuth(apiHandlers.MeHandler))
	mux.HandleFunc("PUT /api/users/me/color", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.UpdateColorHandler)))
	mux.HandleFunc("PUT /api/users/me/gender", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.UpdateGenderHandler)))

	// Rooms and messages
	mux.HandleFunc("GET /api/rooms", apiHandlers.RoomsHandler)
	mux.HandleFunc("GET /api/messages/room/{room}", apiHandlers.RequireAuth(apiHandlers.RoomMessagesHandler))
	mux.HandleFunc("GET /api/messages/conversations", apiHandlers.RequireAuth(apiHandlers.ConversationsHandler))
	mux.HandleFunc("GET /api/messages/private/{userId}", apiHandlers.RequireAuth(apiHandlers.PrivateMessagesHandler))
	mux.HandleFunc("POST /api/messages/mark-read/{userId}", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.MarkReadHandler)))
	mux.HandleFunc("GET /api/messages/unread-count", apiHandlers.RequireAuth(apiHandlers.UnreadCountHandler))

	// Push
	mux.HandleFunc("GET /api/push/vapid-key", apiHandlers.VAPIDKeyHandler)
	mux.HandleFunc("POST /api/push/subscribe", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.SubscribeHandler)))

	// WebSocket endpoint
	mux.HandleFunc("GET /api/chat", chat)

	mux.HandleFunc("GET /healthz", apiHandlers.HealthHandler)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
