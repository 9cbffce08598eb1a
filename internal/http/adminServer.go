package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"boltalka/internal/api"
)

type AdminServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

// NewAdminServer serves room management and the presence snapshot. It is
// meant to listen on loopback only.
func NewAdminServer(adminHandler *api.AdminHandler, addr string) *AdminServer {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/rooms", adminHandler.AddRoomHandler)
	mux.HandleFunc("GET /admin/presence", adminHandler.PresenceHandler)

	if addr == "" {
		addr = "localhost:8081"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *AdminServer) Start() error {
	log.Printf("Admin API started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
