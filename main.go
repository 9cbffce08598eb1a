package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"io/fs"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"boltalka/internal/api"
	"boltalka/internal/auth"
	"boltalka/internal/chat"
	"boltalka/internal/commands"
	"boltalka/internal/config"
	"boltalka/internal/http"
	"boltalka/internal/models"
	"boltalka/internal/presence"
	"boltalka/internal/push"
	"boltalka/internal/storage"
	"boltalka/internal/ws"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("boltalka", flag.ContinueOnError)
	addRoom := flags.String("add-room", "", "Room name to create or update through the admin API of a running server")
	roomTitle := flags.String("room-title", "", "Display name for -add-room")
	roomDescription := flags.String("room-description", "", "Description for -add-room")
	genVAPIDKeys := flags.Bool("gen-vapid-keys", false, "Print a new VAPID key pair for push notifications")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *genVAPIDKeys {
		return commands.GenerateVAPIDKeys(os.Stdout)
	}

	cfg, err := config.Load(*addRoom != "")
	if err != nil {
		return err
	}

	if *addRoom != "" {
		return commands.AddRoom(api.AddRoomRequest{
			Name:        *addRoom,
			DisplayName: *roomTitle,
			Description: *roomDescription,
		}, cfg)
	}

	authConfig := auth.Config{
		Secret:      base64.StdEncoding.EncodeToString([]byte(cfg.AuthSecret)),
		TokenExpiry: cfg.TokenExpiry,
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	if err := bbStorage.EnsureRooms(bootstrapRooms(cfg.DefaultRoom)); err != nil {
		return err
	}

	authService, err := auth.NewAuthService(ctx, authConfig, bbStorage)
	if err != nil {
		return err
	}

	registry := presence.NewRegistry()
	hub := ws.NewHub()
	notifier := push.NewNotifier(ctx, push.Config{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.VAPIDSubject,
	}, bbStorage)

	chatService, err := chat.NewService(chat.Config{
		Verifier:     authService,
		Store:        bbStorage,
		Registry:     registry,
		Transport:    hub,
		Notifier:     notifier,
		HistoryLimit: cfg.HistoryLimit,
		DefaultRoom:  cfg.DefaultRoom,
	})
	if err != nil {
		return err
	}

	var assets fs.FS
	if cfg.StaticDir != "" {
		assets = os.DirFS(cfg.StaticDir)
	}

	wsServer := ws.NewServer(hub, chatService, cfg.AllowedOrigin)
	apiHandlers := api.New(authService, bbStorage, chatService, notifier.PublicKey())
	apiServer := http.NewAPIServer(ctx, apiHandlers, wsServer.HandleConnections, assets, cfg.APIAddr)
	adminServer := http.NewAdminServer(api.NewAdminHandler(bbStorage, registry, chatService), cfg.AdminAddr)

	g, gCtx := errgroup.WithContext(ctx)

	// Start Admin Server
	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}

		// Websockets are hijacked, so Shutdown does not wait for them.
		hub.Close()
		wsServer.Wait()
		notifier.Wait()
		return nil
	})

	return g.Wait()
}

// bootstrapRooms returns the default rooms plus the configured default room
// when it is not one of them.
func bootstrapRooms(defaultRoom string) []models.Room {
	rooms := slices.Clone(models.DefaultRooms)
	if !slices.ContainsFunc(rooms, func(r models.Room) bool { return r.Name == defaultRoom }) {
		rooms = append(rooms, models.Room{Name: defaultRoom})
	}
	return rooms
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
