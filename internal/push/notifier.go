package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"boltalka/internal/models"

	"github.com/SherClockHolmes/webpush-go"
)

const (
	defaultTTL     = 24 * 60 * 60
	maxBodyLength  = 120
	requestTimeout = 10 * time.Second
)

type subscriptionStore interface {
	ListPushSubscriptions(userID string) ([]models.PushSubscription, error)
	DeletePushSubscription(userID, endpoint string) error
}

type sendFunc func(ctx context.Context, message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

type Config struct {
	PublicKey  string
	PrivateKey string
	// Subject is a mailto: or https: contact for the push service.
	Subject string
	TTL     int
}

func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.PrivateKey != ""
}

// Notification is the JSON payload delivered to the service worker.
type Notification struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	FromUserID string `json:"fromUserId"`
}

// Notifier sends web push notifications for private messages. It does
// nothing when VAPID keys are not configured.
type Notifier struct {
	config Config
	store  subscriptionStore
	send   sendFunc
	ctx    context.Context

	// closed is set by Wait; no new deliveries start after it.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewNotifier(ctx context.Context, config Config, store subscriptionStore) *Notifier {
	if config.TTL <= 0 {
		config.TTL = defaultTTL
	}
	return &Notifier{
		config: config,
		store:  store,
		send:   webpush.SendNotificationWithContext,
		ctx:    ctx,
	}
}

func (n *Notifier) Enabled() bool {
	return n.config.Enabled()
}

func (n *Notifier) PublicKey() string {
	return n.config.PublicKey
}

// NotifyPrivateMessage delivers in the background and never blocks the caller.
// Calls after Wait are dropped.
func (n *Notifier) NotifyPrivateMessage(message models.PrivateMessage) {
	if !n.Enabled() {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		slog.Debug("notifier closed, dropping push", "user_id", message.ToUserID)
		return
	}
	n.wg.Go(func() {
		if err := n.notify(message); err != nil {
			slog.Warn("push notification failed", "user_id", message.ToUserID, "error", err)
		}
	})
}

// Wait stops accepting notifications and blocks until in-flight ones finish.
func (n *Notifier) Wait() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	n.wg.Wait()
}

func (n *Notifier) notify(message models.PrivateMessage) error {
	subs, err := n.store.ListPushSubscriptions(message.ToUserID)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(Notification{
		Title:      message.FromNickname,
		Body:       truncate(message.Text, maxBodyLength),
		FromUserID: message.FromUserID,
	})
	if err != nil {
		return err
	}

	for _, sub := range subs {
		n.deliver(sub, payload)
	}
	return nil
}

func (n *Notifier) deliver(sub models.PushSubscription, payload []byte) {
	ctx, cancel := context.WithTimeout(n.ctx, requestTimeout)
	defer cancel()

	resp, err := n.send(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}, &webpush.Options{
		Subscriber:      n.config.Subject,
		VAPIDPublicKey:  n.config.PublicKey,
		VAPIDPrivateKey: n.config.PrivateKey,
		TTL:             n.config.TTL,
	})
	if err != nil {
		slog.Warn("failed to send push", "user_id", sub.UserID, "error", err)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		// Subscription expired or was revoked by the browser.
		if err := n.store.DeletePushSubscription(sub.UserID, sub.Endpoint); err != nil {
			slog.Error("failed to delete push subscription", "user_id", sub.UserID, "error", err)
		}
	default:
		if resp.StatusCode >= http.StatusBadRequest {
			slog.Warn("push service rejected notification", "user_id", sub.UserID, "status", resp.StatusCode)
		}
	}
}

// GenerateKeys returns a new VAPID key pair.
func GenerateKeys() (privateKey, publicKey string, err error) {
	return webpush.GenerateVAPIDKeys()
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
