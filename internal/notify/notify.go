// Package notify pushes new-feedback alerts to subscribed admin
// browsers over Web Push.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/maruel/ksid"

	"github.com/sposlearning/sposwiki/internal/docstore"
	"github.com/sposlearning/sposwiki/internal/models"
)

// SubscriptionsCollection holds registered push subscriptions.
const SubscriptionsCollection = "push_subscriptions"

// Subscription is one browser push registration.
type Subscription struct {
	ID       string
	UID      string
	Endpoint string
	P256dh   string
	Auth     string
}

// VAPIDKeys is the key pair identifying this server to push services.
type VAPIDKeys struct {
	Public  string
	Private string
}

// Notifier fans new-feedback alerts out to every registered
// subscription. Delivery is fire-and-forget: failures are logged, never
// returned.
type Notifier struct {
	store docstore.Store
	vapid VAPIDKeys
	sub   string
}

// New creates a notifier. sub is the VAPID subject, usually a mailto:
// address for the wiki operator.
func New(store docstore.Store, vapid VAPIDKeys, sub string) *Notifier {
	return &Notifier{store: store, vapid: vapid, sub: sub}
}

// Subscribe registers a browser subscription for an admin.
func (n *Notifier) Subscribe(ctx context.Context, uid, endpoint, p256dh, auth string) (*Subscription, error) {
	if endpoint == "" || p256dh == "" || auth == "" {
		return nil, fmt.Errorf("incomplete push subscription")
	}
	sub := &Subscription{
		ID:       ksid.NewID().String(),
		UID:      uid,
		Endpoint: endpoint,
		P256dh:   p256dh,
		Auth:     auth,
	}
	fields := map[string]any{
		"uid":      sub.UID,
		"endpoint": sub.Endpoint,
		"p256dh":   sub.P256dh,
		"auth":     sub.Auth,
	}
	if err := n.store.Set(ctx, SubscriptionsCollection, sub.ID, fields); err != nil {
		return nil, fmt.Errorf("failed to save push subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe removes a registration by endpoint. Unknown endpoints are
// a no-op.
func (n *Notifier) Unsubscribe(ctx context.Context, endpoint string) error {
	docs, err := n.store.Query(ctx, SubscriptionsCollection,
		docstore.Filter{Field: "endpoint", Equals: endpoint}, docstore.Order{})
	if err != nil {
		return fmt.Errorf("failed to find push subscription: %w", err)
	}
	for _, doc := range docs {
		if err := n.store.Delete(ctx, SubscriptionsCollection, doc.ID); err != nil {
			return fmt.Errorf("failed to delete push subscription: %w", err)
		}
	}
	return nil
}

// NotifyFeedback sends a new-feedback alert to every subscription. A
// push service answering 410 Gone gets its subscription deleted.
func (n *Notifier) NotifyFeedback(ctx context.Context, fb *models.FeedbackRecord) {
	if n.vapid.Public == "" || n.vapid.Private == "" {
		return
	}
	docs, err := n.store.ListAll(ctx, SubscriptionsCollection)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list push subscriptions", "err", err)
		return
	}
	if len(docs) == 0 {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"title": "New feedback: " + fb.Title,
		"body":  fb.Message,
		"from":  fb.Name,
	})

	// Detach from the request; the submitter should not wait on push
	// service round-trips.
	go func() {
		ctx := context.WithoutCancel(ctx)
		for _, doc := range docs {
			endpoint, _ := doc.Fields["endpoint"].(string)
			p256dh, _ := doc.Fields["p256dh"].(string)
			auth, _ := doc.Fields["auth"].(string)
			resp, err := webpush.SendNotification(payload, &webpush.Subscription{
				Endpoint: endpoint,
				Keys:     webpush.Keys{P256dh: p256dh, Auth: auth},
			}, &webpush.Options{
				Subscriber:      n.sub,
				VAPIDPublicKey:  n.vapid.Public,
				VAPIDPrivateKey: n.vapid.Private,
				TTL:             86400,
			})
			if err != nil {
				slog.ErrorContext(ctx, "Web push send failed", "err", err, "endpoint", endpoint)
				continue
			}
			_ = resp.Body.Close()
			// 410 Gone means the browser dropped the subscription.
			if resp.StatusCode == http.StatusGone {
				if err := n.store.Delete(ctx, SubscriptionsCollection, doc.ID); err != nil {
					slog.ErrorContext(ctx, "Failed to delete expired push subscription", "err", err, "id", doc.ID)
				}
			}
		}
	}()
}
