package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"github.com/weeklist/weeklist/internal/weeklist"
)

// Options configures Web Push delivery. Without both VAPID keys the
// dispatcher stays disabled and every send is a no-op.
type Options struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	// Subscriber is the contact mailto: or URL required by the VAPID spec.
	Subscriber string
	TTLSeconds int
}

// Payload is the notification body shown by the service worker.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

type sendFunc func(ctx context.Context, sub weeklist.PushSubscription, payload []byte) (int, error)

// Dispatcher fans a push message out to every stored subscription. Sends are
// fire-and-forget: failures are logged, and subscriptions the provider
// reports as gone (404/410) are pruned from the store.
type Dispatcher struct {
	store   weeklist.Store
	opts    Options
	logger  *zap.Logger
	send    sendFunc
	enabled bool
}

func NewDispatcher(store weeklist.Store, opts Options, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Subscriber == "" {
		opts.Subscriber = "mailto:admin@localhost"
	}
	if opts.TTLSeconds <= 0 {
		opts.TTLSeconds = 30
	}
	d := &Dispatcher{
		store:   store,
		opts:    opts,
		logger:  logger,
		enabled: opts.VAPIDPublicKey != "" && opts.VAPIDPrivateKey != "",
	}
	d.send = d.webpushSend
	if !d.enabled {
		logger.Info("push notifications disabled: VAPID keys not configured")
	}
	return d
}

// ItemAdded notifies all subscribers that an item landed on the list.
func (d *Dispatcher) ItemAdded(ctx context.Context, item weeklist.Item) {
	d.Broadcast(ctx, Payload{
		Title: "New Item Added",
		Body:  item.Name + " was added to the list.",
		URL:   "/",
	})
}

// Broadcast sends payload to every stored subscription concurrently and
// waits for all sends to finish.
func (d *Dispatcher) Broadcast(ctx context.Context, payload Payload) {
	if !d.enabled {
		return
	}
	subs, err := d.store.ListSubscriptions(ctx)
	if err != nil {
		d.logger.Error("loading push subscriptions", zap.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("encoding push payload", zap.Error(err))
		return
	}
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub weeklist.PushSubscription) {
			defer wg.Done()
			d.sendOne(ctx, sub, body)
		}(sub)
	}
	wg.Wait()
}

func (d *Dispatcher) sendOne(ctx context.Context, sub weeklist.PushSubscription, body []byte) {
	status, err := d.send(ctx, sub, body)
	if err != nil {
		d.logger.Error("sending push notification",
			zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	if status == http.StatusNotFound || status == http.StatusGone {
		// The provider says this endpoint no longer exists.
		if err := d.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			d.logger.Error("pruning expired push subscription",
				zap.String("endpoint", sub.Endpoint), zap.Error(err))
			return
		}
		d.logger.Info("pruned expired push subscription", zap.String("endpoint", sub.Endpoint))
		return
	}
	if status >= 400 {
		d.logger.Warn("push provider rejected notification",
			zap.String("endpoint", sub.Endpoint), zap.Int("status", status))
	}
}

func (d *Dispatcher) webpushSend(ctx context.Context, sub weeklist.PushSubscription, payload []byte) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		Subscriber:      d.opts.Subscriber,
		VAPIDPublicKey:  d.opts.VAPIDPublicKey,
		VAPIDPrivateKey: d.opts.VAPIDPrivateKey,
		TTL:             d.opts.TTLSeconds,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
