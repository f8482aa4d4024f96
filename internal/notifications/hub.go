package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "notifications:user:"

// Channel returns the pub/sub channel carrying events for userID.
func Channel(userID int64) string {
	return channelPrefix + strconv.FormatInt(userID, 10)
}

// Hub fans notifications out through Redis pub/sub so every web instance
// holding a stream for the recipient receives the event.
type Hub struct {
	client *redis.Client
	logger *slog.Logger
	buffer int
}

// NewHub constructs a Hub backed by client.
func NewHub(client *redis.Client, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{client: client, logger: logger, buffer: 16}
}

// Publish sends n to the recipient's channel.
func (h *Hub) Publish(ctx context.Context, n Notification) error {
	if h == nil || h.client == nil {
		return errors.New("notifications: hub not configured")
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := h.client.Publish(ctx, Channel(n.UserID), payload).Err(); err != nil {
		return fmt.Errorf("notifications: publish: %w", err)
	}
	return nil
}

// Dispatch implements Dispatcher by publishing directly.
func (h *Hub) Dispatch(ctx context.Context, n Notification) error {
	return h.Publish(ctx, n)
}

// Subscription is a live feed for one user. Events is closed once the
// subscription ends.
type Subscription struct {
	Events <-chan Notification
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// Close stops the feed and releases the Redis connection.
func (s *Subscription) Close() error {
	if s == nil {
		return nil
	}
	s.cancel()
	<-s.done
	return nil
}

// Subscribe opens a feed for userID. The subscription is confirmed before
// returning so no event published afterwards is missed.
func (h *Hub) Subscribe(ctx context.Context, userID int64) (*Subscription, error) {
	if h == nil || h.client == nil {
		return nil, errors.New("notifications: hub not configured")
	}
	pubsub := h.client.Subscribe(ctx, Channel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("notifications: subscribe: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	events := make(chan Notification, h.buffer)
	sub := &Subscription{Events: events, pubsub: pubsub, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer close(events)
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var n Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					h.logger.Warn("drop malformed notification", slog.String("channel", msg.Channel), slog.Any("error", err))
					continue
				}
				select {
				case events <- n:
				case <-ctx.Done():
					return
				default:
					h.logger.Warn("notification stream buffer full", slog.Int64("user_id", userID), slog.Int64("notification_id", n.ID))
				}
			}
		}
	}()
	return sub, nil
}
