package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/c360/semchat/chat"
	"github.com/c360/semchat/errors"
)

// DefaultChannel is the pub/sub channel carrying chat events.
const DefaultChannel = "semchat.events"

// wireEvent is the JSON payload published on the channel.
type wireEvent struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Text   string `json:"text,omitempty"`
	Author string `json:"author,omitempty"`
}

func encodeEvent(ev chat.Event) ([]byte, error) {
	return json.Marshal(wireEvent{Kind: string(ev.Kind), ID: ev.ID, Text: ev.Text, Author: ev.Author})
}

func decodeEvent(payload string) (chat.Event, error) {
	var w wireEvent
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return chat.Event{}, err
	}
	if w.ID == "" {
		return chat.Event{}, fmt.Errorf("event without id")
	}
	return chat.Event{Kind: chat.EventKind(w.Kind), ID: w.ID, Text: w.Text, Author: w.Author}, nil
}

// Bus publishes and receives chat events over one Redis pub/sub channel.
type Bus struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithChannel overrides DefaultChannel.
func WithChannel(channel string) BusOption {
	return func(b *Bus) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithLogger sets the bus logger.
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Connect opens a client for addr and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "RedisBus", "Connect", "addr check")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WrapTransient(err, "RedisBus", "Connect", "ping")
	}
	return client, nil
}

// New returns a bus over client.
func New(client *redis.Client, opts ...BusOption) *Bus {
	b := &Bus{client: client, channel: DefaultChannel, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "redisbus", "channel", b.channel)
	return b
}

// Channel returns the pub/sub channel name.
func (b *Bus) Channel() string {
	return b.channel
}

// Publish sends ev to every subscriber of the channel.
func (b *Bus) Publish(ctx context.Context, ev chat.Event) error {
	payload, err := encodeEvent(ev)
	if err != nil {
		return errors.WrapInvalid(err, "RedisBus", "Publish", "event marshal")
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return errors.WrapTransient(err, "RedisBus", "Publish", "publish")
	}
	return nil
}

// receiver is the part of *redis.PubSub the forward loop reads from.
type receiver interface {
	Receive(ctx context.Context) (interface{}, error)
	Close() error
}

// Subscribe joins the channel and forwards decoded events to onEvent. The
// call returns once Redis has confirmed the subscription. Malformed payloads
// are logged and dropped. The first receive error ends the subscription and
// is reported to onError; no resubscribe is attempted.
func (b *Bus) Subscribe(ctx context.Context, onEvent func(chat.Event), onError func(error)) (chat.Unsubscribe, error) {
	if onEvent == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "RedisBus", "Subscribe", "handler check")
	}

	pubsub := b.client.Subscribe(context.WithoutCancel(ctx), b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.WrapTransient(err, "RedisBus", "Subscribe", "subscribe confirm")
	}

	return b.start(ctx, pubsub, onEvent, onError), nil
}

// start runs the forward loop over r until Unsubscribe or the first error.
func (b *Bus) start(ctx context.Context, r receiver, onEvent func(chat.Event), onError func(error)) chat.Unsubscribe {
	recvCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopped := make(chan struct{})
	go b.forward(recvCtx, r, stopped, onEvent, onError)

	var once sync.Once
	return func() error {
		var closeErr error
		once.Do(func() {
			close(stopped)
			cancel()
			closeErr = r.Close()
		})
		if closeErr != nil {
			return errors.WrapTransient(closeErr, "RedisBus", "Unsubscribe", "pubsub close")
		}
		return nil
	}
}

func (b *Bus) forward(ctx context.Context, r receiver, stopped <-chan struct{}, onEvent func(chat.Event), onError func(error)) {
	for {
		msg, err := r.Receive(ctx)
		if err != nil {
			select {
			case <-stopped:
				return
			default:
			}
			b.logger.Error("Redis subscription dropped", "error", err)
			if onError != nil {
				onError(errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrConnectionLost, err), "RedisBus", "Subscribe", "receive"))
			}
			return
		}

		switch m := msg.(type) {
		case *redis.Message:
			ev, err := decodeEvent(m.Payload)
			if err != nil {
				b.logger.Warn("Dropping malformed event", "error", err)
				continue
			}
			onEvent(ev)
		case *redis.Subscription, *redis.Pong:
		default:
			b.logger.Debug("Ignoring pub/sub reply", "type", fmt.Sprintf("%T", msg))
		}
	}
}
