package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/emberhealth/clinicflow/internal/liveview"
	"github.com/emberhealth/clinicflow/pkg/logging"
)

// DefaultChannelPrefix namespaces the per-table Redis pub/sub channels.
const DefaultChannelPrefix = "clinicflow:changes:"

// RedisSubscriber implements liveview.Subscriber over Redis pub/sub, one
// channel per table. Used when change events are relayed through Redis
// instead of a direct Postgres listener.
type RedisSubscriber struct {
	client *redis.Client
	prefix string
	logger *logging.Logger
}

// NewRedisSubscriber wires a subscriber to the client.
func NewRedisSubscriber(client *redis.Client, logger *logging.Logger) *RedisSubscriber {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisSubscriber{
		client: client,
		prefix: DefaultChannelPrefix,
		logger: logger.Component("redis-subscriber"),
	}
}

// WithPrefix overrides the channel prefix.
func (s *RedisSubscriber) WithPrefix(prefix string) *RedisSubscriber {
	if prefix != "" {
		s.prefix = prefix
	}
	return s
}

// Subscribe opens the pub/sub channel for one table and decodes its JSON
// payloads into change events. Payloads that do not decode are dropped.
func (s *RedisSubscriber) Subscribe(ctx context.Context, table string) (liveview.Subscription, error) {
	pubsub := s.client.Subscribe(ctx, s.prefix+table)
	// Force the SUBSCRIBE round trip so a dead broker surfaces here, not
	// as a silently empty stream.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan liveview.ChangeEvent, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	go sub.pump(table, s.logger)
	return sub, nil
}

// ChannelFor returns the pub/sub channel name used for a table, for
// publishers that relay change events into Redis.
func (s *RedisSubscriber) ChannelFor(table string) string {
	return s.prefix + table
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	ch        chan liveview.ChangeEvent
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) Events() <-chan liveview.ChangeEvent { return s.ch }

// Close tears down the pub/sub connection. Idempotent; the events channel
// closes once the pump exits, even if the consumer never drained it.
func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *redisSubscription) pump(table string, logger *logging.Logger) {
	defer close(s.ch)
	for msg := range s.pubsub.Channel() {
		var ev liveview.ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Warn("dropping undecodable change payload", "table", table, "error", err)
			continue
		}
		if ev.Table == "" {
			ev.Table = table
		}
		select {
		case s.ch <- ev:
		case <-s.done:
			return
		}
	}
}
