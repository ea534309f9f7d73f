package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/atlas-ingest/internal/platform/envutil"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

const defaultChannelPrefix = "atlas-ingest"

// RedisOptions selects the server and the channel namespace. Each event type is
// published on its own channel, "<ChannelPrefix>:<type>", so consumers can subscribe to
// one type or pattern-match all of them.
type RedisOptions struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

type redisBus struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

// NewRedisBus reads REDIS_ADDR, REDIS_PASSWORD, REDIS_DB and REDIS_INGEST_CHANNEL.
// It returns (nil, nil) when REDIS_ADDR is unset.
func NewRedisBus(log *logger.Logger) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	opts := RedisOptions{
		Addr:          envutil.String("REDIS_ADDR", ""),
		Password:      envutil.String("REDIS_PASSWORD", ""),
		DB:            envutil.Int("REDIS_DB", 0),
		ChannelPrefix: envutil.String("REDIS_INGEST_CHANNEL", defaultChannelPrefix),
	}
	if opts.Addr == "" {
		log.Info("REDIS_ADDR not set; ingestion events disabled")
		return nil, nil
	}
	return DialRedis(log, opts)
}

func DialRedis(log *logger.Logger, opts RedisOptions) (Bus, error) {
	if log == nil {
		log = logger.Nop()
	}
	prefix := strings.TrimSuffix(strings.TrimSpace(opts.ChannelPrefix), ":")
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &redisBus{
		log:    log.With("service", "RedisIngestBus", "channel_prefix", prefix),
		rdb:    rdb,
		prefix: prefix,
	}, nil
}

func channelFor(prefix, eventType string) string {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		eventType = "untyped"
	}
	return prefix + ":" + eventType
}

func (b *redisBus) Publish(ctx context.Context, msg Message) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", msg.Type, err)
	}
	return b.rdb.Publish(ctx, channelFor(b.prefix, msg.Type), raw).Err()
}

// Subscribe pattern-subscribes to every event type under the prefix.
func (b *redisBus) Subscribe(ctx context.Context, onMsg func(m Message)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub := b.rdb.PSubscribe(ctx, b.prefix+":*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis psubscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.log.Warn("Dropping undecodable ingest event", "channel", m.Channel, "error", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
