package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backplane fans relayed changes out to other server processes. With a nil
// Backplane the engine runs single-process and fan-out is local only.
type Backplane interface {
	// Publish sends a frame to every other process with connections on docID.
	Publish(ctx context.Context, docID string, frame []byte) error
	// Subscribe delivers frames published by other processes for docID until
	// the returned cancel func is called. deliver runs on the subscription
	// goroutine.
	Subscribe(docID string, deliver func(frame []byte)) (cancel func(), err error)
	Close() error
}

// backplaneMsg wraps a frame with the publishing process's id so a process
// never re-delivers its own messages.
type backplaneMsg struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisBackplane relays frames over one Redis pub/sub channel per document.
type RedisBackplane struct {
	rdb    *redis.Client
	origin string
	log    *zap.Logger
}

func NewRedisBackplane(ctx context.Context, addr string, log *zap.Logger) (*RedisBackplane, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("engine: connect redis: %w", err)
	}
	return &RedisBackplane{rdb: rdb, origin: uuid.NewString(), log: log}, nil
}

func channelFor(docID string) string {
	return "paper:doc:" + docID
}

func (b *RedisBackplane) Publish(ctx context.Context, docID string, frame []byte) error {
	payload, err := json.Marshal(backplaneMsg{Origin: b.origin, Frame: frame})
	if err != nil {
		return fmt.Errorf("engine: encode backplane message: %w", err)
	}
	if err := b.rdb.Publish(ctx, channelFor(docID), payload).Err(); err != nil {
		return fmt.Errorf("engine: publish %s: %w", docID, err)
	}
	return nil
}

func (b *RedisBackplane) Subscribe(docID string, deliver func(frame []byte)) (func(), error) {
	pubsub := b.rdb.Subscribe(context.Background(), channelFor(docID))
	go func() {
		for msg := range pubsub.Channel() {
			var bm backplaneMsg
			if err := json.Unmarshal([]byte(msg.Payload), &bm); err != nil {
				b.log.Warn("malformed backplane message", zap.String("documentId", docID), zap.Error(err))
				continue
			}
			if bm.Origin == b.origin {
				continue
			}
			deliver(bm.Frame)
		}
	}()
	return func() { pubsub.Close() }, nil
}

func (b *RedisBackplane) Close() error {
	return b.rdb.Close()
}
