// Package redisstream provides the durable post log on Redis Streams and the
// best-effort pub/sub bus.
//
// Delivery is at-least-once per consumer group: entries read with XREADGROUP
// stay pending until XACK, so a crashed consumer's entries are redelivered.
package redisstream

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
)

// Client implements domain.StreamLog and domain.Bus over one Redis connection.
type Client struct {
	rdb    *redis.Client
	stream string
	group  string
}

// New constructs a Client for the given stream/group pair.
func New(rdb *redis.Client, stream, group string) *Client {
	return &Client{rdb: rdb, stream: stream, group: group}
}

// Append adds an entry to the stream and returns its monotonically
// increasing entry id.
func (c *Client) Append(ctx domain.Context, fields map[string]string) (string, error) {
	args := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		args[k] = v
	}
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{Stream: c.stream, Values: args}).Result()
	if err != nil {
		return "", wrapErr("stream.append", err)
	}
	return id, nil
}

// EnsureGroup creates the consumer group from the start of the stream.
// Idempotent: an existing group is not an error.
func (c *Client) EnsureGroup(ctx domain.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return wrapErr("stream.ensure_group", err)
	}
	return nil
}

// ReadGroup delivers up to count new entries for the consumer, blocking up to
// block when the stream is empty. `>` only ever yields entries never delivered
// to this group; unacked entries stay in the consumer's pending list and come
// back through ReadPending.
func (c *Client) ReadGroup(ctx domain.Context, consumer string, count int64, block time.Duration) ([]domain.StreamEntry, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: consumer,
		Streams:  []string{c.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			// Block elapsed with no entries.
			return nil, nil
		}
		return nil, wrapErr("stream.read_group", err)
	}
	return toEntries(res), nil
}

// ReadPending redelivers up to count entries from the consumer's own pending
// list, without blocking. Retry-nacked and crash-orphaned entries (under the
// same consumer name) only come back through here; `>` never returns them.
func (c *Client) ReadPending(ctx domain.Context, consumer string, count int64) ([]domain.StreamEntry, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: consumer,
		Streams:  []string{c.stream, "0"},
		Count:    count,
		Block:    -1,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, wrapErr("stream.read_pending", err)
	}
	return toEntries(res), nil
}

func toEntries(res []redis.XStream) []domain.StreamEntry {
	var entries []domain.StreamEntry
	for _, s := range res {
		for _, m := range s.Messages {
			fields := make(map[string]string, len(m.Values))
			for k, v := range m.Values {
				if sv, ok := v.(string); ok {
					fields[k] = sv
				}
			}
			entries = append(entries, domain.StreamEntry{ID: m.ID, Fields: fields})
		}
	}
	return entries
}

// Ack marks entries delivered to this group.
func (c *Client) Ack(ctx domain.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.rdb.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
		return wrapErr("stream.ack", err)
	}
	return nil
}

// Publish sends a payload on a pub/sub channel. Best-effort, no persistence.
func (c *Client) Publish(ctx domain.Context, channel string, payload []byte) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return wrapErr("bus.publish", err)
	}
	return nil
}

// subscription adapts redis.PubSub to domain.Subscription.
type subscription struct {
	ps   *redis.PubSub
	msgs chan []byte
	done chan struct{}
}

func (s *subscription) Messages() <-chan []byte { return s.msgs }

func (s *subscription) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return s.ps.Close()
}

// Subscribe opens a pub/sub subscription scoped to the returned value; the
// caller must Close it on disconnect.
func (c *Client) Subscribe(ctx domain.Context, channel string) (domain.Subscription, error) {
	ps := c.rdb.Subscribe(ctx, channel)
	// Force the subscription onto the wire before returning so publishes
	// after Subscribe are not lost.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, wrapErr("bus.subscribe", err)
	}
	sub := &subscription{ps: ps, msgs: make(chan []byte, 64), done: make(chan struct{})}
	go func() {
		defer close(sub.msgs)
		ch := ps.Channel()
		for {
			select {
			case <-sub.done:
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				select {
				case sub.msgs <- []byte(m.Payload):
				case <-sub.done:
					return
				default:
					// Slow subscriber; drop rather than block the bus.
					slog.Warn("pubsub subscriber lagging, dropping message", slog.String("channel", channel))
				}
			}
		}
	}()
	return sub, nil
}

// Ping probes the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
