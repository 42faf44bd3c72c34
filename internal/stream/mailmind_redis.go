// Package stream carries job references over Redis streams between API and
// worker processes.
package stream

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const StreamJobs = "mailmind:jobs"

type RedisStream struct {
	client *redis.Client
	group  string
	log    zerolog.Logger
}

func NewRedisStream(client *redis.Client, group string, log zerolog.Logger) *RedisStream {
	return &RedisStream{
		client: client,
		group:  group,
		log:    log.With().Str("component", "redis_stream").Logger(),
	}
}

func (s *RedisStream) CreateGroup(ctx context.Context, stream string) error {
	err := s.client.XGroupCreateMkStream(ctx, stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (s *RedisStream) Publish(ctx context.Context, stream string, data any) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": jsonData},
	}).Result()
}

// Handler processes one stream message. A returned error leaves the message
// pending so ReclaimPending can deliver it again.
type Handler func(id string, data []byte) error

// Consume reads the stream as consumer until ctx is done. Messages whose
// handler fails stay pending and are not acknowledged.
func (s *RedisStream) Consume(ctx context.Context, stream, consumer string, handler Handler) {
	for {
		if ctx.Err() != nil {
			return
		}

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				s.log.Warn().Err(err).Str("stream", stream).Msg("stream read error")
				time.Sleep(time.Second)
			}
			continue
		}

		for _, st := range streams {
			for _, msg := range st.Messages {
				s.process(ctx, st.Stream, msg, handler)
			}
		}
	}
}

// ReclaimPending claims messages that stayed unacknowledged longer than
// minIdle, whichever consumer they were delivered to, and hands them to
// handler again. Messages already delivered maxDeliveries times are
// acknowledged and dropped.
func (s *RedisStream) ReclaimPending(ctx context.Context, stream, consumer string, minIdle time.Duration, maxDeliveries int64, handler Handler) {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  s.group,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Error().Err(err).Str("stream", stream).Msg("error getting pending messages")
		}
		return
	}

	claim, drop := splitPending(pending, minIdle, maxDeliveries)

	for _, id := range drop {
		s.log.Error().Str("stream", stream).Str("message_id", id).Msg("DLQ: stream message exceeded deliveries, dropped")
		if err := s.Ack(ctx, stream, id); err != nil {
			s.log.Warn().Err(err).Str("message_id", id).Msg("stream ack failed")
		}
	}
	if len(claim) == 0 {
		return
	}

	claimed, err := s.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    s.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: claim,
	}).Result()
	if err != nil {
		s.log.Error().Err(err).Str("stream", stream).Msg("error claiming pending messages")
		return
	}

	s.log.Info().Str("stream", stream).Int("claimed", len(claimed)).Msg("reprocessing pending messages")
	for _, msg := range claimed {
		s.process(ctx, stream, msg, handler)
	}
}

// splitPending picks the pending entries worth claiming and the ones that
// exhausted their deliveries. Entries idle for less than minIdle may still
// be in flight and are left alone.
func splitPending(pending []redis.XPendingExt, minIdle time.Duration, maxDeliveries int64) (claim, drop []string) {
	for _, p := range pending {
		switch {
		case p.Idle < minIdle:
		case maxDeliveries > 0 && p.RetryCount >= maxDeliveries:
			drop = append(drop, p.ID)
		default:
			claim = append(claim, p.ID)
		}
	}
	return claim, drop
}

func (s *RedisStream) process(ctx context.Context, stream string, msg redis.XMessage, handler Handler) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		s.log.Warn().Str("message_id", msg.ID).Msg("stream message without data, dropped")
		_ = s.Ack(ctx, stream, msg.ID)
		return
	}

	if err := handler(msg.ID, []byte(data)); err != nil {
		s.log.Error().Err(err).Str("message_id", msg.ID).Msg("stream handler error")
		return
	}

	if err := s.Ack(ctx, stream, msg.ID); err != nil {
		s.log.Warn().Err(err).Str("message_id", msg.ID).Msg("stream ack failed")
	}
}

func (s *RedisStream) Ack(ctx context.Context, stream, id string) error {
	return s.client.XAck(ctx, stream, s.group, id).Err()
}

func (s *RedisStream) Pending(ctx context.Context, stream string) (int64, error) {
	info, err := s.client.XPending(ctx, stream, s.group).Result()
	if err != nil {
		return 0, err
	}
	return info.Count, nil
}
