package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/out"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	pendingCheckInterval = 30 * time.Second
	pendingIdleTime      = time.Minute
	maxDeliveries        = 5
)

// Consumer moves stream envelopes into a local queue, usually the worker pool.
type Consumer struct {
	stream *RedisStream
	sink   out.JobQueue
	name   string
	log    zerolog.Logger
}

func NewConsumer(stream *RedisStream, sink out.JobQueue, name string, log zerolog.Logger) *Consumer {
	return &Consumer{
		stream: stream,
		sink:   sink,
		name:   name,
		log:    log.With().Str("component", "stream_consumer").Str("consumer", name).Logger(),
	}
}

// Start creates the consumer group and consumes in the background until ctx
// is done.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.stream.CreateGroup(ctx, StreamJobs); err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}

	handler := func(id string, data []byte) error {
		return c.handle(ctx, data)
	}
	go c.stream.Consume(ctx, StreamJobs, c.name, handler)
	go c.reclaimLoop(ctx, handler)

	c.log.Info().Str("stream", StreamJobs).Msg("stream consumer started")
	return nil
}

// reclaimLoop redelivers messages left pending by a failed enqueue or by a
// consumer that stopped before acknowledging, starting with the backlog
// found at startup.
func (c *Consumer) reclaimLoop(ctx context.Context, handler Handler) {
	ticker := time.NewTicker(pendingCheckInterval)
	defer ticker.Stop()

	for {
		c.stream.ReclaimPending(ctx, StreamJobs, c.name, pendingIdleTime, maxDeliveries, handler)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Consumer) handle(ctx context.Context, data []byte) error {
	env, err := decodeEnvelope(data)
	if err != nil {
		// Undecodable messages can never succeed; acknowledge and drop them.
		c.log.Error().Err(err).Msg("invalid job envelope dropped")
		return nil
	}

	return c.sink.Enqueue(ctx, &domain.Job{ID: env.JobID, Type: env.Type, CreatedAt: env.CreatedAt})
}

func decodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.JobID == "" {
		return nil, errors.New("envelope without job_id")
	}
	return &env, nil
}
