package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type subscription struct {
	stream  string
	group   string
	handler Handler
}

// Consumer reads the durable streams through consumer groups and
// acknowledges an entry only after its handler returns nil. Handler
// failures leave the entry pending; a claim pass re-delivers entries whose
// consumer died mid-flight.
type Consumer struct {
	rdb    *redis.Client
	logger *zap.Logger

	name          string
	blockInterval time.Duration
	claimMinIdle  time.Duration

	subs []subscription
}

type ConsumerOptions struct {
	// Name identifies this consumer inside each group.
	Name          string
	BlockInterval time.Duration
	ClaimMinIdle  time.Duration
}

func NewConsumer(rdb *redis.Client, logger *zap.Logger, opts ConsumerOptions) *Consumer {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "todosync-consumer"
	}
	block := opts.BlockInterval
	if block <= 0 {
		block = 5 * time.Second
	}
	minIdle := opts.ClaimMinIdle
	if minIdle <= 0 {
		minIdle = time.Minute
	}
	return &Consumer{
		rdb:           rdb,
		logger:        logger,
		name:          name,
		blockInterval: block,
		claimMinIdle:  minIdle,
	}
}

func (c *Consumer) Subscribe(stream, group string, handler Handler) {
	if c == nil || handler == nil {
		return
	}
	c.subs = append(c.subs, subscription{stream: stream, group: group, handler: handler})
}

// Run blocks until ctx is canceled, driving one read loop per
// subscription.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	for _, sub := range c.subs {
		if err := c.ensureGroup(ctx, sub); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	for _, sub := range c.subs {
		wg.Add(1)
		go func(sub subscription) {
			defer wg.Done()
			c.loop(ctx, sub)
		}(sub)
	}
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) ensureGroup(ctx context.Context, sub subscription) error {
	err := c.rdb.XGroupCreateMkStream(ctx, sub.stream, sub.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (c *Consumer) loop(ctx context.Context, sub subscription) {
	claimTicker := time.NewTicker(c.claimMinIdle)
	defer claimTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-claimTicker.C:
			c.claimStale(ctx, sub)
		default:
		}

		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    sub.group,
			Consumer: c.name,
			Streams:  []string{sub.stream, ">"},
			Count:    16,
			Block:    c.blockInterval,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if c.logger != nil {
				c.logger.Warn("stream read failed",
					zap.String("stream", sub.stream),
					zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range res {
			for _, entry := range stream.Messages {
				c.dispatch(ctx, sub, entry)
			}
		}
	}
}

// claimStale takes over pending entries abandoned by a dead consumer so
// redelivery actually happens.
func (c *Consumer) claimStale(ctx context.Context, sub subscription) {
	entries, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   sub.stream,
		Group:    sub.group,
		Consumer: c.name,
		MinIdle:  c.claimMinIdle,
		Start:    "0-0",
		Count:    32,
	}).Result()
	if err != nil {
		if c.logger != nil && ctx.Err() == nil {
			c.logger.Warn("stale entry claim failed",
				zap.String("stream", sub.stream),
				zap.Error(err))
		}
		return
	}
	for _, entry := range entries {
		c.dispatch(ctx, sub, entry)
	}
}

func (c *Consumer) dispatch(ctx context.Context, sub subscription, entry redis.XMessage) {
	ev := Event{
		Stream:  sub.stream,
		EntryID: entry.ID,
	}
	if key, ok := entry.Values["key"].(string); ok {
		ev.Key = key
	}
	if payload, ok := entry.Values["payload"].(string); ok {
		ev.Payload = []byte(payload)
	}

	if err := sub.handler(ctx, ev); err != nil {
		if c.logger != nil {
			c.logger.Error("event handler failed, entry left pending",
				zap.String("stream", sub.stream),
				zap.String("entry_id", entry.ID),
				zap.Error(err))
		}
		return
	}
	if err := c.rdb.XAck(ctx, sub.stream, sub.group, entry.ID).Err(); err != nil && c.logger != nil {
		c.logger.Warn("event ack failed",
			zap.String("stream", sub.stream),
			zap.String("entry_id", entry.ID),
			zap.Error(err))
	}
}
