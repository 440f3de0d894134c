package queue

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	r "github.com/redis/go-redis/v9"

	logx "github.com/NVIDIA/slack-to-jira/pkg/logx"
)

type Config struct {
	Addr     string
	Password string
	Stream   string
	Group    string
	// Consumer is this process's name within the group. Empty = derived from
	// hostname + random suffix.
	Consumer string
	// MinIdle is how long an unacknowledged delivery stays pending before
	// reclaim.
	MinIdle time.Duration
}

type RedisQ struct {
	rdb      *r.Client
	stream   string
	group    string
	consumer string
	minIdle  time.Duration
	log      logx.Logger
}

func New(cfg Config, log logx.Logger) (*RedisQ, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("queue: redis addr is required")
	}
	if strings.TrimSpace(cfg.Stream) == "" || strings.TrimSpace(cfg.Group) == "" {
		return nil, errors.New("queue: stream and group are required")
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "bridge"
		}
		consumer = host + "-" + uuid.NewString()[:8]
	}
	minIdle := cfg.MinIdle
	if minIdle <= 0 {
		minIdle = time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &RedisQ{
		rdb:      r.NewClient(&r.Options{Addr: cfg.Addr, Password: cfg.Password}),
		stream:   cfg.Stream,
		group:    cfg.Group,
		consumer: consumer,
		minIdle:  minIdle,
		log:      log,
	}, nil
}

func (q *RedisQ) Close() error { return q.rdb.Close() }

func (q *RedisQ) Enqueue(ctx context.Context, groupID string, body []byte) error {
	return q.rdb.XAdd(ctx, &r.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{"group": groupID, "body": body},
	}).Err()
}

func (q *RedisQ) Consume(ctx context.Context, handle Handler) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Reclaim deliveries another (or a previous) consumer left pending.
		q.reclaim(ctx, handle)

		streams, err := q.rdb.XReadGroup(ctx, &r.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if errors.Is(err, r.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.log.Warn("queue read failed", logx.Err(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				q.deliver(ctx, msg, handle)
			}
		}
	}
}

func (q *RedisQ) ensureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (q *RedisQ) reclaim(ctx context.Context, handle Handler) {
	msgs, _, err := q.rdb.XAutoClaim(ctx, &r.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.minIdle,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err != nil && !errors.Is(err, r.Nil) {
		if ctx.Err() == nil {
			q.log.Warn("queue reclaim failed", logx.Err(err))
		}
		return
	}
	for _, msg := range msgs {
		q.deliver(ctx, msg, handle)
	}
}

func (q *RedisQ) deliver(ctx context.Context, msg r.XMessage, handle Handler) {
	groupID, _ := msg.Values["group"].(string)
	body, _ := msg.Values["body"].(string)

	if err := handle(ctx, groupID, []byte(body)); err != nil {
		// Leave pending; reclaim redelivers after MinIdle.
		q.log.Warn("event left pending for redelivery",
			logx.String("id", msg.ID), logx.String("group", groupID), logx.Err(err))
		return
	}
	if err := q.rdb.XAck(ctx, q.stream, q.group, msg.ID).Err(); err != nil && ctx.Err() == nil {
		q.log.Warn("queue ack failed", logx.String("id", msg.ID), logx.Err(err))
	}
}
