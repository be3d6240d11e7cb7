package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "transport:events:"

// RedisBus fans events out across instances through redis pub/sub. Events
// received from redis, including our own, are dispatched to local subscribers.
type RedisBus struct {
	rdb    *redis.Client
	ps     *redis.PubSub
	local  *LocalBus
	log    *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedisBus(ctx context.Context, rdb *redis.Client, log *zap.Logger) (*RedisBus, error) {
	ps := rdb.PSubscribe(ctx, channelPrefix+"*")
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe events: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		rdb:    rdb,
		ps:     ps,
		local:  NewLocalBus(),
		log:    log,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.run(runCtx)
	return b, nil
}

func (b *RedisBus) run(ctx context.Context) {
	defer close(b.done)
	ch := b.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("dropping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if ev.Topic == "" {
				ev.Topic = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			b.local.dispatch(ev)
		}
	}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, channelPrefix+ev.Topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(topic string, h Handler) func() {
	return b.local.Subscribe(topic, h)
}

func (b *RedisBus) Close() error {
	b.cancel()
	err := b.ps.Close()
	<-b.done
	_ = b.local.Close()
	return err
}
