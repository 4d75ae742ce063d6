/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package link

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis is a Link relayed through redis pub/sub. Commands are published on
// "<channel>:commands" and events are read from "<channel>:events". Any
// number of Redis links may share one client.
type Redis struct {
	id       string
	channel  string
	client   *redis.Client
	pubsub   *redis.PubSub
	dispatch Dispatch
	o        options
	handlers handlers

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func CommandsChannel(channel string) string { return channel + ":commands" }
func EventsChannel(channel string) string   { return channel + ":events" }

// NewRedis subscribes to the events channel and starts relaying. The link
// stops when ctx ends or Close is called.
func NewRedis(ctx context.Context, client *redis.Client, channel string, opts ...Option) (*Redis, error) {
	o := buildOptions(opts)

	pubsub := client.Subscribe(ctx, EventsChannel(channel))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", EventsChannel(channel), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Redis{
		id:       uuid.NewString(),
		channel:  channel,
		client:   client,
		pubsub:   pubsub,
		dispatch: o.dispatch,
		o:        o,
		ctx:      ctx,
		cancel:   cancel,
	}

	r.wg.Add(1)
	go r.relay()

	return r, nil
}

func (r *Redis) ID() string { return r.id }

func (r *Redis) On(event string, h Handler) { r.handlers.on(event, h) }

func (r *Redis) Emit(event string, payload any) error {
	if r.ctx.Err() != nil {
		return ErrClosed
	}
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(r.ctx, CommandsChannel(r.channel), data).Err()
}

func (r *Redis) Close() error {
	r.cancel()
	err := r.pubsub.Close()
	r.wg.Wait()
	return err
}

func (r *Redis) relay() {
	defer r.wg.Done()

	messages := r.pubsub.Channel()
	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.o.logger.Warn("dropping malformed envelope", "channel", msg.Channel, "err", err)
				continue
			}
			r.handlers.fire(r.dispatch, env)
		}
	}
}
