package ipc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"dashboard-service/indicator"

	"github.com/go-redis/redis/v8"
)

const subscriptionRetryDelay = 500 * time.Millisecond

// Config selects the Redis layout of the vehicle interfaces.
type Config struct {
	Prefix string
	// Interfaces restricts which interfaces are reported as available.
	// Empty means every interface is available.
	Interfaces []string
}

type subscription struct {
	pubsub pubSub
	cancel context.CancelFunc
}

// Vehicle implements indicator.Vehicle on top of Redis: each interface and
// zone is a hash, and a message on the channel of the same name announces
// that the hash changed.
type Vehicle struct {
	log     indicator.Logger
	redis   redisClient
	prefix  string
	allowed map[string]bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// subscribe opens the notification channel of one hash.
	subscribe func(ctx context.Context, key string) pubSub

	mu   sync.Mutex
	subs map[string]*subscription
}

var _ indicator.Vehicle = (*Vehicle)(nil)

// NewVehicle creates a Redis-backed vehicle host.
func NewVehicle(logger indicator.Logger, client redisClient, cfg Config) *Vehicle {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	ctx, cancel := context.WithCancel(context.Background())

	v := &Vehicle{
		log:    logger,
		redis:  client,
		prefix: cfg.Prefix,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*subscription),
	}
	v.subscribe = func(ctx context.Context, key string) pubSub {
		return client.Subscribe(ctx, key)
	}
	if len(cfg.Interfaces) > 0 {
		v.allowed = make(map[string]bool, len(cfg.Interfaces))
		for _, iface := range cfg.Interfaces {
			v.allowed[strings.ToLower(iface)] = true
		}
	}
	return v
}

func (v *Vehicle) Supports(iface string) bool {
	if v.allowed == nil {
		return true
	}
	return v.allowed[strings.ToLower(iface)]
}

func (v *Vehicle) Get(ctx context.Context, iface string, zone indicator.Zone) (indicator.Event, error) {
	if !v.Supports(iface) {
		return nil, fmt.Errorf("%w: %s", indicator.ErrUnsupportedInterface, iface)
	}

	key := InterfaceKey(v.prefix, iface, zone)
	fields, err := v.redis.HGetAll(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, indicator.ErrNoData
	}
	return decodeHash(iface, zone, fields), nil
}

func (v *Vehicle) Subscribe(iface string, zone indicator.Zone, handler indicator.EventHandler) error {
	if !v.Supports(iface) {
		return fmt.Errorf("%w: %s", indicator.ErrUnsupportedInterface, iface)
	}

	key := InterfaceKey(v.prefix, iface, zone)

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.subs[key]; ok {
		return fmt.Errorf("already subscribed to %s", key)
	}

	ctx, cancel := context.WithCancel(v.ctx)
	sub := &subscription{
		pubsub: v.subscribe(ctx, key),
		cancel: cancel,
	}
	v.subs[key] = sub

	v.wg.Add(1)
	go v.handleSubscription(ctx, key, iface, zone, sub.pubsub, handler)

	return nil
}

func (v *Vehicle) handleSubscription(ctx context.Context, key, iface string, zone indicator.Zone,
	pubsub pubSub, handler indicator.EventHandler) {
	defer v.wg.Done()

	v.log.Infof("Starting %s subscription handler", key)

	for {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}
			v.log.Errorf("Subscription %s error: %v", key, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(subscriptionRetryDelay):
			}
			continue
		}

		switch m := msg.(type) {
		case *redis.Message:
			v.log.Debugf("Message received: channel=%s, payload=%s", m.Channel, m.Payload)

			ev, err := v.Get(ctx, iface, zone)
			if err != nil {
				if !errors.Is(err, indicator.ErrNoData) {
					v.log.Errorf("Failed to read %s after notification: %v", key, err)
				}
				continue
			}
			handler(ev)

		case *redis.Subscription:
			v.log.Debugf("Subscription event: %s %s", m.Channel, m.Kind)
		}
	}
}

func (v *Vehicle) Unsubscribe(iface string, zone indicator.Zone) error {
	key := InterfaceKey(v.prefix, iface, zone)

	v.mu.Lock()
	sub, ok := v.subs[key]
	delete(v.subs, key)
	v.mu.Unlock()

	if !ok {
		return fmt.Errorf("not subscribed to %s", key)
	}
	sub.cancel()
	if err := sub.pubsub.Close(); err != nil {
		return fmt.Errorf("failed to close %s subscription: %w", key, err)
	}
	return nil
}

// Destroy closes every subscription and waits for the handlers to exit.
func (v *Vehicle) Destroy() {
	v.cancel()

	v.mu.Lock()
	for key, sub := range v.subs {
		if err := sub.pubsub.Close(); err != nil {
			v.log.Warnf("Failed to close %s subscription: %v", key, err)
		}
		delete(v.subs, key)
	}
	v.mu.Unlock()

	v.wg.Wait()
}
