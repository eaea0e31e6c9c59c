package ipc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dashboard-service/indicator"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	message interface{}
}

type fakeRedis struct {
	mu        sync.Mutex
	hashes    map[string]map[string]string
	published []published
	err       error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: make(map[string]map[string]string)}
}

func (f *fakeRedis) HGetAll(_ context.Context, key string) *redis.StringStringMapCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]string)
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return redis.NewStringStringMapResult(out, f.err)
}

func (f *fakeRedis) HSet(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}

	var n int64
	if len(values) == 1 {
		if m, ok := values[0].(map[string]interface{}); ok {
			for k, v := range m {
				h[k] = v.(string)
				n++
			}
		}
		return redis.NewIntResult(n, nil)
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1].(string)
		n++
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.published = append(f.published, published{channel: channel, message: message})
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Subscribe(context.Context, ...string) *redis.PubSub {
	panic("not used in tests")
}

func TestInterfaceKey(t *testing.T) {
	tests := []struct {
		iface string
		zone  indicator.Zone
		want  string
	}{
		{"vehicleSpeed", indicator.ZoneNone, "vehicle:vehiclespeed"},
		{"climateControl", indicator.ZoneFront | indicator.ZoneLeft, "vehicle:climatecontrol:front-left"},
		{"defrost", indicator.ZoneRear, "vehicle:defrost:rear"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, InterfaceKey(DefaultPrefix, tt.iface, tt.zone))
		})
	}
}

func TestDecodeValue(t *testing.T) {
	assert.Equal(t, true, decodeValue("true"))
	assert.Equal(t, false, decodeValue("false"))
	assert.Equal(t, 42, decodeValue("42"))
	assert.Equal(t, 21.5, decodeValue("21.5"))
	assert.Equal(t, "drive", decodeValue("drive"))
}

func TestVehicleGet(t *testing.T) {
	fake := newFakeRedis()
	fake.hashes["vehicle:climatecontrol:front-left"] = map[string]string{
		"targetTemperature": "21",
		"seatHeater":        "true",
	}
	v := NewVehicle(indicator.NopLogger{}, fake, Config{})

	zone := indicator.ZoneFront | indicator.ZoneLeft
	ev, err := v.Get(context.Background(), "climateControl", zone)
	require.NoError(t, err)

	assert.Equal(t, "climateControl", ev.InterfaceName())
	got, err := ev.Zone()
	require.NoError(t, err)
	assert.Equal(t, zone, got)
	assert.Equal(t, 21, ev["targetTemperature"])
	assert.Equal(t, true, ev["seatHeater"])
}

func TestVehicleGetEmptyHash(t *testing.T) {
	v := NewVehicle(indicator.NopLogger{}, newFakeRedis(), Config{})

	_, err := v.Get(context.Background(), "odometer", indicator.ZoneNone)
	assert.ErrorIs(t, err, indicator.ErrNoData)
}

func TestVehicleGetRedisError(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	v := NewVehicle(indicator.NopLogger{}, fake, Config{})

	_, err := v.Get(context.Background(), "odometer", indicator.ZoneNone)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestVehicleInterfaceAllowlist(t *testing.T) {
	v := NewVehicle(indicator.NopLogger{}, newFakeRedis(), Config{Interfaces: []string{"VehicleSpeed"}})

	assert.True(t, v.Supports("vehicleSpeed"))
	assert.False(t, v.Supports("odometer"))

	_, err := v.Get(context.Background(), "odometer", indicator.ZoneNone)
	assert.ErrorIs(t, err, indicator.ErrUnsupportedInterface)

	err = v.Subscribe("odometer", indicator.ZoneNone, func(indicator.Event) {})
	assert.ErrorIs(t, err, indicator.ErrUnsupportedInterface)
}

func TestVehicleSet(t *testing.T) {
	fake := newFakeRedis()
	v := NewVehicle(indicator.NopLogger{}, fake, Config{Prefix: "car"})

	err := v.Set(context.Background(), "climateControl",
		map[string]indicator.Value{"targetTemperature": 22, "airConditioning": true},
		indicator.ZoneFront|indicator.ZoneRight)
	require.NoError(t, err)

	key := "car:climatecontrol:front-right"
	assert.Equal(t, map[string]string{"targetTemperature": "22", "airConditioning": "true"}, fake.hashes[key])
	assert.Equal(t, []published{{channel: key, message: "airConditioning targetTemperature"}}, fake.published)
}

func TestVehicleSetError(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("read only replica")
	v := NewVehicle(indicator.NopLogger{}, fake, Config{})

	err := v.Set(context.Background(), "defrost", map[string]indicator.Value{"defrostWindow": true}, indicator.ZoneRear)
	assert.Error(t, err)
}

func TestVehicleUnsubscribeUnknown(t *testing.T) {
	v := NewVehicle(indicator.NopLogger{}, newFakeRedis(), Config{})
	assert.Error(t, v.Unsubscribe("odometer", indicator.ZoneNone))
}

func TestStatusMirrorWriteDefaults(t *testing.T) {
	fake := newFakeRedis()
	m := NewStatusMirror(indicator.NopLogger{}, fake, indicator.DefaultTable(), "")

	require.NoError(t, m.WriteDefaults(indicator.DefaultStatus()))

	h := fake.hashes[DefaultStatusKey]
	assert.Equal(t, "65", h["speed"])
	assert.Equal(t, "D", h["gear"])
	assert.Equal(t, "false", h["nightMode"])
	assert.Empty(t, fake.published)
}

func TestStatusMirrorHandlers(t *testing.T) {
	fake := newFakeRedis()
	table := indicator.DefaultTable()
	m := NewStatusMirror(indicator.NopLogger{}, fake, table, "dash")

	handlers := m.Handlers()
	assert.Len(t, handlers, len(table.Mappings()))

	handlers[indicator.SignalVehicleSpeed](62, 65)
	handlers[indicator.SignalTransmissionShiftPosition]("R", "D")

	assert.Equal(t, "62", fake.hashes["dash"]["speed"])
	assert.Equal(t, "R", fake.hashes["dash"]["gear"])
	assert.Equal(t, []published{
		{channel: "dash speed", message: "62"},
		{channel: "dash gear", message: "R"},
	}, fake.published)
}

type fakePubSub struct {
	msgs      chan interface{}
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{msgs: make(chan interface{}, 8), closed: make(chan struct{})}
}

func (p *fakePubSub) Receive(ctx context.Context) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, redis.ErrClosed
	case m := <-p.msgs:
		if err, ok := m.(error); ok {
			return nil, err
		}
		return m, nil
	}
}

func (p *fakePubSub) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePubSub) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func waitEvent(t *testing.T, events <-chan indicator.Event) indicator.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return nil
	}
}

func TestVehicleSubscribeDeliversHashOnNotification(t *testing.T) {
	const key = "vehicle:climatecontrol:front-left"

	fake := newFakeRedis()
	fake.hashes[key] = map[string]string{"targetTemperature": "21"}

	v := NewVehicle(indicator.NopLogger{}, fake, Config{})
	ps := newFakePubSub()
	var subscribed []string
	v.subscribe = func(_ context.Context, k string) pubSub {
		subscribed = append(subscribed, k)
		return ps
	}

	events := make(chan indicator.Event, 4)
	zone := indicator.ZoneFront | indicator.ZoneLeft
	require.NoError(t, v.Subscribe("climateControl", zone, func(ev indicator.Event) { events <- ev }))
	assert.Equal(t, []string{key}, subscribed)
	assert.Error(t, v.Subscribe("climateControl", zone, func(indicator.Event) {}))

	ps.msgs <- &redis.Subscription{Kind: "subscribe", Channel: key, Count: 1}
	ps.msgs <- &redis.Message{Channel: key, Payload: "targetTemperature"}

	ev := waitEvent(t, events)
	assert.Equal(t, "climateControl", ev.InterfaceName())
	assert.Equal(t, 21, ev["targetTemperature"])
	got, err := ev.Zone()
	require.NoError(t, err)
	assert.Equal(t, zone, got)

	fake.mu.Lock()
	fake.hashes[key]["targetTemperature"] = "23"
	fake.mu.Unlock()

	ps.msgs <- errors.New("i/o timeout")
	ps.msgs <- &redis.Message{Channel: key, Payload: "targetTemperature"}

	ev = waitEvent(t, events)
	assert.Equal(t, 23, ev["targetTemperature"])

	require.NoError(t, v.Unsubscribe("climateControl", zone))
	assert.True(t, ps.isClosed())

	v.Destroy()
	assert.Empty(t, events)
}

func TestVehicleSubscribeSkipsEmptyHash(t *testing.T) {
	fake := newFakeRedis()
	v := NewVehicle(indicator.NopLogger{}, fake, Config{})
	ps := newFakePubSub()
	v.subscribe = func(context.Context, string) pubSub { return ps }

	events := make(chan indicator.Event, 4)
	require.NoError(t, v.Subscribe("odometer", indicator.ZoneNone, func(ev indicator.Event) { events <- ev }))

	ps.msgs <- &redis.Message{Channel: "vehicle:odometer"}

	fake.mu.Lock()
	fake.hashes["vehicle:odometer"] = map[string]string{"odometer": "75127"}
	fake.mu.Unlock()
	ps.msgs <- &redis.Message{Channel: "vehicle:odometer"}

	ev := waitEvent(t, events)
	assert.Equal(t, 75127, ev["odometer"])

	v.Destroy()
	assert.True(t, ps.isClosed())
	assert.Empty(t, events)
}
