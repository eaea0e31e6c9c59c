package ipc

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"dashboard-service/indicator"
)

func (v *Vehicle) Set(ctx context.Context, iface string, values map[string]indicator.Value, zone indicator.Zone) error {
	if !v.Supports(iface) {
		return fmt.Errorf("%w: %s", indicator.ErrUnsupportedInterface, iface)
	}
	if len(values) == 0 {
		return nil
	}

	key := InterfaceKey(v.prefix, iface, zone)

	fields := make(map[string]interface{}, len(values))
	names := make([]string, 0, len(values))
	for k, val := range values {
		fields[k] = encodeValue(val)
		names = append(names, k)
	}
	sort.Strings(names)

	if err := v.redis.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := v.redis.Publish(ctx, key, strings.Join(names, " ")).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}
	return nil
}

// StatusMirror copies the normalized dashboard status into a Redis hash and
// announces each change on "<key> <property>".
type StatusMirror struct {
	log   indicator.Logger
	redis redisClient
	table *indicator.Table
	key   string
	mu    sync.Mutex
	ctx   context.Context
}

func NewStatusMirror(logger indicator.Logger, client redisClient, table *indicator.Table, key string) *StatusMirror {
	if key == "" {
		key = DefaultStatusKey
	}
	return &StatusMirror{
		log:   logger,
		redis: client,
		table: table,
		key:   key,
		ctx:   context.Background(),
	}
}

// WriteDefaults writes a full status snapshot.
func (m *StatusMirror) WriteDefaults(status indicator.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(status) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(status))
	for k, v := range status {
		fields[k] = encodeValue(v)
	}
	if err := m.redis.HSet(m.ctx, m.key, fields).Err(); err != nil {
		return fmt.Errorf("failed to write default status: %w", err)
	}
	return nil
}

// Handlers returns a bundle mirroring every signal of the table.
func (m *StatusMirror) Handlers() indicator.Handlers {
	signals := make([]indicator.Signal, 0)
	for _, mapping := range m.table.Mappings() {
		signals = append(signals, mapping.Signal)
	}
	return indicator.HandleAll(signals, m.onChange)
}

func (m *StatusMirror) onChange(sig indicator.Signal, newValue, _ indicator.Value) {
	mapping, ok := m.table.Lookup(sig)
	if !ok {
		return
	}
	if err := m.send(mapping.Property, newValue); err != nil {
		m.log.Errorf("Failed to mirror %s: %v", mapping.Property, err)
	}
}

func (m *StatusMirror) send(property string, value indicator.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.redis.HSet(m.ctx, m.key, property, encodeValue(value)).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", property, err)
	}
	if err := m.redis.Publish(m.ctx, fmt.Sprintf("%s %s", m.key, property), encodeValue(value)).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", property, err)
	}
	return nil
}
