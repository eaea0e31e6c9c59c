package indicator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFetchTimeout bounds the initial Get issued on registration.
const DefaultFetchTimeout = 2 * time.Second

// ErrUnknownListener is returned when removing an id that is not registered.
var ErrUnknownListener = errors.New("unknown listener")

// ListenerID identifies a registered handler bundle.
type ListenerID uint64

// ChangeFunc is called with the new and the previous normalized value.
type ChangeFunc func(newValue, oldValue Value)

// Handlers is a listener's handler bundle, one slot per signal.
type Handlers map[Signal]ChangeFunc

// SignalFunc is a change handler that also learns which signal changed.
type SignalFunc func(sig Signal, newValue, oldValue Value)

// HandleAll builds a bundle routing every given signal to fn.
func HandleAll(signals []Signal, fn SignalFunc) Handlers {
	h := make(Handlers, len(signals))
	for _, sig := range signals {
		sig := sig
		h[sig] = func(newValue, oldValue Value) { fn(sig, newValue, oldValue) }
	}
	return h
}

// Config configures a CarIndicator. Zero fields take defaults.
type Config struct {
	Logger       Logger
	Metrics      Metrics
	Table        *Table
	Defaults     Status
	FetchTimeout time.Duration
}

type listener struct {
	id       ListenerID
	handlers Handlers
	removed  atomic.Bool
}

type hostKey struct {
	iface string
	zone  Zone
}

type hostSub struct {
	iface   string
	zone    Zone
	signals int
}

// CarIndicator adapts a host vehicle API to per-signal change handlers and
// keeps the last known value of every signal.
type CarIndicator struct {
	vehicle      Vehicle
	table        *Table
	log          Logger
	metrics      Metrics
	fetchTimeout time.Duration

	// regMu serializes registration and guards counts, attached and hostSubs.
	regMu    sync.Mutex
	counts   map[Signal]int
	attached map[Signal]hostKey
	hostSubs map[hostKey]*hostSub

	mu        sync.Mutex
	nextID    ListenerID
	listeners map[ListenerID]*listener
	order     []ListenerID
	status    Status
}

// New creates an adapter over vehicle. A nil vehicle is allowed: listeners
// register but nothing is ever subscribed.
func New(vehicle Vehicle, cfg Config) *CarIndicator {
	if cfg.Logger == nil {
		cfg.Logger = NopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	if cfg.Table == nil {
		cfg.Table = DefaultTable()
	}
	if cfg.Defaults == nil {
		cfg.Defaults = DefaultStatus()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	cfg.Logger.Infof("Starting up service CarIndicator")

	return &CarIndicator{
		vehicle:      vehicle,
		table:        cfg.Table,
		log:          cfg.Logger,
		metrics:      cfg.Metrics,
		fetchTimeout: cfg.FetchTimeout,
		counts:       make(map[Signal]int),
		attached:     make(map[Signal]hostKey),
		hostSubs:     make(map[hostKey]*hostSub),
		listeners:    make(map[ListenerID]*listener),
		status:       cfg.Defaults.Clone(),
	}
}

// Table returns the mapping table in use.
func (c *CarIndicator) Table() *Table {
	return c.table
}

// AddListener registers a handler bundle and returns its id. Signals nobody
// listened to before are fetched once for this listener and then subscribed
// on the host. Handlers must not call AddListener or RemoveListener
// synchronously.
func (c *CarIndicator) AddListener(handlers Handlers) ListenerID {
	c.regMu.Lock()
	defer c.regMu.Unlock()

	bundle := make(Handlers, len(handlers))
	for sig, fn := range handlers {
		if fn != nil {
			bundle[sig] = fn
		}
	}

	c.mu.Lock()
	c.nextID++
	l := &listener{id: c.nextID, handlers: bundle}
	c.listeners[l.id] = l
	c.order = append(c.order, l.id)
	c.mu.Unlock()

	for _, sig := range sortedSignals(bundle) {
		m, ok := c.table.Lookup(sig)
		if !ok {
			c.log.Warnf("Listener %d asks for unmapped signal %s", l.id, sig)
			continue
		}
		if c.counts[sig] == 0 {
			c.attach(m, l.id)
		}
		c.counts[sig]++
	}

	return l.id
}

// RemoveListener unregisters a bundle. Host channels nobody needs any more
// are unsubscribed.
func (c *CarIndicator) RemoveListener(id ListenerID) error {
	c.regMu.Lock()
	defer c.regMu.Unlock()

	c.mu.Lock()
	l, ok := c.listeners[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownListener, id)
	}
	l.removed.Store(true)
	delete(c.listeners, id)
	for i, lid := range c.order {
		if lid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	for _, sig := range sortedSignals(l.handlers) {
		if c.counts[sig] == 0 {
			continue
		}
		c.counts[sig]--
		if c.counts[sig] == 0 {
			delete(c.counts, sig)
			c.detach(sig)
		}
	}
	return nil
}

// SubscriberCount returns how many listeners currently want sig.
func (c *CarIndicator) SubscriberCount(sig Signal) int {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	return c.counts[sig]
}

// Close removes every listener.
func (c *CarIndicator) Close() {
	c.mu.Lock()
	ids := append([]ListenerID(nil), c.order...)
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.RemoveListener(id); err != nil {
			c.log.Debugf("Close: %v", err)
		}
	}
}

func (c *CarIndicator) attach(m Mapping, target ListenerID) {
	if c.vehicle == nil {
		c.log.Warnf("Vehicle API is not available.")
		return
	}

	iface := m.HostInterface()
	if !c.vehicle.Supports(iface) {
		c.log.Warnf("%s is not available to subscribe to", iface)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	ev, err := c.vehicle.Get(ctx, iface, m.Zone)
	cancel()
	switch {
	case err == nil:
		if ev.InterfaceName() == "" {
			ev[FieldInterfaceName] = iface
		}
		if _, ok := ev[FieldZone]; !ok && !m.Zone.IsNone() {
			ev[FieldZone] = m.Zone
		}
		c.dispatch(ev, target)
	case errors.Is(err, ErrNoData):
		c.log.Debugf("No initial data for %s in zone %s", iface, m.Zone)
	default:
		c.log.Warnf("Failed to get %s in zone %s: %v", iface, m.Zone, err)
	}

	key := hostKey{iface: strings.ToLower(iface), zone: m.Zone}
	if sub, ok := c.hostSubs[key]; ok {
		sub.signals++
		c.attached[m.Signal] = key
		return
	}

	c.log.Infof("Subscribing to vehicle signal - %s (zone %s)", iface, m.Zone)
	if err := c.vehicle.Subscribe(iface, m.Zone, c.HandleEvent); err != nil {
		c.log.Warnf("Failed to subscribe to %s in zone %s: %v", iface, m.Zone, err)
		return
	}
	c.hostSubs[key] = &hostSub{iface: iface, zone: m.Zone, signals: 1}
	c.attached[m.Signal] = key
	c.metrics.HostSubscriptions(len(c.hostSubs))
}

func (c *CarIndicator) detach(sig Signal) {
	key, ok := c.attached[sig]
	if !ok {
		return
	}
	delete(c.attached, sig)

	sub := c.hostSubs[key]
	sub.signals--
	if sub.signals > 0 {
		return
	}
	delete(c.hostSubs, key)
	c.metrics.HostSubscriptions(len(c.hostSubs))

	c.log.Infof("Unsubscribing from vehicle signal - %s (zone %s)", sub.iface, sub.zone)
	if err := c.vehicle.Unsubscribe(sub.iface, sub.zone); err != nil {
		c.log.Warnf("Failed to unsubscribe from %s in zone %s: %v", sub.iface, sub.zone, err)
	}
}

// Status returns a snapshot of the status cache.
func (c *CarIndicator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.Clone()
}

// GetStatus hands a snapshot of the status cache to fn.
func (c *CarIndicator) GetStatus(fn func(Status)) {
	fn(c.Status())
}

// SetStatus asks the host to write value to the signal behind property.
// Zoned signals are always written in their own zone; zone only scopes
// signals whose mapping has none. Failures are logged;
// the cache only changes once the host reports the new value.
func (c *CarIndicator) SetStatus(ctx context.Context, property string, value Value, zone Zone) {
	m, ok := c.table.ByProperty(property)
	if !ok {
		c.log.Warnf("Can't set status for unknown property %s", property)
		return
	}
	if c.vehicle == nil {
		c.log.Warnf("Vehicle API is not available.")
		return
	}

	iface := m.HostInterface()
	if !c.vehicle.Supports(iface) {
		c.log.Errorf("Can't set status for %s because %s doesn't exist", property, iface)
		return
	}

	z := m.Zone
	switch {
	case zone.IsNone():
	case m.Zone.IsNone():
		z = zone
	case !zone.Equal(m.Zone):
		c.log.Warnf("Ignoring zone %s for %s, it is bound to zone %s", zone, property, m.Zone)
	}

	c.log.Infof("Trying to set %s.%s in zone %s to %v", iface, m.Attribute, z, value)
	if err := c.vehicle.Set(ctx, iface, map[string]Value{m.Attribute: value}, z); err != nil {
		c.log.Errorf("Set %s.%s failed: %v", iface, m.Attribute, err)
		return
	}
	c.log.Debugf("Set %s.%s succeeded", iface, m.Attribute)
}

func sortedSignals(h Handlers) []Signal {
	out := make([]Signal, 0, len(h))
	for sig := range h {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
