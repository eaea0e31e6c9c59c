package indicator

import (
	"reflect"
	"sort"
)

type delivery struct {
	sig      Signal
	name     string
	listener *listener
	fn       ChangeFunc
	newValue Value
	oldValue Value
}

// HandleEvent processes one raw host event and notifies every listener with
// a handler for a changed signal. It is the EventHandler given to the host.
func (c *CarIndicator) HandleEvent(ev Event) {
	c.dispatch(ev, 0)
}

// dispatch resolves ev against the table, updates the cache and notifies
// either target alone or, when target is zero, every active listener.
func (c *CarIndicator) dispatch(ev Event, target ListenerID) {
	if ev == nil {
		return
	}

	iface := ev.InterfaceName()
	c.metrics.EventReceived(iface)

	zone, err := ev.Zone()
	if err != nil {
		c.log.Warnf("Event from %s carries an invalid zone, assuming none: %v", iface, err)
		zone = ZoneNone
	}

	fields := make([]string, 0, len(ev))
	for name := range ev {
		if !IsMetadataField(name) {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)

	var out []delivery

	c.mu.Lock()
	for _, field := range fields {
		m, ok := c.table.Resolve(iface, field, zone)
		if !ok {
			c.log.Warnf("Mapping for property '%s' of %s in zone %s is not defined", field, iface, zone)
			c.metrics.UnresolvedField(iface, field)
			continue
		}

		value, err := m.convert(ev[field])
		if err != nil {
			c.log.Warnf("Cannot convert %s value %v: %v", m.Name, ev[field], err)
			continue
		}

		oldValue := c.status[m.Property]
		// Night mode is delivered on every event.
		if m.Signal != SignalNightMode && valuesEqual(oldValue, value) {
			continue
		}

		c.log.Debugf("Vehicle property '%s' has changed to new value: %v", field, value)
		c.status[m.Property] = value
		c.metrics.SignalChanged(m.Signal)
		out = c.collect(out, m, value, oldValue, target)
	}
	c.mu.Unlock()

	for _, d := range out {
		c.deliver(d)
	}
}

// collect must be called with c.mu held.
func (c *CarIndicator) collect(out []delivery, m Mapping, value, oldValue Value, target ListenerID) []delivery {
	add := func(l *listener) {
		fn, ok := l.handlers[m.Signal]
		if !ok {
			return
		}
		out = append(out, delivery{
			sig:      m.Signal,
			name:     m.CallbackName(),
			listener: l,
			fn:       fn,
			newValue: value,
			oldValue: oldValue,
		})
	}

	if target != 0 {
		if l, ok := c.listeners[target]; ok {
			add(l)
		}
		return out
	}
	for _, id := range c.order {
		add(c.listeners[id])
	}
	return out
}

func (c *CarIndicator) deliver(d delivery) {
	if d.listener.removed.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("Error occurred during executing listener %d %s: %v", d.listener.id, d.name, r)
			c.metrics.HandlerFailed(d.sig)
		}
	}()
	d.fn(d.newValue, d.oldValue)
}

func valuesEqual(a, b Value) bool {
	return reflect.DeepEqual(a, b)
}
