package indicator

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type fakeKey struct {
	iface string
	zone  Zone
}

func keyOf(iface string, zone Zone) fakeKey {
	return fakeKey{iface: strings.ToLower(iface), zone: zone}
}

type setCall struct {
	iface  string
	values map[string]Value
	zone   Zone
}

// fakeVehicle records every host call and lets tests push events.
type fakeVehicle struct {
	mu          sync.Mutex
	unsupported map[string]bool
	snapshots   map[fakeKey]Event
	handlers    map[fakeKey]EventHandler
	gets        []fakeKey
	subscribes  []fakeKey
	unsubs      []fakeKey
	sets        []setCall
	setErr      error
}

func newFakeVehicle() *fakeVehicle {
	return &fakeVehicle{
		unsupported: make(map[string]bool),
		snapshots:   make(map[fakeKey]Event),
		handlers:    make(map[fakeKey]EventHandler),
	}
}

func (f *fakeVehicle) Supports(iface string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unsupported[strings.ToLower(iface)]
}

func (f *fakeVehicle) Get(_ context.Context, iface string, zone Zone) (Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := keyOf(iface, zone)
	f.gets = append(f.gets, k)
	ev, ok := f.snapshots[k]
	if !ok {
		return nil, ErrNoData
	}
	out := make(Event, len(ev))
	for key, v := range ev {
		out[key] = v
	}
	return out, nil
}

func (f *fakeVehicle) Subscribe(iface string, zone Zone, handler EventHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := keyOf(iface, zone)
	if _, ok := f.handlers[k]; ok {
		return fmt.Errorf("already subscribed to %s/%s", iface, zone)
	}
	f.subscribes = append(f.subscribes, k)
	f.handlers[k] = handler
	return nil
}

func (f *fakeVehicle) Unsubscribe(iface string, zone Zone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := keyOf(iface, zone)
	f.unsubs = append(f.unsubs, k)
	delete(f.handlers, k)
	return nil
}

func (f *fakeVehicle) Set(_ context.Context, iface string, values map[string]Value, zone Zone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, setCall{iface: iface, values: values, zone: zone})
	return f.setErr
}

// emit delivers an event through the subscribed handler, if any.
func (f *fakeVehicle) emit(iface string, zone Zone, fields map[string]Value) bool {
	f.mu.Lock()
	h, ok := f.handlers[keyOf(iface, zone)]
	f.mu.Unlock()
	if !ok {
		return false
	}
	h(NewEvent(iface, zone, fields))
	return true
}

func (f *fakeVehicle) counts() (subs, unsubs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribes), len(f.unsubs)
}

type recordingLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (l *recordingLogger) Debugf(string, ...interface{}) {}
func (l *recordingLogger) Infof(string, ...interface{})  {}

func (l *recordingLogger) Warnf(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, v...))
}

func (l *recordingLogger) Errorf(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, v...))
}

type recordingMetrics struct {
	NopMetrics
	unresolved []string
	failed     []Signal
	changed    []Signal
	hostSubs   int
}

func (m *recordingMetrics) UnresolvedField(iface, field string) {
	m.unresolved = append(m.unresolved, iface+"."+field)
}
func (m *recordingMetrics) HandlerFailed(sig Signal) { m.failed = append(m.failed, sig) }
func (m *recordingMetrics) SignalChanged(sig Signal) { m.changed = append(m.changed, sig) }
func (m *recordingMetrics) HostSubscriptions(n int)  { m.hostSubs = n }

type change struct {
	newValue Value
	oldValue Value
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []change
}

func (r *changeRecorder) fn(newValue, oldValue Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change{newValue, oldValue})
}

func (r *changeRecorder) all() []change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]change(nil), r.changes...)
}
