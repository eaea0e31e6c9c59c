package canbus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"dashboard-service/indicator"

	"github.com/brutella/can"
)

// DataTimeout is how long the bus may stay silent before its data is stale.
const DataTimeout = 2 * time.Second

// Publisher sends frames on the bus. *can.Bus satisfies it.
type Publisher interface {
	Publish(frame can.Frame) error
}

var _ Publisher = (*can.Bus)(nil)

type hostKey struct {
	iface string
	zone  indicator.Zone
}

func keyFor(iface string, zone indicator.Zone) hostKey {
	return hostKey{iface: strings.ToLower(iface), zone: zone}
}

// Host implements indicator.Vehicle on a CAN bus. It keeps the last decoded
// values per interface and zone and notifies subscribers on every frame.
type Host struct {
	mu            sync.RWMutex
	log           indicator.Logger
	bus           Publisher
	ifaces        map[string]bool
	snapshots     map[hostKey]map[string]indicator.Value
	handlers      map[hostKey]indicator.EventHandler
	speedBuffer   SpeedBuffer
	lastFrameTime time.Time
}

var (
	_ indicator.Vehicle = (*Host)(nil)
	_ can.Handler       = (*Host)(nil)
)

func NewHost(logger indicator.Logger, bus Publisher) *Host {
	h := &Host{
		log:           logger,
		bus:           bus,
		ifaces:        make(map[string]bool),
		snapshots:     make(map[hostKey]map[string]indicator.Value),
		handlers:      make(map[hostKey]indicator.EventHandler),
		lastFrameTime: time.Now(),
	}
	for _, iface := range Interfaces() {
		h.ifaces[strings.ToLower(iface)] = true
	}
	return h
}

// Interfaces lists the interfaces the frame catalog can report.
func Interfaces() []string {
	return []string{
		"vehicleSpeed", "odometer", "transmission", "steeringWheel",
		"brakeOperation", "lightStatus", "batteryStatus", "FullBatteryRange",
		"temperature", "tire", "climateControl", "defrost",
		"childSafetyLock", "nightMode",
	}
}

// Handle decodes a frame and notifies the subscribers of every interface it
// updates.
func (h *Host) Handle(frame can.Frame) {
	if err := h.HandleFrame(frame); err != nil {
		h.log.Warnf("Error handling CAN frame 0x%03X: %v", frame.ID, err)
	}
}

// HandleFrame processes one incoming frame. Unknown IDs are ignored.
func (h *Host) HandleFrame(frame can.Frame) error {
	spec, ok := frameCatalog[frame.ID]
	if !ok {
		return nil
	}
	if frame.Length < spec.minLength {
		return fmt.Errorf("%s frame too short: %d bytes", spec.name, frame.Length)
	}

	h.log.Debugf("CAN frame 0x%03X (%s): % X", frame.ID, spec.name, payload(frame))

	h.mu.Lock()
	h.lastFrameTime = time.Now()
	updates, err := spec.decode(h, frame)
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("failed to decode %s frame: %w", spec.name, err)
	}

	type notification struct {
		handler indicator.EventHandler
		event   indicator.Event
	}
	var pending []notification
	for _, u := range updates {
		key := keyFor(u.iface, u.zone)
		snap, ok := h.snapshots[key]
		if !ok {
			snap = make(map[string]indicator.Value, len(u.fields))
			h.snapshots[key] = snap
		}
		for k, v := range u.fields {
			snap[k] = v
		}
		if handler, ok := h.handlers[key]; ok {
			pending = append(pending, notification{handler, indicator.NewEvent(u.iface, u.zone, u.fields)})
		}
	}
	h.mu.Unlock()

	for _, n := range pending {
		n.handler(n.event)
	}
	return nil
}

// payload returns the used bytes of frame. Length is clamped to the data size.
func payload(frame can.Frame) []byte {
	n := int(frame.Length)
	if n > len(frame.Data) {
		n = len(frame.Data)
	}
	return frame.Data[:n]
}

// IsDataStale returns true if no frames have been received within DataTimeout.
func (h *Host) IsDataStale() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return time.Since(h.lastFrameTime) > DataTimeout
}

// calculateSpeed smooths a raw km/h reading. Callers hold h.mu.
func (h *Host) calculateSpeed(rawSpeed uint16) int {
	if rawSpeed == 0 {
		h.speedBuffer.Reset()
		return 0
	}
	return int(math.Round(h.speedBuffer.MovingAverage(rawSpeed)))
}

func (h *Host) Supports(iface string) bool {
	return h.ifaces[strings.ToLower(iface)]
}

func (h *Host) Get(_ context.Context, iface string, zone indicator.Zone) (indicator.Event, error) {
	if !h.Supports(iface) {
		return nil, fmt.Errorf("%w: %s", indicator.ErrUnsupportedInterface, iface)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	snap, ok := h.snapshots[keyFor(iface, zone)]
	if !ok {
		return nil, indicator.ErrNoData
	}
	return indicator.NewEvent(iface, zone, snap), nil
}

func (h *Host) Subscribe(iface string, zone indicator.Zone, handler indicator.EventHandler) error {
	if !h.Supports(iface) {
		return fmt.Errorf("%w: %s", indicator.ErrUnsupportedInterface, iface)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := keyFor(iface, zone)
	if _, ok := h.handlers[key]; ok {
		return fmt.Errorf("already subscribed to %s in zone %s", iface, zone)
	}
	h.handlers[key] = handler
	return nil
}

func (h *Host) Unsubscribe(iface string, zone indicator.Zone) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := keyFor(iface, zone)
	if _, ok := h.handlers[key]; !ok {
		return fmt.Errorf("not subscribed to %s in zone %s", iface, zone)
	}
	delete(h.handlers, key)
	return nil
}

// Set encodes each value as a command frame and publishes it.
func (h *Host) Set(_ context.Context, iface string, values map[string]indicator.Value, zone indicator.Zone) error {
	if !h.Supports(iface) {
		return fmt.Errorf("%w: %s", indicator.ErrUnsupportedInterface, iface)
	}
	if h.bus == nil {
		return errors.New("CAN bus not available")
	}

	frames, err := encodeCommands(iface, values, zone)
	if err != nil {
		return err
	}
	for _, frame := range frames {
		h.log.Debugf("Sending command frame: % X", payload(frame))
		if err := h.bus.Publish(frame); err != nil {
			return fmt.Errorf("failed to send command frame: %w", err)
		}
	}
	return nil
}
