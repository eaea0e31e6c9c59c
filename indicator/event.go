package indicator

import (
	"fmt"
	"strings"
)

// Value is a raw or normalized signal value. Normalized values are scalars
// (bool, int, float64, string) so they compare for equality.
type Value = interface{}

// Event is one raw notification from the host vehicle API: a flat set of
// attribute fields plus metadata fields.
type Event map[string]Value

// Metadata field names.
const (
	FieldInterfaceName = "interfaceName"
	FieldZone          = "zone"
	FieldTime          = "time"
	FieldTimestamp     = "timestamp"
)

// EventHandler receives raw host events.
type EventHandler func(Event)

// InterfaceName returns the host interface the event came from.
func (e Event) InterfaceName() string {
	s, _ := e[FieldInterfaceName].(string)
	return s
}

// Zone decodes the event zone. A missing zone is ZoneNone.
func (e Event) Zone() (Zone, error) {
	raw, ok := e[FieldZone]
	if !ok || raw == nil {
		return ZoneNone, nil
	}
	switch v := raw.(type) {
	case Zone:
		return v, nil
	case int:
		return zoneFromBits(uint64(v))
	case int64:
		return zoneFromBits(uint64(v))
	case uint:
		return zoneFromBits(uint64(v))
	case uint8:
		return zoneFromBits(uint64(v))
	case float64:
		return zoneFromBits(uint64(v))
	case string:
		return ParseZone(v)
	case []string:
		return NewZone(v...)
	}
	return ZoneNone, fmt.Errorf("unsupported zone type %T", raw)
}

// IsMetadataField reports whether name describes the event rather than a
// vehicle attribute.
func IsMetadataField(name string) bool {
	switch name {
	case FieldInterfaceName, FieldZone, FieldTime, FieldTimestamp:
		return true
	}
	return strings.HasSuffix(strings.ToLower(name), "sequence")
}

// NewEvent builds an event for iface in zone with the given attribute fields.
func NewEvent(iface string, zone Zone, fields map[string]Value) Event {
	e := make(Event, len(fields)+2)
	for k, v := range fields {
		e[k] = v
	}
	e[FieldInterfaceName] = iface
	if !zone.IsNone() {
		e[FieldZone] = zone
	}
	return e
}
