package indicator

import (
	"fmt"
	"strconv"
	"strings"
)

// Zone is a set of spatial qualifiers narrowing which physical sensor or
// actuator a signal applies to. The zero value means "no zone".
type Zone uint8

const (
	ZoneNone   Zone = 0
	ZoneFront  Zone = 1 << 0
	ZoneMiddle Zone = 1 << 1
	ZoneRight  Zone = 1 << 2
	ZoneLeft   Zone = 1 << 3
	ZoneRear   Zone = 1 << 4
	ZoneCenter Zone = 1 << 5

	zoneAll = ZoneFront | ZoneMiddle | ZoneRight | ZoneLeft | ZoneRear | ZoneCenter
)

var zoneLabels = []struct {
	zone  Zone
	label string
}{
	{ZoneFront, "front"},
	{ZoneMiddle, "middle"},
	{ZoneRight, "right"},
	{ZoneLeft, "left"},
	{ZoneRear, "rear"},
	{ZoneCenter, "center"},
}

// NewZone builds a zone from labels such as "front" and "left".
// Unknown labels are rejected.
func NewZone(labels ...string) (Zone, error) {
	var z Zone
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			continue
		}
		found := false
		for _, zl := range zoneLabels {
			if zl.label == l {
				z |= zl.zone
				found = true
				break
			}
		}
		if !found {
			return ZoneNone, fmt.Errorf("unknown zone label %q", l)
		}
	}
	return z, nil
}

// MustZone is NewZone for static tables.
func MustZone(labels ...string) Zone {
	z, err := NewZone(labels...)
	if err != nil {
		panic(err)
	}
	return z
}

// ParseZone accepts label lists ("front,left", "front-left", "front|left"),
// "none", a decimal bit mask or a binary string prefixed with "0b".
func ParseZone(s string) (Zone, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return ZoneNone, nil
	}
	if strings.HasPrefix(s, "0b") {
		v, err := strconv.ParseUint(s[2:], 2, 8)
		if err != nil {
			return ZoneNone, fmt.Errorf("invalid zone %q: %w", s, err)
		}
		return zoneFromBits(uint64(v))
	}
	if v, err := strconv.ParseUint(s, 10, 8); err == nil {
		return zoneFromBits(v)
	}
	labels := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '-' || r == '|' || r == '+' || r == ' '
	})
	return NewZone(labels...)
}

func zoneFromBits(v uint64) (Zone, error) {
	if v&^uint64(zoneAll) != 0 {
		return ZoneNone, fmt.Errorf("invalid zone bits 0x%X", v)
	}
	return Zone(v), nil
}

// Equal reports whether both zones cover the same set of qualifiers.
func (z Zone) Equal(other Zone) bool {
	return z == other
}

// IsNone reports whether z carries no qualifier.
func (z Zone) IsNone() bool {
	return z == ZoneNone
}

// Labels returns the qualifiers in canonical order.
func (z Zone) Labels() []string {
	var out []string
	for _, zl := range zoneLabels {
		if z&zl.zone != 0 {
			out = append(out, zl.label)
		}
	}
	return out
}

// String returns "none" or the labels joined by '-', e.g. "front-left".
func (z Zone) String() string {
	if z == ZoneNone {
		return "none"
	}
	return strings.Join(z.Labels(), "-")
}
