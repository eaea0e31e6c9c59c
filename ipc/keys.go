package ipc

import (
	"fmt"
	"strconv"
	"strings"

	"dashboard-service/indicator"

	"github.com/spf13/cast"
)

const (
	// DefaultPrefix namespaces the vehicle interface hashes.
	DefaultPrefix = "vehicle"

	// DefaultStatusKey is the hash holding the normalized dashboard status.
	DefaultStatusKey = "dashboard"
)

// InterfaceKey names the hash (and notification channel) of iface in zone:
// "vehicle:climatecontrol" or "vehicle:climatecontrol:front-left".
func InterfaceKey(prefix, iface string, zone indicator.Zone) string {
	key := fmt.Sprintf("%s:%s", prefix, strings.ToLower(iface))
	if !zone.IsNone() {
		key += ":" + zone.String()
	}
	return key
}

// decodeValue turns a hash field back into a typed value.
func decodeValue(s string) indicator.Value {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func encodeValue(v indicator.Value) string {
	return cast.ToString(v)
}

func decodeHash(iface string, zone indicator.Zone, fields map[string]string) indicator.Event {
	values := make(map[string]indicator.Value, len(fields))
	for k, v := range fields {
		values[k] = decodeValue(v)
	}
	return indicator.NewEvent(iface, zone, values)
}
