package indicator

import (
	"context"
	"errors"
)

var (
	// ErrNoData is returned by Vehicle.Get when the host has no snapshot yet.
	ErrNoData = errors.New("no data")

	// ErrUnsupportedInterface is returned for interfaces the host does not carry.
	ErrUnsupportedInterface = errors.New("unsupported interface")
)

// Vehicle is the host vehicle data API. Interfaces are addressed by name and
// zone; names are matched case-insensitively by implementations.
type Vehicle interface {
	// Supports reports whether the host carries iface at all.
	Supports(iface string) bool

	// Get returns the current snapshot of iface in zone.
	Get(ctx context.Context, iface string, zone Zone) (Event, error)

	// Subscribe delivers future changes of iface in zone to handler.
	Subscribe(iface string, zone Zone, handler EventHandler) error

	// Unsubscribe stops deliveries for iface in zone.
	Unsubscribe(iface string, zone Zone) error

	// Set writes attribute values of iface in zone.
	Set(ctx context.Context, iface string, values map[string]Value, zone Zone) error
}

// Metrics receives dispatch counters.
type Metrics interface {
	EventReceived(iface string)
	SignalChanged(sig Signal)
	UnresolvedField(iface, field string)
	HandlerFailed(sig Signal)
	HostSubscriptions(n int)
}

// NopMetrics records nothing.
type NopMetrics struct{}

func (NopMetrics) EventReceived(string)           {}
func (NopMetrics) SignalChanged(Signal)           {}
func (NopMetrics) UnresolvedField(string, string) {}
func (NopMetrics) HandlerFailed(Signal)           {}
func (NopMetrics) HostSubscriptions(int)          {}
