// Package indicator normalizes a host vehicle-data API into per-signal change
// handlers and a cached status.
//
// A static mapping table correlates each logical signal with the host
// interface, attribute and zone that carries it and with the conversion that
// turns the raw value into the form shown on the dashboard. CarIndicator
// reference-counts listener interest per signal, subscribes each host channel
// once, and fans normalized changes out to the registered handlers.
package indicator
