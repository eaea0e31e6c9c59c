package canbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"

	"dashboard-service/indicator"

	"github.com/brutella/can"
	"github.com/spf13/cast"
)

// ErrReadOnly is returned when a write targets an attribute without command.
var ErrReadOnly = errors.New("attribute is read only")

// Command codes carried in the first byte of a command frame.
const (
	CmdTargetTemperature = 0x01
	CmdFanSpeedLevel     = 0x02
	CmdSeatHeater        = 0x03
	CmdAirConditioning   = 0x04
	CmdAirRecirculation  = 0x05
	CmdDefrostWindow     = 0x06
	CmdHazard            = 0x07
	CmdAirflowDirection  = 0x08
)

type commandKey struct {
	iface     string
	attribute string
}

var commandCodes = map[commandKey]byte{
	{"climatecontrol", "targettemperature"}:   CmdTargetTemperature,
	{"climatecontrol", "fanspeedlevel"}:       CmdFanSpeedLevel,
	{"climatecontrol", "seatheater"}:          CmdSeatHeater,
	{"climatecontrol", "airconditioning"}:     CmdAirConditioning,
	{"climatecontrol", "airrecirculation"}:    CmdAirRecirculation,
	{"climatecontrol", "airflowdirectionw3c"}: CmdAirflowDirection,
	{"defrost", "defrostwindow"}:              CmdDefrostWindow,
	{"lightstatus", "hazard"}:                 CmdHazard,
}

// encodeCommands builds one {code, zone, int16 value} frame per attribute, in
// attribute order.
func encodeCommands(iface string, values map[string]indicator.Value, zone indicator.Zone) ([]can.Frame, error) {
	attrs := make([]string, 0, len(values))
	for attr := range values {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	frames := make([]can.Frame, 0, len(attrs))
	for _, attr := range attrs {
		code, ok := commandCodes[commandKey{strings.ToLower(iface), strings.ToLower(attr)}]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrReadOnly, iface, attr)
		}

		value, err := cast.ToInt16E(values[attr])
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s.%s: %w", iface, attr, err)
		}

		data := make([]byte, 4)
		data[0] = code
		data[1] = byte(zone)
		binary.BigEndian.PutUint16(data[2:4], uint16(value))
		frames = append(frames, packFrame(CommandFrameID, data))
	}
	return frames, nil
}
