package canbus

import (
	"encoding/binary"
	"fmt"

	"dashboard-service/indicator"

	"github.com/brutella/can"
)

// Dashboard frame IDs.
const (
	VehicleSpeedFrameID = 0x100
	OdometerFrameID     = 0x101
	TransmissionFrameID = 0x102
	SteeringFrameID     = 0x103
	LightStatusFrameID  = 0x104
	BatteryFrameID      = 0x105
	TemperatureFrameID  = 0x106
	TirePressureFrameID = 0x107
	ClimateFrameID      = 0x108
	ClimateZoneFrameID  = 0x109
	DefrostFrameID      = 0x10A
	CabinFrameID        = 0x10B
	CommandFrameID      = 0x200
)

// update is the decoded content of a frame for one interface and zone.
type update struct {
	iface  string
	zone   indicator.Zone
	fields map[string]indicator.Value
}

type frameDecoder func(h *Host, frame can.Frame) ([]update, error)

type frameSpec struct {
	name      string
	minLength uint8
	decode    frameDecoder
}

var frameCatalog = map[uint32]frameSpec{
	VehicleSpeedFrameID: {"vehicle speed", 2, decodeVehicleSpeed},
	OdometerFrameID:     {"odometer", 4, decodeOdometer},
	TransmissionFrameID: {"transmission", 1, decodeTransmission},
	SteeringFrameID:     {"steering", 3, decodeSteering},
	LightStatusFrameID:  {"light status", 1, decodeLightStatus},
	BatteryFrameID:      {"battery", 3, decodeBattery},
	TemperatureFrameID:  {"temperature", 4, decodeTemperature},
	TirePressureFrameID: {"tire pressure", 8, decodeTirePressure},
	ClimateFrameID:      {"climate", 3, decodeClimate},
	ClimateZoneFrameID:  {"climate zone", 3, decodeClimateZone},
	DefrostFrameID:      {"defrost", 1, decodeDefrost},
	CabinFrameID:        {"cabin", 1, decodeCabin},
}

var shiftModes = []string{"park", "reverse", "neutral", "low", "drive", "overdrive"}

var tireZones = []indicator.Zone{
	indicator.ZoneFront | indicator.ZoneLeft,
	indicator.ZoneFront | indicator.ZoneRight,
	indicator.ZoneRear | indicator.ZoneLeft,
	indicator.ZoneRear | indicator.ZoneRight,
}

func single(iface string, fields map[string]indicator.Value) []update {
	return []update{{iface: iface, fields: fields}}
}

// Speed in km/h, smoothed over the last samples. Zero resets the window.
func decodeVehicleSpeed(h *Host, frame can.Frame) ([]update, error) {
	raw := binary.BigEndian.Uint16(frame.Data[0:2])
	return single("vehicleSpeed", map[string]indicator.Value{"speed": h.calculateSpeed(raw)}), nil
}

// Total distance in km.
func decodeOdometer(_ *Host, frame can.Frame) ([]update, error) {
	km := binary.BigEndian.Uint32(frame.Data[0:4])
	return single("odometer", map[string]indicator.Value{"odometer": int(km)}), nil
}

func decodeTransmission(_ *Host, frame can.Frame) ([]update, error) {
	code := int(frame.Data[0])
	if code >= len(shiftModes) {
		return nil, fmt.Errorf("unknown shift position %d", code)
	}
	return single("transmission", map[string]indicator.Value{"mode": shiftModes[code]}), nil
}

// Steering angle in 0.1 degree steps over 0..360 plus the brake pedal bit.
func decodeSteering(_ *Host, frame can.Frame) ([]update, error) {
	angle := float64(binary.BigEndian.Uint16(frame.Data[0:2])) / 10
	return []update{
		{iface: "steeringWheel", fields: map[string]indicator.Value{"steeringWheelAngle": angle}},
		{iface: "brakeOperation", fields: map[string]indicator.Value{"engaged": frame.Data[2]&0x01 != 0}},
	}, nil
}

func decodeLightStatus(_ *Host, frame can.Frame) ([]update, error) {
	bits := frame.Data[0]
	return single("lightStatus", map[string]indicator.Value{
		"hazard":  bits&0x01 != 0,
		"head":    bits&0x02 != 0,
		"parking": bits&0x04 != 0,
	}), nil
}

// Charge level in percent and the range on a full battery in km.
func decodeBattery(_ *Host, frame can.Frame) ([]update, error) {
	return []update{
		{iface: "batteryStatus", fields: map[string]indicator.Value{"chargeLevel": int(frame.Data[0])}},
		{iface: "FullBatteryRange", fields: map[string]indicator.Value{
			"fullBatteryRange": int(binary.BigEndian.Uint16(frame.Data[1:3])),
		}},
	}, nil
}

// Exterior and interior temperature, signed, in 0.1 degree steps.
func decodeTemperature(_ *Host, frame can.Frame) ([]update, error) {
	exterior := float64(int16(binary.BigEndian.Uint16(frame.Data[0:2]))) / 10
	interior := float64(int16(binary.BigEndian.Uint16(frame.Data[2:4]))) / 10
	return single("temperature", map[string]indicator.Value{
		"exteriorTemperature": exterior,
		"interiorTemperature": interior,
	}), nil
}

// Four pressures in kPa: front-left, front-right, rear-left, rear-right.
func decodeTirePressure(_ *Host, frame can.Frame) ([]update, error) {
	out := make([]update, 0, len(tireZones))
	for i, zone := range tireZones {
		kpa := binary.BigEndian.Uint16(frame.Data[i*2 : i*2+2])
		out = append(out, update{
			iface:  "tire",
			zone:   zone,
			fields: map[string]indicator.Value{"pressure": float64(kpa)},
		})
	}
	return out, nil
}

func decodeClimate(_ *Host, frame can.Frame) ([]update, error) {
	flags := frame.Data[1]
	return single("climateControl", map[string]indicator.Value{
		"fanSpeedLevel":       int(frame.Data[0]),
		"airConditioning":     flags&0x01 != 0,
		"airRecirculation":    flags&0x02 != 0,
		"airflowDirectionW3C": int(frame.Data[2]),
	}), nil
}

// Per seat settings: zone bits, target temperature and seat heater level.
func decodeClimateZone(_ *Host, frame can.Frame) ([]update, error) {
	zone := indicator.Zone(frame.Data[0])
	if zone.IsNone() {
		return nil, fmt.Errorf("climate zone frame without zone")
	}
	return []update{{
		iface: "climateControl",
		zone:  zone,
		fields: map[string]indicator.Value{
			"targetTemperature": int(frame.Data[1]),
			"seatHeater":        int(frame.Data[2]),
		},
	}}, nil
}

func decodeDefrost(_ *Host, frame can.Frame) ([]update, error) {
	bits := frame.Data[0]
	return []update{
		{iface: "defrost", zone: indicator.ZoneFront, fields: map[string]indicator.Value{"defrostWindow": bits&0x01 != 0}},
		{iface: "defrost", zone: indicator.ZoneRear, fields: map[string]indicator.Value{"defrostWindow": bits&0x02 != 0}},
	}, nil
}

func decodeCabin(_ *Host, frame can.Frame) ([]update, error) {
	bits := frame.Data[0]
	return []update{
		{iface: "childSafetyLock", fields: map[string]indicator.Value{"lock": bits&0x01 != 0}},
		{iface: "nightMode", fields: map[string]indicator.Value{"mode": bits&0x02 != 0}},
	}, nil
}

// packFrame creates a CAN frame with the given ID and data
func packFrame(id uint32, data []byte) can.Frame {
	var frameData [8]byte
	copy(frameData[:], data)
	return can.Frame{
		ID:     id,
		Length: uint8(len(data)),
		Flags:  0,
		Data:   frameData,
	}
}
