package indicator

import (
	"errors"
	"fmt"
	"strings"
)

// Signal enumerates the application-level vehicle signals.
type Signal int

const (
	SignalUnknown Signal = iota
	SignalSteeringWheelAngle
	SignalWheelBrake
	SignalTirePressureLeftFront
	SignalTirePressureRightFront
	SignalTirePressureLeftRear
	SignalTirePressureRightRear
	SignalChildLock
	SignalFrontDefrost
	SignalRearDefrost
	SignalFanSpeed
	SignalTargetTemperatureRight
	SignalTargetTemperatureLeft
	SignalHazard
	SignalHead
	SignalSeatHeaterRight
	SignalSeatHeaterLeft
	SignalParking
	SignalAirConditioning
	SignalAirRecirculation
	SignalAirflowDirection
	SignalBatteryStatus
	SignalFullBatteryRange
	SignalExterior
	SignalInterior
	SignalWheelAngle
	SignalWeather
	SignalAvgKW
	SignalVehicleSpeed
	SignalOdometer
	SignalTransmissionShiftPosition
	SignalRandomize
	SignalExteriorBrightness
	SignalNightMode
	SignalDirectionIndicationINST
	SignalDirectionIndicationMS
	SignalACCommand
	SignalRecircReq
	SignalFrontTSetRightCmd
	SignalFrontTSetLeftCmd
	SignalFrontBlwrSpeedCmd
	SignalHeatedSeatFRRequest
	SignalHeatedSeatFLRequest
	SignalFLHSDistrCmd
	SignalFRHSDistrCmd
)

// Mapping describes how one logical signal appears on the host API and how
// its raw value is normalized.
type Mapping struct {
	Signal    Signal
	Name      string
	Attribute string
	Property  string
	Interface string
	Zone      Zone
	Convert   ConvertFunc
}

// HostInterface returns the host interface carrying the signal. Mappings
// that do not name one use their logical name.
func (m Mapping) HostInterface() string {
	if m.Interface != "" {
		return m.Interface
	}
	return m.Name
}

// CallbackName is the conventional handler name, e.g. "onSpeedChanged".
func (m Mapping) CallbackName() string {
	if m.Property == "" {
		return ""
	}
	return "on" + strings.ToUpper(m.Property[:1]) + m.Property[1:] + "Changed"
}

func (m Mapping) convert(raw Value) (Value, error) {
	if m.Convert == nil {
		return raw, nil
	}
	return m.Convert(raw)
}

var (
	ErrDuplicateSignal   = errors.New("duplicate signal")
	ErrDuplicateProperty = errors.New("duplicate callback property")
	ErrAmbiguousMapping  = errors.New("ambiguous mapping")
)

type mappingKey struct {
	iface     string
	attribute string
	zone      Zone
}

// Table is an immutable, validated mapping table. Each (interface,
// attribute, zone) triple resolves to at most one signal.
type Table struct {
	mappings   []Mapping
	bySignal   map[Signal]int
	byKey      map[mappingKey]int
	byProperty map[string]int
}

// NewTable validates mappings and indexes them for lookup.
func NewTable(mappings []Mapping) (*Table, error) {
	t := &Table{
		mappings:   make([]Mapping, 0, len(mappings)),
		bySignal:   make(map[Signal]int, len(mappings)),
		byKey:      make(map[mappingKey]int, len(mappings)),
		byProperty: make(map[string]int, len(mappings)),
	}
	for _, m := range mappings {
		if m.Signal == SignalUnknown || m.Name == "" || m.Attribute == "" || m.Property == "" {
			return nil, fmt.Errorf("incomplete mapping %q", m.Name)
		}
		if _, ok := t.bySignal[m.Signal]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSignal, m.Name)
		}
		prop := strings.ToLower(m.Property)
		if prev, ok := t.byProperty[prop]; ok {
			return nil, fmt.Errorf("%w: %s used by %s and %s", ErrDuplicateProperty,
				m.Property, t.mappings[prev].Name, m.Name)
		}
		key := keyFor(m.HostInterface(), m.Attribute, m.Zone)
		if prev, ok := t.byKey[key]; ok {
			return nil, fmt.Errorf("%w: %s.%s in zone %s used by %s and %s", ErrAmbiguousMapping,
				m.HostInterface(), m.Attribute, m.Zone, t.mappings[prev].Name, m.Name)
		}

		idx := len(t.mappings)
		t.mappings = append(t.mappings, m)
		t.bySignal[m.Signal] = idx
		t.byKey[key] = idx
		t.byProperty[prop] = idx
	}
	return t, nil
}

func keyFor(iface, attribute string, zone Zone) mappingKey {
	return mappingKey{
		iface:     strings.ToLower(iface),
		attribute: strings.ToLower(attribute),
		zone:      zone,
	}
}

// Resolve finds the mapping for a raw field. Names match case-insensitively,
// zones exactly.
func (t *Table) Resolve(iface, attribute string, zone Zone) (Mapping, bool) {
	idx, ok := t.byKey[keyFor(iface, attribute, zone)]
	if !ok {
		return Mapping{}, false
	}
	return t.mappings[idx], true
}

// Lookup returns the mapping of a signal.
func (t *Table) Lookup(sig Signal) (Mapping, bool) {
	idx, ok := t.bySignal[sig]
	if !ok {
		return Mapping{}, false
	}
	return t.mappings[idx], true
}

// ByProperty resolves a callback property name case-insensitively.
func (t *Table) ByProperty(property string) (Mapping, bool) {
	idx, ok := t.byProperty[strings.ToLower(property)]
	if !ok {
		return Mapping{}, false
	}
	return t.mappings[idx], true
}

// Mappings returns the entries in table order.
func (t *Table) Mappings() []Mapping {
	out := make([]Mapping, len(t.mappings))
	copy(out, t.mappings)
	return out
}

// String returns the logical signal name.
func (s Signal) String() string {
	if m, ok := defaultTable.Lookup(s); ok {
		return m.Name
	}
	return fmt.Sprintf("Signal(%d)", int(s))
}

var defaultTable = mustTable(DefaultMappings())

func mustTable(mappings []Mapping) *Table {
	t, err := NewTable(mappings)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultTable returns the built-in mapping table.
func DefaultTable() *Table {
	return defaultTable
}

// DefaultMappings returns the built-in signal set.
func DefaultMappings() []Mapping {
	return []Mapping{
		{Signal: SignalSteeringWheelAngle, Name: "SteeringWheelAngle", Attribute: "steeringWheelAngle", Property: "SteeringWheelAngle", Interface: "steeringWheel", Convert: SteeringWheelAngle},
		{Signal: SignalWheelBrake, Name: "WheelBrake", Attribute: "engaged", Property: "WheelBrake", Interface: "brakeOperation"},

		{Signal: SignalTirePressureLeftFront, Name: "TirePressureLeftFront", Attribute: "pressure", Property: "tirePressureLeftFront", Interface: "tire", Zone: ZoneFront | ZoneLeft, Convert: TirePressure},
		{Signal: SignalTirePressureRightFront, Name: "TirePressureRightFront", Attribute: "pressure", Property: "tirePressureRightFront", Interface: "tire", Zone: ZoneFront | ZoneRight, Convert: TirePressure},
		{Signal: SignalTirePressureLeftRear, Name: "TirePressureLeftRear", Attribute: "pressure", Property: "tirePressureLeftRear", Interface: "tire", Zone: ZoneRear | ZoneLeft, Convert: TirePressure},
		{Signal: SignalTirePressureRightRear, Name: "TirePressureRightRear", Attribute: "pressure", Property: "tirePressureRightRear", Interface: "tire", Zone: ZoneRear | ZoneRight, Convert: TirePressure},

		{Signal: SignalChildLock, Name: "ChildLock", Attribute: "lock", Property: "childLock", Interface: "childSafetyLock"},
		{Signal: SignalFrontDefrost, Name: "FrontDefrost", Attribute: "defrostWindow", Property: "frontDefrost", Interface: "defrost", Zone: ZoneFront},
		{Signal: SignalRearDefrost, Name: "RearDefrost", Attribute: "defrostWindow", Property: "rearDefrost", Interface: "defrost", Zone: ZoneRear},

		{Signal: SignalFanSpeed, Name: "FanSpeed", Attribute: "fanSpeedLevel", Property: "fanSpeed", Interface: "climateControl", Convert: ParseInteger},
		{Signal: SignalTargetTemperatureRight, Name: "TargetTemperatureRight", Attribute: "targetTemperature", Property: "targetTemperatureRight", Interface: "climateControl", Zone: ZoneFront | ZoneRight, Convert: ParseInteger},
		{Signal: SignalTargetTemperatureLeft, Name: "TargetTemperatureLeft", Attribute: "targetTemperature", Property: "targetTemperatureLeft", Interface: "climateControl", Zone: ZoneFront | ZoneLeft, Convert: ParseInteger},

		{Signal: SignalHazard, Name: "Hazard", Attribute: "hazard", Property: "hazard", Interface: "lightStatus"},
		{Signal: SignalHead, Name: "Head", Attribute: "head", Property: "frontLights", Interface: "lightStatus"},
		{Signal: SignalSeatHeaterRight, Name: "SeatHeaterRight", Attribute: "seatHeater", Property: "seatHeaterRight", Interface: "climateControl", Zone: ZoneFront | ZoneRight},
		{Signal: SignalSeatHeaterLeft, Name: "SeatHeaterLeft", Attribute: "seatHeater", Property: "seatHeaterLeft", Interface: "climateControl", Zone: ZoneFront | ZoneLeft},
		{Signal: SignalParking, Name: "Parking", Attribute: "parking", Property: "rearLights", Interface: "lightStatus"},
		{Signal: SignalAirConditioning, Name: "AirConditioning", Attribute: "airConditioning", Property: "fan", Interface: "climateControl"},
		{Signal: SignalAirRecirculation, Name: "AirRecirculation", Attribute: "airRecirculation", Property: "airRecirculation", Interface: "climateControl"},
		{Signal: SignalAirflowDirection, Name: "AirflowDirection", Attribute: "airflowDirectionW3C", Property: "airflowDirection", Interface: "climateControl", Convert: ParseInteger},

		{Signal: SignalBatteryStatus, Name: "BatteryStatus", Attribute: "chargeLevel", Property: "batteryStatus", Interface: "batteryStatus", Convert: ParseInteger},
		{Signal: SignalFullBatteryRange, Name: "FullBatteryRange", Attribute: "fullBatteryRange", Property: "fullBatteryRange", Convert: ParseInteger},
		{Signal: SignalExterior, Name: "Exterior", Attribute: "exteriorTemperature", Property: "outsideTemp", Interface: "temperature", Convert: ParseInteger},
		{Signal: SignalInterior, Name: "Interior", Attribute: "interiorTemperature", Property: "insideTemp", Interface: "temperature", Convert: ParseInteger},
		{Signal: SignalWheelAngle, Name: "WheelAngle", Attribute: "frontWheelRadius", Property: "wheelAngle", Convert: ParseInteger},
		{Signal: SignalWeather, Name: "Weather", Attribute: "weather", Property: "weather", Convert: ParseInteger},
		{Signal: SignalAvgKW, Name: "AvgKW", Attribute: "avgKW", Property: "avgKW", Convert: FixedTwo},
		{Signal: SignalVehicleSpeed, Name: "VehicleSpeed", Attribute: "speed", Property: "speed", Interface: "vehicleSpeed", Convert: KmhToMph},
		{Signal: SignalOdometer, Name: "Odometer", Attribute: "odometer", Property: "odoMeter", Interface: "odometer", Convert: ParseInteger},
		{Signal: SignalTransmissionShiftPosition, Name: "TransmissionShiftPosition", Attribute: "mode", Property: "gear", Interface: "transmission", Convert: ShiftPosition},
		{Signal: SignalRandomize, Name: "Randomize", Attribute: "randomize", Property: "randomize", Interface: "Randomize"},
		{Signal: SignalExteriorBrightness, Name: "ExteriorBrightness", Attribute: "exteriorBrightness", Property: "exteriorBrightness"},
		{Signal: SignalNightMode, Name: "NightMode", Attribute: "mode", Property: "nightMode", Interface: "nightMode"},

		// Raw bus commands, each on an interface of its own name.
		{Signal: SignalDirectionIndicationINST, Name: "DirectionIndicationINST", Attribute: "DirectionIndicationINST", Property: "DirectionIndicationINST"},
		{Signal: SignalDirectionIndicationMS, Name: "DirectionIndicationMS", Attribute: "DirectionIndicationMS", Property: "DirectionIndicationMS"},
		{Signal: SignalACCommand, Name: "ACCommand", Attribute: "ACCommand", Property: "ACCommand"},
		{Signal: SignalRecircReq, Name: "RecircReq", Attribute: "RecircReq", Property: "RecircReq"},
		{Signal: SignalFrontTSetRightCmd, Name: "FrontTSetRightCmd", Attribute: "FrontTSetRightCmd", Property: "FrontTSetRightCmd"},
		{Signal: SignalFrontTSetLeftCmd, Name: "FrontTSetLeftCmd", Attribute: "FrontTSetLeftCmd", Property: "FrontTSetLeftCmd"},
		{Signal: SignalFrontBlwrSpeedCmd, Name: "FrontBlwrSpeedCmd", Attribute: "FrontBlwrSpeedCmd", Property: "FrontBlwrSpeedCmd"},
		{Signal: SignalHeatedSeatFRRequest, Name: "HeatedSeatFRRequest", Attribute: "HeatedSeatFRRequest", Property: "HeatedSeatFRRequest"},
		{Signal: SignalHeatedSeatFLRequest, Name: "HeatedSeatFLRequest", Attribute: "HeatedSeatFLRequest", Property: "HeatedSeatFLRequest"},
		{Signal: SignalFLHSDistrCmd, Name: "FLHSDistrCmd", Attribute: "FLHSDistrCmd", Property: "FLHSDistrCmd"},
		{Signal: SignalFRHSDistrCmd, Name: "FRHSDistrCmd", Attribute: "FRHSDistrCmd", Property: "FRHSDistrCmd"},
	}
}

// Signals returns every signal of the default table in table order.
func Signals() []Signal {
	out := make([]Signal, 0, len(defaultTable.mappings))
	for _, m := range defaultTable.mappings {
		out = append(out, m.Signal)
	}
	return out
}
