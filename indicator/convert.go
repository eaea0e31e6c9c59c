package indicator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// ConvertFunc normalizes a raw host value. It must be pure.
type ConvertFunc func(raw Value) (Value, error)

const kmhToMphFactor = 0.621371

// Tire pressure inside this open range is reported as "OK".
const (
	tirePressureLow  = 180.0
	tirePressureHigh = 220.0
)

// ParseInteger truncates a numeric or numeric-string value to an int.
func ParseInteger(raw Value) (Value, error) {
	f, err := toFloat(raw)
	if err != nil {
		return nil, err
	}
	return int(math.Trunc(f)), nil
}

// KmhToMph converts an integer km/h reading to whole mph.
func KmhToMph(raw Value) (Value, error) {
	v, err := ParseInteger(raw)
	if err != nil {
		return nil, err
	}
	return int(math.Floor(float64(v.(int))*kmhToMphFactor + 0.5)), nil
}

// FixedTwo renders a number with two decimals.
func FixedTwo(raw Value) (Value, error) {
	f, err := toFloat(raw)
	if err != nil {
		return nil, err
	}
	return strconv.FormatFloat(f, 'f', 2, 64), nil
}

// TirePressure renders a pressure with two decimals, or "OK" when it lies
// inside the nominal band.
func TirePressure(raw Value) (Value, error) {
	f, err := toFloat(raw)
	if err != nil {
		return nil, err
	}
	fixed := strconv.FormatFloat(f, 'f', 2, 64)
	rounded, _ := strconv.ParseFloat(fixed, 64)
	if rounded > tirePressureLow && rounded < tirePressureHigh {
		return "OK", nil
	}
	return fixed, nil
}

// SteeringWheelAngle maps a 0..360 game-controller reading onto -30..30.
func SteeringWheelAngle(raw Value) (Value, error) {
	v, err := ParseInteger(raw)
	if err != nil {
		return nil, err
	}
	angle := float64(v.(int))
	switch {
	case angle > 0 && angle <= 180:
		return angle/6 - 30, nil
	case angle > 180 && angle <= 360:
		return (angle - 179) / 6, nil
	case angle == 0:
		return -30.0, nil
	}
	return 0.0, nil
}

// ShiftPosition maps a transmission mode onto the letter shown on the
// dashboard. Unknown modes show as drive.
func ShiftPosition(raw Value) (Value, error) {
	s, err := cast.ToStringE(raw)
	if err != nil {
		return nil, fmt.Errorf("shift position: %w", err)
	}
	switch strings.ToLower(s) {
	case "park":
		return "P", nil
	case "reverse":
		return "R", nil
	case "neutral":
		return "N", nil
	case "low":
		return "L", nil
	case "drive":
		return "D", nil
	case "overdrive":
		return "OD", nil
	}
	return "D", nil
}

func toFloat(raw Value) (float64, error) {
	if s, ok := raw.(string); ok {
		raw = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, fmt.Errorf("not a number: %v", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %v", raw)
	}
	return f, nil
}
