package indicator

// Status maps callback properties to their last known normalized value.
type Status map[string]Value

// DefaultStatus returns the values shown before the vehicle reports anything.
func DefaultStatus() Status {
	return Status{
		"fanSpeed":               0,
		"targetTemperatureRight": 0,
		"targetTemperatureLeft":  0,
		"hazard":                 false,
		"frontDefrost":           false,
		"rearDefrost":            false,
		"tirePressureLeftFront":  "",
		"tirePressureRightFront": "",
		"tirePressureLeftRear":   "",
		"tirePressureRightRear":  "",
		"childLock":              false,
		"frontLights":            false,
		"rearLights":             false,
		"fan":                    false,
		"seatHeaterRight":        0,
		"seatHeaterLeft":         0,
		"airRecirculation":       false,
		"airflowDirection":       0,
		"batteryStatus":          58,
		"fullBatteryRange":       350,
		"outsideTemp":            74.2,
		"insideTemp":             68.2,
		"wheelAngle":             0,
		"weather":                1,
		"avgKW":                  "0.28",
		"speed":                  65,
		"odoMeter":               75126,
		"gear":                   "D",
		"nightMode":              false,
		"randomize":              false,
		"exteriorBrightness":     1000,
	}
}

// Clone returns an independent copy.
func (s Status) Clone() Status {
	out := make(Status, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
