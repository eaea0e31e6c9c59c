package canbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dashboard-service/indicator"

	"github.com/brutella/can"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	mu     sync.Mutex
	frames []can.Frame
	err    error
}

func (b *fakeBus) Publish(frame can.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.frames = append(b.frames, frame)
	return nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []indicator.Event
}

func (r *eventRecorder) handle(ev indicator.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []indicator.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]indicator.Event(nil), r.events...)
}

func TestSpeedBufferMovingAverage(t *testing.T) {
	var buf SpeedBuffer

	tests := []struct {
		input    uint16
		expected float64
	}{
		{30, 30},
		{60, 45},
		{90, 60},
		{120, 90},
		{0, 70},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, buf.MovingAverage(tt.input))
	}

	buf.Reset()
	assert.Equal(t, float64(50), buf.MovingAverage(50))
}

func TestVehicleSpeedFrameSmoothed(t *testing.T) {
	h := NewHost(indicator.NopLogger{}, nil)

	require.NoError(t, h.HandleFrame(packFrame(VehicleSpeedFrameID, []byte{0x00, 100})))
	require.NoError(t, h.HandleFrame(packFrame(VehicleSpeedFrameID, []byte{0x00, 110})))

	ev, err := h.Get(context.Background(), "vehicleSpeed", indicator.ZoneNone)
	require.NoError(t, err)
	assert.Equal(t, 105, ev["speed"])

	require.NoError(t, h.HandleFrame(packFrame(VehicleSpeedFrameID, []byte{0x00, 0x00})))
	ev, err = h.Get(context.Background(), "vehicleSpeed", indicator.ZoneNone)
	require.NoError(t, err)
	assert.Equal(t, 0, ev["speed"])
}

func TestFrameDecoding(t *testing.T) {
	tests := []struct {
		name  string
		frame can.Frame
		iface string
		zone  indicator.Zone
		want  map[string]indicator.Value
	}{
		{
			name:  "odometer",
			frame: packFrame(OdometerFrameID, []byte{0x00, 0x01, 0x25, 0x76}),
			iface: "odometer",
			want:  map[string]indicator.Value{"odometer": 75126},
		},
		{
			name:  "transmission",
			frame: packFrame(TransmissionFrameID, []byte{1}),
			iface: "transmission",
			want:  map[string]indicator.Value{"mode": "reverse"},
		},
		{
			name:  "steering",
			frame: packFrame(SteeringFrameID, []byte{0x07, 0x08, 0x01}),
			iface: "steeringWheel",
			want:  map[string]indicator.Value{"steeringWheelAngle": 180.0},
		},
		{
			name:  "brake",
			frame: packFrame(SteeringFrameID, []byte{0x07, 0x08, 0x01}),
			iface: "brakeOperation",
			want:  map[string]indicator.Value{"engaged": true},
		},
		{
			name:  "lights",
			frame: packFrame(LightStatusFrameID, []byte{0x05}),
			iface: "lightStatus",
			want:  map[string]indicator.Value{"hazard": true, "head": false, "parking": true},
		},
		{
			name:  "battery",
			frame: packFrame(BatteryFrameID, []byte{58, 0x01, 0x5E}),
			iface: "batteryStatus",
			want:  map[string]indicator.Value{"chargeLevel": 58},
		},
		{
			name:  "full battery range",
			frame: packFrame(BatteryFrameID, []byte{58, 0x01, 0x5E}),
			iface: "FullBatteryRange",
			want:  map[string]indicator.Value{"fullBatteryRange": 350},
		},
		{
			name:  "temperature",
			frame: packFrame(TemperatureFrameID, []byte{0xFF, 0x9C, 0x00, 0xD2}),
			iface: "temperature",
			want:  map[string]indicator.Value{"exteriorTemperature": -10.0, "interiorTemperature": 21.0},
		},
		{
			name:  "tire rear right",
			frame: packFrame(TirePressureFrameID, []byte{0, 200, 0, 201, 0, 202, 0, 230}),
			iface: "tire",
			zone:  indicator.ZoneRear | indicator.ZoneRight,
			want:  map[string]indicator.Value{"pressure": 230.0},
		},
		{
			name:  "climate",
			frame: packFrame(ClimateFrameID, []byte{4, 0x03, 2}),
			iface: "climateControl",
			want: map[string]indicator.Value{
				"fanSpeedLevel": 4, "airConditioning": true, "airRecirculation": true, "airflowDirectionW3C": 2,
			},
		},
		{
			name:  "climate zone",
			frame: packFrame(ClimateZoneFrameID, []byte{byte(indicator.ZoneFront | indicator.ZoneLeft), 22, 2}),
			iface: "climateControl",
			zone:  indicator.ZoneFront | indicator.ZoneLeft,
			want:  map[string]indicator.Value{"targetTemperature": 22, "seatHeater": 2},
		},
		{
			name:  "rear defrost",
			frame: packFrame(DefrostFrameID, []byte{0x02}),
			iface: "defrost",
			zone:  indicator.ZoneRear,
			want:  map[string]indicator.Value{"defrostWindow": true},
		},
		{
			name:  "night mode",
			frame: packFrame(CabinFrameID, []byte{0x02}),
			iface: "nightMode",
			want:  map[string]indicator.Value{"mode": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHost(indicator.NopLogger{}, nil)
			require.NoError(t, h.HandleFrame(tt.frame))

			ev, err := h.Get(context.Background(), tt.iface, tt.zone)
			require.NoError(t, err)
			for k, v := range tt.want {
				assert.Equal(t, v, ev[k], k)
			}
		})
	}
}

func TestHandleFrameErrors(t *testing.T) {
	h := NewHost(indicator.NopLogger{}, nil)

	assert.NoError(t, h.HandleFrame(packFrame(0x7FF, []byte{1, 2, 3})))
	assert.Error(t, h.HandleFrame(packFrame(OdometerFrameID, []byte{1})))
	assert.Error(t, h.HandleFrame(packFrame(TransmissionFrameID, []byte{9})))
	assert.Error(t, h.HandleFrame(packFrame(ClimateZoneFrameID, []byte{0, 22, 1})))

	_, err := h.Get(context.Background(), "transmission", indicator.ZoneNone)
	assert.ErrorIs(t, err, indicator.ErrNoData)
}

func TestHandleFrameOversizedLength(t *testing.T) {
	h := NewHost(indicator.NopLogger{}, nil)

	frame := packFrame(CabinFrameID, []byte{0x01})
	frame.Length = 15

	assert.NotPanics(t, func() { h.Handle(frame) })
	assert.Len(t, payload(frame), 8)

	ev, err := h.Get(context.Background(), "childSafetyLock", indicator.ZoneNone)
	require.NoError(t, err)
	assert.Equal(t, true, ev["lock"])
}

func TestSubscribeReceivesFrameFields(t *testing.T) {
	h := NewHost(indicator.NopLogger{}, nil)
	rec := &eventRecorder{}

	require.NoError(t, h.Subscribe("defrost", indicator.ZoneFront, rec.handle))
	assert.Error(t, h.Subscribe("defrost", indicator.ZoneFront, rec.handle))

	h.Handle(packFrame(DefrostFrameID, []byte{0x01}))

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, "defrost", events[0].InterfaceName())
	assert.Equal(t, true, events[0]["defrostWindow"])
	zone, err := events[0].Zone()
	require.NoError(t, err)
	assert.Equal(t, indicator.ZoneFront, zone)

	require.NoError(t, h.Unsubscribe("defrost", indicator.ZoneFront))
	assert.Error(t, h.Unsubscribe("defrost", indicator.ZoneFront))

	h.Handle(packFrame(DefrostFrameID, []byte{0x00}))
	assert.Len(t, rec.all(), 1)
}

func TestUnsupportedInterface(t *testing.T) {
	h := NewHost(indicator.NopLogger{}, &fakeBus{})

	assert.False(t, h.Supports("Randomize"))
	assert.True(t, h.Supports("CLIMATECONTROL"))

	_, err := h.Get(context.Background(), "Randomize", indicator.ZoneNone)
	assert.ErrorIs(t, err, indicator.ErrUnsupportedInterface)
	assert.ErrorIs(t, h.Subscribe("Randomize", indicator.ZoneNone, func(indicator.Event) {}), indicator.ErrUnsupportedInterface)
	assert.ErrorIs(t, h.Set(context.Background(), "Randomize", nil, indicator.ZoneNone), indicator.ErrUnsupportedInterface)
}

func TestSetPublishesCommandFrames(t *testing.T) {
	bus := &fakeBus{}
	h := NewHost(indicator.NopLogger{}, bus)

	zone := indicator.ZoneFront | indicator.ZoneRight
	err := h.Set(context.Background(), "climateControl",
		map[string]indicator.Value{"targetTemperature": "22", "seatHeater": true}, zone)
	require.NoError(t, err)

	require.Len(t, bus.frames, 2)
	assert.Equal(t, uint32(CommandFrameID), bus.frames[0].ID)
	assert.Equal(t, uint8(4), bus.frames[0].Length)
	assert.Equal(t, []byte{CmdSeatHeater, byte(zone), 0x00, 0x01}, bus.frames[0].Data[:4])
	assert.Equal(t, []byte{CmdTargetTemperature, byte(zone), 0x00, 22}, bus.frames[1].Data[:4])
}

func TestSetNegativeValue(t *testing.T) {
	frames, err := encodeCommands("climateControl", map[string]indicator.Value{"targetTemperature": -2}, indicator.ZoneNone)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{CmdTargetTemperature, 0x00, 0xFF, 0xFE}, frames[0].Data[:4])
}

func TestSetErrors(t *testing.T) {
	bus := &fakeBus{}
	h := NewHost(indicator.NopLogger{}, bus)

	err := h.Set(context.Background(), "odometer", map[string]indicator.Value{"odometer": 1}, indicator.ZoneNone)
	assert.ErrorIs(t, err, ErrReadOnly)

	err = h.Set(context.Background(), "climateControl", map[string]indicator.Value{"fanSpeedLevel": "fast"}, indicator.ZoneNone)
	assert.Error(t, err)

	bus.err = errors.New("bus down")
	err = h.Set(context.Background(), "lightStatus", map[string]indicator.Value{"hazard": true}, indicator.ZoneNone)
	assert.Error(t, err)

	noBus := NewHost(indicator.NopLogger{}, nil)
	err = noBus.Set(context.Background(), "lightStatus", map[string]indicator.Value{"hazard": true}, indicator.ZoneNone)
	assert.Error(t, err)
}

func TestIsDataStale(t *testing.T) {
	h := NewHost(indicator.NopLogger{}, nil)
	assert.False(t, h.IsDataStale())

	h.mu.Lock()
	h.lastFrameTime = time.Now().Add(-3 * time.Second)
	h.mu.Unlock()
	assert.True(t, h.IsDataStale())

	require.NoError(t, h.HandleFrame(packFrame(CabinFrameID, []byte{0})))
	assert.False(t, h.IsDataStale())
}

func TestHostDrivesIndicator(t *testing.T) {
	h := NewHost(indicator.NopLogger{}, nil)
	c := indicator.New(h, indicator.Config{})

	var got []indicator.Value
	var mu sync.Mutex
	c.AddListener(indicator.Handlers{
		indicator.SignalTirePressureRightRear: func(newValue, _ indicator.Value) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, newValue)
		},
	})

	require.NoError(t, h.HandleFrame(packFrame(TirePressureFrameID, []byte{0, 200, 0, 201, 0, 202, 0, 200})))
	require.NoError(t, h.HandleFrame(packFrame(TirePressureFrameID, []byte{0, 200, 0, 201, 0, 202, 0, 230})))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []indicator.Value{"OK", "230.00"}, got)
}
