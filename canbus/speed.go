package canbus

// SpeedWindowSize is the number of samples the speed is averaged over.
const SpeedWindowSize = 3

// SpeedBuffer implements a moving average for speed readings.
type SpeedBuffer struct {
	data  [SpeedWindowSize]uint16
	head  uint8
	count uint8
	sum   uint32
}

func (buf *SpeedBuffer) Reset() {
	buf.count = 0
	buf.head = 0
	buf.sum = 0
	for i := range buf.data {
		buf.data[i] = 0
	}
}

func (buf *SpeedBuffer) MovingAverage(speed uint16) float64 {
	var lastData uint16
	if buf.count >= SpeedWindowSize {
		buf.count = SpeedWindowSize
		lastData = buf.data[buf.head]
	} else {
		buf.count++
	}

	buf.data[buf.head] = speed
	buf.sum = (buf.sum - uint32(lastData)) + uint32(speed)
	average := float64(buf.sum) / float64(buf.count)
	buf.head = (buf.head + 1) % SpeedWindowSize

	return average
}
