package indicator

// MovingAverage is the simple mean of the last n closes, kept in a ring so
// Add is O(1).
type MovingAverage struct {
	ring   []float64
	next   int
	filled int
	sum    float64
}

// NewMovingAverage creates an average over n closes (at least 1).
func NewMovingAverage(n int) *MovingAverage {
	return &MovingAverage{ring: make([]float64, max(n, 1))}
}

// Add pushes a close, dropping the oldest once the window is full.
func (m *MovingAverage) Add(close float64) {
	if m.filled == len(m.ring) {
		m.sum -= m.ring[m.next]
	} else {
		m.filled++
	}
	m.ring[m.next] = close
	m.sum += close
	m.next = (m.next + 1) % len(m.ring)
}

// Mean returns the average of the window; ok is false until it is full.
func (m *MovingAverage) Mean() (mean float64, ok bool) {
	if m.filled < len(m.ring) {
		return 0, false
	}
	return m.sum / float64(len(m.ring)), true
}
