package sim

import "time"

// Processor is the base station side of a loopback.
type Processor interface {
	Process(rx, tx [][]float32) error
}

// Loopback connects mobiles to the channels of a base station without a
// sound card. Mobile i listens to channel i; a nil mobile leaves the
// channel without carrier. The downlink is delayed by one chunk.
type Loopback struct {
	base       Processor
	mobiles    []*Mobile
	sampleRate float64
	chunkSize  int
	rx, tx     [][]float32
	elapsed    time.Duration
	samples    int64
}

// NewLoopback creates a loopback with one buffer pair per mobile.
func NewLoopback(base Processor, sampleRate float64, chunkSize int, mobiles ...*Mobile) *Loopback {
	l := &Loopback{
		base:       base,
		mobiles:    mobiles,
		sampleRate: sampleRate,
		chunkSize:  chunkSize,
	}
	for range mobiles {
		l.rx = append(l.rx, make([]float32, chunkSize))
		l.tx = append(l.tx, make([]float32, chunkSize))
	}
	return l
}

// Run advances the loopback by d, rounded up to whole chunks.
func (l *Loopback) Run(d time.Duration) error {
	end := l.elapsed + d
	for l.elapsed < end {
		if err := l.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step exchanges one chunk in each direction.
func (l *Loopback) Step() error {
	for i, m := range l.mobiles {
		if m == nil {
			clear(l.rx[i])
			continue
		}
		m.Process(l.tx[i], l.rx[i])
	}
	if err := l.base.Process(l.rx, l.tx); err != nil {
		return err
	}
	l.samples += int64(l.chunkSize)
	l.elapsed = time.Duration(float64(l.samples) * float64(time.Second) / l.sampleRate)
	return nil
}

// Elapsed returns the simulated time
func (l *Loopback) Elapsed() time.Duration {
	return l.elapsed
}
