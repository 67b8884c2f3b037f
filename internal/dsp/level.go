// internal/dsp/level.go
package dsp

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/blas/blas32"
)

var (
	// ErrInvalidLossThreshold indicates the carrier threshold must be non-negative
	ErrInvalidLossThreshold = errors.New("loss threshold must be non-negative")
	// ErrInvalidLossDuration indicates the loss duration must be positive
	ErrInvalidLossDuration = errors.New("loss duration must be positive")
)

// Level returns the mean rectified level of samples.
// A full-scale sine yields 2/π.
func Level(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := blas32.Asum(blas32.Vector{N: len(samples), Inc: 1, Data: samples})
	return float64(sum) / float64(len(samples))
}

// LossDetector integrates the time the received level stays below the
// carrier threshold. It fires once per elapsed loss duration.
type LossDetector struct {
	threshold float64
	duration  time.Duration
	elapsed   time.Duration
}

// NewLossDetector creates a carrier-loss detector.
func NewLossDetector(threshold float64, duration time.Duration) (*LossDetector, error) {
	if threshold < 0 {
		return nil, ErrInvalidLossThreshold
	}
	if duration <= 0 {
		return nil, ErrInvalidLossDuration
	}
	return &LossDetector{threshold: threshold, duration: duration}, nil
}

// Update accounts one chunk of the given level and duration.
// Returns true when the carrier has been missing for the full loss duration.
func (l *LossDetector) Update(level float64, chunk time.Duration) bool {
	if level >= l.threshold {
		l.elapsed = 0
		return false
	}
	l.elapsed += chunk
	if l.elapsed < l.duration {
		return false
	}
	l.elapsed = 0
	return true
}

// Reset restarts the loss timer.
func (l *LossDetector) Reset() {
	l.elapsed = 0
}

// Elapsed returns how long the carrier has currently been missing.
func (l *LossDetector) Elapsed() time.Duration {
	return l.elapsed
}
