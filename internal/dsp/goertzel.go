// internal/dsp/goertzel.go
package dsp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrInvalidBlockSize indicates block size must be positive
	ErrInvalidBlockSize = errors.New("block size must be positive")
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidFrequency indicates frequency must be positive and below Nyquist
	ErrInvalidFrequency = errors.New("target frequency must be positive and less than Nyquist frequency")
	// ErrInsufficientSamples indicates not enough samples for the configured block size
	ErrInsufficientSamples = errors.New("insufficient samples for block size")
)

// GoertzelConfig holds configuration for one Goertzel bin.
type GoertzelConfig struct {
	// TargetFrequency is the frequency to measure in Hz
	TargetFrequency float64
	// SampleRate is the audio sample rate in Hz
	SampleRate float64
	// BlockSize is the number of samples per evaluation, one chunk
	BlockSize int
	// Window applies a Hamming window. Narrows the main lobe leakage into
	// the neighbouring tone at the cost of a wider bin.
	Window bool
}

// Goertzel computes the amplitude of a single DFT bin over a fixed block.
// The result is normalized so that a full-scale sine at the target
// frequency yields 1.0, with or without windowing.
type Goertzel struct {
	config      GoertzelConfig
	coefficient float64   // 2 * cos(2π * f / fs)
	normalizer  float64   // 2 / sum(window)
	window      []float64 // nil when windowing is off
}

// NewGoertzel creates a new Goertzel bin with the given configuration.
func NewGoertzel(cfg GoertzelConfig) (*Goertzel, error) {
	if cfg.BlockSize <= 0 {
		return nil, ErrInvalidBlockSize
	}
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	nyquist := cfg.SampleRate / 2.0
	if cfg.TargetFrequency <= 0 || cfg.TargetFrequency >= nyquist {
		return nil, ErrInvalidFrequency
	}

	// k is deliberately not rounded to an integer bin; that would move the
	// filter centre away from the tone.
	omega := 2.0 * math.Pi * cfg.TargetFrequency / cfg.SampleRate

	g := &Goertzel{
		config:      cfg,
		coefficient: 2.0 * math.Cos(omega),
		normalizer:  2.0 / float64(cfg.BlockSize),
	}

	if cfg.Window && cfg.BlockSize > 1 {
		g.window = make([]float64, cfg.BlockSize)
		floats.AddConst(1, g.window)
		window.Hamming(g.window)
		g.normalizer = 2.0 / floats.Sum(g.window)
	}

	return g, nil
}

// Magnitude computes the amplitude of the target frequency in samples.
// The samples slice must have at least BlockSize elements.
func (g *Goertzel) Magnitude(samples []float32) (float64, error) {
	if len(samples) < g.config.BlockSize {
		return 0, ErrInsufficientSamples
	}

	return g.computeMagnitude(samples), nil
}

// MagnitudeNoAlloc computes magnitude without bounds checking for the chunk path.
// Caller MUST ensure samples has at least BlockSize elements.
func (g *Goertzel) MagnitudeNoAlloc(samples []float32) float64 {
	return g.computeMagnitude(samples)
}

func (g *Goertzel) computeMagnitude(samples []float32) float64 {
	var s0, s1, s2 float64
	blockSize := g.config.BlockSize
	coeff := g.coefficient

	if g.window == nil {
		for i := 0; i < blockSize; i++ {
			s0 = float64(samples[i]) + coeff*s1 - s2
			s2 = s1
			s1 = s0
		}
	} else {
		w := g.window
		for i := 0; i < blockSize; i++ {
			s0 = float64(samples[i])*w[i] + coeff*s1 - s2
			s2 = s1
			s1 = s0
		}
	}

	power := s1*s1 + s2*s2 - coeff*s1*s2

	// Rounding can push a silent block slightly negative
	if power < 0 {
		power = 0
	}

	return math.Sqrt(power) * g.normalizer
}

// Config returns the current configuration
func (g *Goertzel) Config() GoertzelConfig {
	return g.config
}

// Coefficient returns the pre-computed Goertzel coefficient
func (g *Goertzel) Coefficient() float64 {
	return g.coefficient
}

// BlockSize returns the configured block size
func (g *Goertzel) BlockSize() int {
	return g.config.BlockSize
}
