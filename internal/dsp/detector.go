// internal/dsp/detector.go
package dsp

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

var (
	// ErrInvalidThreshold indicates the relative tone threshold must be positive
	ErrInvalidThreshold = errors.New("tone threshold must be positive")
	// ErrInvalidMinLevel indicates the minimum level must be non-negative
	ErrInvalidMinLevel = errors.New("minimum level must be non-negative")
	// ErrInvalidDetectCount indicates at least one chunk is required to confirm a tone
	ErrInvalidDetectCount = errors.New("detect count must be at least 1")
	// ErrInvalidLostCount indicates at least one chunk is required to lose a tone
	ErrInvalidLostCount = errors.New("lost count must be at least 1")
	// ErrIdenticalTones indicates both supervisory tones have the same frequency
	ErrIdenticalTones = errors.New("supervisory tones must differ")
)

// Tone identifies one of the two supervisory tones a detector knows.
type Tone int

const (
	ToneNone Tone = iota
	ToneA
	ToneB
)

func (t Tone) String() string {
	switch t {
	case ToneA:
		return "A"
	case ToneB:
		return "B"
	default:
		return "none"
	}
}

// EventKind tells what a ToneEvent reports.
type EventKind int

const (
	// EventToneDetected is emitted once a classification held for DetectCount chunks
	EventToneDetected EventKind = iota + 1
	// EventToneLost is emitted once a confirmed tone was absent for LostCount chunks
	EventToneLost
	// EventCarrierLost is emitted when the level stayed below the carrier threshold
	EventCarrierLost
)

func (k EventKind) String() string {
	switch k {
	case EventToneDetected:
		return "tone-detected"
	case EventToneLost:
		return "tone-lost"
	case EventCarrierLost:
		return "carrier-lost"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// ToneEvent is a debounced edge reported to the call control.
type ToneEvent struct {
	Kind EventKind
	// Tone is the tone that appeared or disappeared, ToneNone for carrier loss
	Tone Tone
	// Level is the mean rectified level of the chunk that completed the edge
	Level float64
	// Quality is the tone amplitude relative to the level
	Quality float64
	// Offset is the stream time at the end of that chunk
	Offset time.Duration
}

// ToneCallback is called when the detector reports an edge.
// Called from the chunk path; must not block.
type ToneCallback func(event ToneEvent)

// DetectorConfig holds configuration for the two-tone detector.
type DetectorConfig struct {
	SampleRate float64
	// ChunkSize is the number of samples classified at once
	ChunkSize int
	// Frequencies of ToneA and ToneB in Hz
	Frequencies [2]float64
	// Threshold is the minimum tone amplitude relative to the chunk level
	Threshold float64
	// MinLevel is the minimum absolute level for any tone to be classified
	MinLevel float64
	// DetectCount is the consecutive chunks required to confirm a tone
	DetectCount int
	// LostCount is the consecutive chunks without the tone required to lose it
	LostCount int
	// Window enables a Hamming window on both bins
	Window bool
	// LossThreshold is the level below which the carrier counts as missing
	LossThreshold float64
	// LossDuration is how long the carrier must be missing to report it
	LossDuration time.Duration
}

// Detector classifies fixed chunks into {ToneA, ToneB, none} and reports
// debounced edges. Carrier loss is evaluated before classification of the
// same chunk.
type Detector struct {
	config        DetectorConfig
	goertzel      [2]*Goertzel
	loss          *LossDetector
	chunkDuration time.Duration

	buffer []float32
	offset time.Duration

	// Hysteresis state
	confirmed Tone // ToneNone while no tone is confirmed
	pending   Tone // candidate while nothing is confirmed
	count     int

	callbackPtr atomic.Pointer[ToneCallback]
}

// NewDetector creates a two-tone detector.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if cfg.Threshold <= 0 {
		return nil, ErrInvalidThreshold
	}
	if cfg.MinLevel < 0 {
		return nil, ErrInvalidMinLevel
	}
	if cfg.DetectCount < 1 {
		return nil, ErrInvalidDetectCount
	}
	if cfg.LostCount < 1 {
		return nil, ErrInvalidLostCount
	}
	if cfg.Frequencies[0] == cfg.Frequencies[1] {
		return nil, ErrIdenticalTones
	}

	d := &Detector{
		config: cfg,
		buffer: make([]float32, 0, max(cfg.ChunkSize, 0)),
	}

	for i, f := range cfg.Frequencies {
		g, err := NewGoertzel(GoertzelConfig{
			TargetFrequency: f,
			SampleRate:      cfg.SampleRate,
			BlockSize:       cfg.ChunkSize,
			Window:          cfg.Window,
		})
		if err != nil {
			return nil, fmt.Errorf("tone %s: %w", Tone(i+1), err)
		}
		d.goertzel[i] = g
	}

	loss, err := NewLossDetector(cfg.LossThreshold, cfg.LossDuration)
	if err != nil {
		return nil, err
	}
	d.loss = loss
	d.chunkDuration = time.Duration(math.Round(float64(cfg.ChunkSize) * float64(time.Second) / cfg.SampleRate))

	return d, nil
}

// SetCallback sets the callback for tone events.
func (d *Detector) SetCallback(cb ToneCallback) {
	if cb == nil {
		d.callbackPtr.Store(nil)
	} else {
		d.callbackPtr.Store(&cb)
	}
}

// Process buffers samples and classifies every complete chunk.
// No sample is evaluated twice.
func (d *Detector) Process(samples []float32) {
	chunk := d.config.ChunkSize

	// Fast path: whole chunks with nothing buffered
	for len(d.buffer) == 0 && len(samples) >= chunk {
		d.processChunk(samples[:chunk])
		samples = samples[chunk:]
	}

	for len(samples) > 0 {
		n := min(chunk-len(d.buffer), len(samples))
		d.buffer = append(d.buffer, samples[:n]...)
		samples = samples[n:]
		if len(d.buffer) == chunk {
			d.processChunk(d.buffer)
			d.buffer = d.buffer[:0]
		}
	}
}

func (d *Detector) processChunk(block []float32) {
	d.offset += d.chunkDuration
	level := Level(block)

	if d.loss.Update(level, d.chunkDuration) {
		d.emitEvent(ToneEvent{
			Kind:   EventCarrierLost,
			Tone:   ToneNone,
			Level:  level,
			Offset: d.offset,
		})
	}

	tone, quality := d.classify(block, level)
	d.updateHysteresis(tone, level, quality)
}

// classify picks the stronger tone if it stands out of the chunk level.
func (d *Detector) classify(block []float32, level float64) (Tone, float64) {
	if level <= 0 || level < d.config.MinLevel {
		return ToneNone, 0
	}

	qa := d.goertzel[0].MagnitudeNoAlloc(block) / level
	qb := d.goertzel[1].MagnitudeNoAlloc(block) / level

	tone, quality := ToneA, qa
	if qb > qa {
		tone, quality = ToneB, qb
	}
	if quality < d.config.Threshold {
		return ToneNone, quality
	}
	return tone, quality
}

// updateHysteresis debounces the per-chunk classification.
func (d *Detector) updateHysteresis(tone Tone, level, quality float64) {
	if d.confirmed == ToneNone {
		if tone == ToneNone {
			d.pending = ToneNone
			d.count = 0
			return
		}
		if tone == d.pending {
			d.count++
		} else {
			d.pending = tone
			d.count = 1
		}
		if d.count < d.config.DetectCount {
			return
		}

		d.confirmed = tone
		d.pending = ToneNone
		d.count = 0
		d.loss.Reset()
		d.emitEvent(ToneEvent{
			Kind:    EventToneDetected,
			Tone:    tone,
			Level:   level,
			Quality: quality,
			Offset:  d.offset,
		})
		return
	}

	if tone == d.confirmed {
		d.count = 0
		return
	}

	d.count++
	if d.count < d.config.LostCount {
		return
	}

	lost := d.confirmed
	d.confirmed = ToneNone
	d.count = 0
	d.emitEvent(ToneEvent{
		Kind:    EventToneLost,
		Tone:    lost,
		Level:   level,
		Quality: quality,
		Offset:  d.offset,
	})
}

func (d *Detector) emitEvent(event ToneEvent) {
	cbPtr := d.callbackPtr.Load()
	if cbPtr != nil {
		(*cbPtr)(event)
	}
}

// ToneState returns the currently confirmed tone
func (d *Detector) ToneState() Tone {
	return d.confirmed
}

// ChunkDuration returns the stream time covered by one chunk
func (d *Detector) ChunkDuration() time.Duration {
	return d.chunkDuration
}

// Reset drops buffered samples and all hysteresis state.
func (d *Detector) Reset() {
	d.buffer = d.buffer[:0]
	d.confirmed = ToneNone
	d.pending = ToneNone
	d.count = 0
	d.loss.Reset()
}

// Config returns the current configuration
func (d *Detector) Config() DetectorConfig {
	return d.config
}
