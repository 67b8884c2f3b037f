// internal/dsp/generator.go
package dsp

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidAmplitude indicates the transmit amplitude must be in (0, 1]
	ErrInvalidAmplitude = errors.New("amplitude must be between 0.0 and 1.0")
	// ErrInvalidToneDuration indicates sequential paging needs a positive tone duration
	ErrInvalidToneDuration = errors.New("sequential tone duration must be positive")
	// ErrDuplicateFrequency indicates two paging tones share a frequency
	ErrDuplicateFrequency = errors.New("paging tones must be distinct")
)

// PagingTones is the number of tones sent to select a mobile station.
const PagingTones = 4

const (
	sineTableBits = 14
	sineTableSize = 1 << sineTableBits
	phaseShift    = 32 - sineTableBits
	ticksPerCycle = 1 << 32
)

// sineTable is one cycle of sin() indexed by the upper bits of a phase accumulator.
var sineTable = func() [sineTableSize]float32 {
	var t [sineTableSize]float32
	for i := range t {
		t[i] = float32(math.Sin(2 * math.Pi * float64(i) / sineTableSize))
	}
	return t
}()

// Mode is what the generator currently transmits.
type Mode int

const (
	// ModeSilence leaves the transmit path to the voice bridge
	ModeSilence Mode = iota
	// ModeTone sends one continuous tone
	ModeTone
	// ModePagingSimultaneous sends four paging tones at once
	ModePagingSimultaneous
	// ModePagingSequential cycles through four paging tones
	ModePagingSequential
)

func (m Mode) String() string {
	switch m {
	case ModeSilence:
		return "silence"
	case ModeTone:
		return "tone"
	case ModePagingSimultaneous:
		return "paging-simultaneous"
	case ModePagingSequential:
		return "paging-sequential"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// GeneratorConfig holds configuration for the tone generator.
type GeneratorConfig struct {
	SampleRate float64
	// Amplitude is the peak of a single tone, 1.0 = full scale
	Amplitude float64
	// Sequential selects round-robin paging instead of four simultaneous tones.
	// Decided once per channel, not switched at runtime.
	Sequential bool
	// ToneDuration is how long each tone lasts in sequential paging
	ToneDuration time.Duration
}

type oscillator struct {
	phase     uint32
	increment uint32
	amplitude float32
}

func (o *oscillator) next() float32 {
	s := sineTable[o.phase>>phaseShift] * o.amplitude
	o.phase += o.increment
	return s
}

// Generator synthesizes the transmit signal of one channel with phase
// accumulators. Phases persist across Generate calls.
type Generator struct {
	config  GeneratorConfig
	mode    Mode
	sources [PagingTones]oscillator

	// Sequential paging state
	seqIndex     int
	seqRemaining int
	seqLength    int
}

// NewGenerator creates a silent generator.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if cfg.Amplitude <= 0 || cfg.Amplitude > 1 {
		return nil, ErrInvalidAmplitude
	}
	g := &Generator{config: cfg}
	if cfg.Sequential {
		if cfg.ToneDuration <= 0 {
			return nil, ErrInvalidToneDuration
		}
		g.seqLength = max(int(cfg.ToneDuration.Seconds()*cfg.SampleRate+0.5), 1)
	}
	return g, nil
}

func (g *Generator) increment(freq float64) (uint32, error) {
	if freq <= 0 || freq >= g.config.SampleRate/2 {
		return 0, fmt.Errorf("%v Hz: %w", freq, ErrInvalidFrequency)
	}
	return uint32(freq*ticksPerCycle/g.config.SampleRate + 0.5), nil
}

// SetSilence stops transmitting tones.
func (g *Generator) SetSilence() {
	g.mode = ModeSilence
}

// SetTone transmits one continuous tone at full configured amplitude.
func (g *Generator) SetTone(freq float64) error {
	inc, err := g.increment(freq)
	if err != nil {
		return err
	}
	g.sources[0].increment = inc
	g.sources[0].amplitude = float32(g.config.Amplitude)
	g.mode = ModeTone
	return nil
}

func (g *Generator) pagingIncrements(freqs [PagingTones]float64) ([PagingTones]uint32, error) {
	var incs [PagingTones]uint32
	for i, f := range freqs {
		for j := range i {
			if freqs[j] == f {
				return incs, fmt.Errorf("paging tones %d and %d at %v Hz: %w", j+1, i+1, f, ErrDuplicateFrequency)
			}
		}
		inc, err := g.increment(f)
		if err != nil {
			return incs, fmt.Errorf("paging tone %d: %w", i+1, err)
		}
		incs[i] = inc
	}
	return incs, nil
}

// CheckPaging reports whether SetPaging would accept freqs, without
// changing the mode.
func (g *Generator) CheckPaging(freqs [PagingTones]float64) error {
	_, err := g.pagingIncrements(freqs)
	return err
}

// SetPaging transmits the four paging tones, simultaneously or in sequence
// depending on configuration. Simultaneous tones share the amplitude so the
// summed peak stays in range. On error the mode is unchanged.
func (g *Generator) SetPaging(freqs [PagingTones]float64) error {
	incs, err := g.pagingIncrements(freqs)
	if err != nil {
		return err
	}

	amp := float32(g.config.Amplitude)
	mode := ModePagingSequential
	if !g.config.Sequential {
		amp /= PagingTones
		mode = ModePagingSimultaneous
	}
	for i := range g.sources {
		g.sources[i].increment = incs[i]
		g.sources[i].amplitude = amp
	}
	g.seqIndex = 0
	g.seqRemaining = g.seqLength
	g.mode = mode
	return nil
}

// Generate fills out with the next samples of the current mode.
func (g *Generator) Generate(out []float32) {
	switch g.mode {
	case ModeTone:
		src := &g.sources[0]
		for i := range out {
			out[i] = src.next()
		}
	case ModePagingSimultaneous:
		for i := range out {
			var s float32
			for j := range g.sources {
				s += g.sources[j].next()
			}
			out[i] = s
		}
	case ModePagingSequential:
		for i := range out {
			if g.seqRemaining == 0 {
				g.seqIndex = (g.seqIndex + 1) % PagingTones
				g.seqRemaining = g.seqLength
			}
			out[i] = g.sources[g.seqIndex].next()
			g.seqRemaining--
		}
	default:
		clear(out)
	}
}

// Mode returns the current transmit mode
func (g *Generator) Mode() Mode {
	return g.mode
}

// SequenceIndex returns the paging tone currently sent in sequential mode
func (g *Generator) SequenceIndex() int {
	return g.seqIndex
}

// Config returns the current configuration
func (g *Generator) Config() GeneratorConfig {
	return g.config
}
