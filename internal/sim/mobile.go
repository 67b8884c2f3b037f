// Package sim provides a simulated mobile station for loopback tests and
// the simulate command. It listens to the base station transmit path and
// feeds the receive path.
package sim

import (
	"fmt"
	"time"

	"github.com/ColonelBlimp/anetz/internal/dsp"
	"github.com/ColonelBlimp/anetz/internal/paging"
)

// Config holds configuration for a simulated mobile.
type Config struct {
	SampleRate float64
	// Number is the dialed number of the mobile, 5 or 7 digits
	Number    string
	Amplitude float64
	CallTone  float64
	GuardTone float64
	// VoiceTone stands in for speech while talking
	VoiceTone float64
	// ToneTime is how long the call tone is sent to call, answer or hang up
	ToneTime time.Duration
	// AutoAnswer answers a page after AnswerDelay
	AutoAnswer  bool
	AnswerDelay time.Duration
	// Threshold is the tone amplitude that counts as received
	Threshold float64
}

// DefaultConfig returns a mobile matching the default base station settings.
func DefaultConfig(sampleRate float64, number string) Config {
	return Config{
		SampleRate:  sampleRate,
		Number:      number,
		Amplitude:   0.5,
		CallTone:    1750,
		GuardTone:   2280,
		VoiceTone:   500,
		ToneTime:    300 * time.Millisecond,
		AutoAnswer:  true,
		AnswerDelay: 500 * time.Millisecond,
		Threshold:   0.05,
	}
}

// listenBlock is the analysis window of the receiver. Paging tones are 15 Hz
// apart and need a long block to be told apart.
const listenBlock = 200 * time.Millisecond

// pageWindow is how many blocks may lie between the first and the last of
// the four paging tones
const pageWindow = 8

type segment struct {
	freq      float64
	remaining int
}

// Mobile is a simulated mobile station. Not safe for concurrent use.
type Mobile struct {
	config Config
	freqs  [paging.Tones]float64

	tx      *dsp.Generator
	queue   []segment
	current *segment
	talking bool

	paging  [paging.Tones]*dsp.Goertzel
	guard   *dsp.Goertzel
	block   []float32
	blocks  int
	seen    [paging.Tones]int
	guardOn bool

	paged    bool
	answerIn int
}

// New creates a mobile with the carrier off.
func New(cfg Config) (*Mobile, error) {
	freqs, err := paging.Frequencies(cfg.Number)
	if err != nil {
		return nil, fmt.Errorf("mobile %s: %w", cfg.Number, err)
	}
	tx, err := dsp.NewGenerator(dsp.GeneratorConfig{SampleRate: cfg.SampleRate, Amplitude: cfg.Amplitude})
	if err != nil {
		return nil, fmt.Errorf("mobile %s: %w", cfg.Number, err)
	}

	size := int(listenBlock.Seconds() * cfg.SampleRate)
	m := &Mobile{
		config:   cfg,
		freqs:    freqs,
		tx:       tx,
		block:    make([]float32, 0, size),
		answerIn: -1,
	}
	for i := range m.seen {
		m.seen[i] = -pageWindow - 1
	}
	for i, f := range freqs {
		if m.paging[i], err = newBin(f, cfg.SampleRate, size); err != nil {
			return nil, err
		}
	}
	if m.guard, err = newBin(cfg.GuardTone, cfg.SampleRate, size); err != nil {
		return nil, err
	}
	return m, nil
}

func newBin(freq, sampleRate float64, size int) (*dsp.Goertzel, error) {
	return dsp.NewGoertzel(dsp.GoertzelConfig{
		TargetFrequency: freq,
		SampleRate:      sampleRate,
		BlockSize:       size,
		Window:          true,
	})
}

func (m *Mobile) samples(d time.Duration) int {
	return int(d.Seconds() * m.config.SampleRate)
}

// Call sends the call tone and starts talking once it ends.
func (m *Mobile) Call() {
	m.queue = append(m.queue, segment{freq: m.config.CallTone, remaining: m.samples(m.config.ToneTime)})
	m.talking = true
}

// Hangup sends the call tone and switches the carrier off once it ends.
func (m *Mobile) Hangup() {
	m.queue = append(m.queue, segment{freq: m.config.CallTone, remaining: m.samples(m.config.ToneTime)})
	m.talking = false
}

// DropCarrier switches the carrier off at once, as when the mobile leaves
// coverage.
func (m *Mobile) DropCarrier() {
	m.queue = nil
	m.current = nil
	m.talking = false
	m.answerIn = -1
}

// Process listens to down and fills up with the next transmit samples.
func (m *Mobile) Process(down, up []float32) {
	m.listen(down)
	m.transmit(up)
}

func (m *Mobile) listen(down []float32) {
	for len(down) > 0 {
		n := min(cap(m.block)-len(m.block), len(down))
		m.block = append(m.block, down[:n]...)
		down = down[n:]
		if len(m.block) == cap(m.block) {
			m.analyze()
			m.block = m.block[:0]
		}
	}
}

func (m *Mobile) analyze() {
	m.blocks++
	m.guardOn = m.guard.MagnitudeNoAlloc(m.block) >= m.config.Threshold

	all := true
	for i, bin := range m.paging {
		if bin.MagnitudeNoAlloc(m.block) >= m.config.Threshold {
			m.seen[i] = m.blocks
		}
		if m.blocks-m.seen[i] > pageWindow {
			all = false
		}
	}
	if !all || m.paged {
		return
	}
	m.paged = true
	if m.config.AutoAnswer && !m.talking {
		m.answerIn = m.samples(m.config.AnswerDelay)
	}
}

func (m *Mobile) transmit(up []float32) {
	for len(up) > 0 {
		if m.answerIn == 0 {
			m.answerIn = -1
			m.Call()
		}

		n := len(up)
		if m.answerIn > 0 {
			n = min(n, m.answerIn)
		}
		if m.current == nil && len(m.queue) > 0 {
			seg := m.queue[0]
			m.current = &seg
			m.queue = m.queue[1:]
			m.setTone(m.current.freq)
		}
		if m.current != nil {
			n = min(n, m.current.remaining)
		} else if m.talking {
			m.setTone(m.config.VoiceTone)
		} else {
			m.tx.SetSilence()
		}

		m.tx.Generate(up[:n])
		up = up[n:]
		if m.answerIn > 0 {
			m.answerIn -= n
		}
		if m.current != nil {
			m.current.remaining -= n
			if m.current.remaining <= 0 {
				m.current = nil
			}
		}
	}
}

func (m *Mobile) setTone(freq float64) {
	if freq == 0 {
		m.tx.SetSilence()
		return
	}
	// Frequencies were checked against the sample rate by the caller
	_ = m.tx.SetTone(freq)
}

// Paged reports whether the mobile has recognized its paging tones.
func (m *Mobile) Paged() bool {
	return m.paged
}

// ClearPaged forgets a recognized page so the next one is answered again.
func (m *Mobile) ClearPaged() {
	m.paged = false
	for i := range m.seen {
		m.seen[i] = m.blocks - pageWindow - 1
	}
}

// GuardTone reports whether the base station guard tone was heard in the
// last block.
func (m *Mobile) GuardTone() bool {
	return m.guardOn
}

// Talking reports whether the mobile transmits speech between tones.
func (m *Mobile) Talking() bool {
	return m.talking
}

// Sending reports whether a call tone is being sent or queued.
func (m *Mobile) Sending() bool {
	return m.current != nil || len(m.queue) > 0
}

// Frequencies returns the paging tones the mobile listens for
func (m *Mobile) Frequencies() [paging.Tones]float64 {
	return m.freqs
}
