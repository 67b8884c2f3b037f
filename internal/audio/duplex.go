// internal/audio/duplex.go
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gen2brain/malgo"
)

var (
	ErrNotInitialized = errors.New("audio device not initialized")
	ErrAlreadyRunning = errors.New("audio device already running")
	ErrNotRunning     = errors.New("audio device not running")
)

// Config holds audio device configuration
type Config struct {
	DeviceIndex int    // -1 for default device, same index for capture and playback
	SampleRate  uint32 // e.g., 8000
	Channels    uint32 // one per radio channel
	BufferSize  uint32 // frames per callback
}

// DefaultConfig returns defaults for one radio channel at 8 kHz
func DefaultConfig() Config {
	return Config{
		DeviceIndex: -1,
		SampleRate:  8000,
		Channels:    1,
		BufferSize:  80,
	}
}

// Processor consumes one period of received audio and fills the transmit
// buffers. Index i of rx and tx is device channel i. Called from the audio
// thread; must not block.
type Processor interface {
	Process(rx, tx [][]float32) error
}

// Duplex runs a full-duplex sound card: the receiver output feeds the
// capture side, the playback side feeds the transmitter.
type Duplex struct {
	config  Config
	proc    Processor
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	running atomic.Bool
	mu      sync.Mutex

	// Per-channel buffers reused across callbacks
	rx, tx [][]float32

	errs chan error
}

// New creates a new duplex device instance
func New(cfg Config, proc Processor) *Duplex {
	d := &Duplex{
		config: cfg,
		proc:   proc,
		rx:     make([][]float32, cfg.Channels),
		tx:     make([][]float32, cfg.Channels),
		errs:   make(chan error, 1),
	}
	return d
}

// Init initializes the audio backend
func (d *Duplex) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	d.ctx = ctx
	return nil
}

// ListDevices returns available devices of the given kind
func (d *Duplex) ListDevices(kind malgo.DeviceType) ([]malgo.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listDevices(kind)
}

func (d *Duplex) listDevices(kind malgo.DeviceType) ([]malgo.DeviceInfo, error) {
	if d.ctx == nil {
		return nil, ErrNotInitialized
	}
	infos, err := d.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	return infos, nil
}

func (d *Duplex) deviceID(kind malgo.DeviceType) (unsafe.Pointer, error) {
	if d.config.DeviceIndex < 0 {
		return nil, nil
	}
	devices, err := d.listDevices(kind)
	if err != nil {
		return nil, err
	}
	if d.config.DeviceIndex >= len(devices) {
		return nil, fmt.Errorf("device index %d out of range (have %d %v devices)",
			d.config.DeviceIndex, len(devices), kind)
	}
	return devices[d.config.DeviceIndex].ID.Pointer(), nil
}

// Start begins duplex streaming. The device stops when ctx is cancelled.
func (d *Duplex) Start(ctx context.Context) error {
	if d.running.Load() {
		return ErrAlreadyRunning
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return ErrNotInitialized
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.SampleRate = d.config.SampleRate
	deviceConfig.PeriodSizeInFrames = d.config.BufferSize
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = d.config.Channels
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = d.config.Channels

	var err error
	if deviceConfig.Capture.DeviceID, err = d.deviceID(malgo.Capture); err != nil {
		return err
	}
	if deviceConfig.Playback.DeviceID, err = d.deviceID(malgo.Playback); err != nil {
		return err
	}

	device, err := malgo.InitDevice(d.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: d.onData,
	})
	if err != nil {
		return fmt.Errorf("init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start device: %w", err)
	}

	d.device = device
	d.running.Store(true)

	go func() {
		<-ctx.Done()
		_ = d.Stop()
	}()

	return nil
}

// onData is the malgo callback: deinterleave, process, interleave.
func (d *Duplex) onData(output, input []byte, frameCount uint32) {
	frames := int(frameCount)
	in := bytesAsFloat32(input)
	out := bytesAsFloat32(output)

	d.resize(frames)
	deinterleave(in, d.rx)
	if err := d.proc.Process(d.rx, d.tx); err != nil {
		d.report(err)
		clear(out)
		return
	}
	interleave(d.tx, out)
}

func (d *Duplex) resize(frames int) {
	for i := range d.rx {
		if cap(d.rx[i]) < frames {
			d.rx[i] = make([]float32, frames)
			d.tx[i] = make([]float32, frames)
		}
		d.rx[i] = d.rx[i][:frames]
		d.tx[i] = d.tx[i][:frames]
	}
}

// report keeps the first processing error; later ones are dropped.
func (d *Duplex) report(err error) {
	select {
	case d.errs <- err:
	default:
	}
}

// Errors delivers the first error returned by the processor
func (d *Duplex) Errors() <-chan error {
	return d.errs
}

// Stop stops streaming
func (d *Duplex) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return ErrNotRunning
	}
	if d.device != nil {
		_ = d.device.Stop()
		d.device.Uninit()
		d.device = nil
	}
	d.running.Store(false)
	return nil
}

// Close releases all audio resources
func (d *Duplex) Close() error {
	if d.running.Load() {
		_ = d.Stop()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil {
		if err := d.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninit context: %w", err)
		}
		d.ctx.Free()
		d.ctx = nil
	}
	return nil
}

// IsRunning returns true if streaming is active
func (d *Duplex) IsRunning() bool {
	return d.running.Load()
}

// bytesAsFloat32 reinterprets a little-endian F32 buffer without copying.
// Returns nil for buffers shorter than one sample.
func bytesAsFloat32(data []byte) []float32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// deinterleave splits frames of len(chans) samples into one slice per channel.
func deinterleave(in []float32, chans [][]float32) {
	n := len(chans)
	if n == 0 {
		return
	}
	for i := range chans {
		for f := range chans[i] {
			idx := f*n + i
			if idx < len(in) {
				chans[i][f] = in[idx]
			} else {
				chans[i][f] = 0
			}
		}
	}
}

// interleave writes one slice per channel into frames.
func interleave(chans [][]float32, out []float32) {
	n := len(chans)
	if n == 0 {
		return
	}
	for i := range chans {
		for f, s := range chans[i] {
			idx := f*n + i
			if idx >= len(out) {
				break
			}
			out[idx] = s
		}
	}
}
