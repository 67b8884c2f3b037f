package audio

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"unsafe"

	"github.com/gen2brain/malgo"
)

type recordingProcessor struct {
	rx  [][]float32
	err error
}

func (p *recordingProcessor) Process(rx, tx [][]float32) error {
	p.rx = nil
	for i := range rx {
		p.rx = append(p.rx, append([]float32(nil), rx[i]...))
		// Echo with a per-channel gain
		for f := range tx[i] {
			tx[i][f] = rx[i][f] * float32(int(2)<<i)
		}
	}
	return p.err
}

func float32Bytes(samples ...float32) []byte {
	out := make([]byte, 0, len(samples)*4)
	for _, s := range samples {
		b := math.Float32bits(s)
		out = append(out, byte(b), byte(b>>8), byte(b>>16), byte(b>>24))
	}
	return out
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DeviceIndex != -1 {
		t.Errorf("DefaultConfig().DeviceIndex = %d, want -1", cfg.DeviceIndex)
	}
	if cfg.SampleRate != 8000 {
		t.Errorf("DefaultConfig().SampleRate = %d, want 8000", cfg.SampleRate)
	}
	if cfg.Channels != 1 {
		t.Errorf("DefaultConfig().Channels = %d, want 1", cfg.Channels)
	}
	if cfg.BufferSize != 80 {
		t.Errorf("DefaultConfig().BufferSize = %d, want 80", cfg.BufferSize)
	}
}

func TestNew(t *testing.T) {
	cfg := Config{DeviceIndex: 2, SampleRate: 16000, Channels: 2, BufferSize: 160}
	d := New(cfg, &recordingProcessor{})

	if d.config != cfg {
		t.Errorf("d.config = %+v, want %+v", d.config, cfg)
	}
	if len(d.rx) != 2 || len(d.tx) != 2 {
		t.Errorf("buffers for %d/%d channels, want 2", len(d.rx), len(d.tx))
	}
	if d.IsRunning() {
		t.Error("IsRunning() = true for new device, want false")
	}
}

func TestDuplex_ListDevices_NotInitialized(t *testing.T) {
	d := New(DefaultConfig(), &recordingProcessor{})

	_, err := d.ListDevices(malgo.Capture)
	if err != ErrNotInitialized {
		t.Errorf("ListDevices() error = %v, want ErrNotInitialized", err)
	}
}

func TestDuplex_Start_NotInitialized(t *testing.T) {
	d := New(DefaultConfig(), &recordingProcessor{})

	if err := d.Start(context.Background()); err != ErrNotInitialized {
		t.Errorf("Start() error = %v, want ErrNotInitialized", err)
	}
}

func TestDuplex_Start_AlreadyRunning(t *testing.T) {
	d := New(DefaultConfig(), &recordingProcessor{})
	d.running.Store(true)

	if err := d.Start(context.Background()); err != ErrAlreadyRunning {
		t.Errorf("Start() when running error = %v, want ErrAlreadyRunning", err)
	}
}

func TestDuplex_Stop_NotRunning(t *testing.T) {
	d := New(DefaultConfig(), &recordingProcessor{})

	if err := d.Stop(); err != ErrNotRunning {
		t.Errorf("Stop() error = %v, want ErrNotRunning", err)
	}
}

func TestDuplex_Close_NotInitialized(t *testing.T) {
	d := New(DefaultConfig(), &recordingProcessor{})

	if err := d.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDuplex_OnData(t *testing.T) {
	proc := &recordingProcessor{}
	d := New(Config{Channels: 2}, proc)

	// Two frames of two channels
	input := float32Bytes(0.1, 0.2, 0.3, 0.4)
	output := make([]byte, len(input))
	d.onData(output, input, 2)

	if len(proc.rx) != 2 {
		t.Fatalf("processor saw %d channels, want 2", len(proc.rx))
	}
	if proc.rx[0][0] != 0.1 || proc.rx[0][1] != 0.3 {
		t.Errorf("channel 0 = %v, want [0.1 0.3]", proc.rx[0])
	}
	if proc.rx[1][0] != 0.2 || proc.rx[1][1] != 0.4 {
		t.Errorf("channel 1 = %v, want [0.2 0.4]", proc.rx[1])
	}

	out := bytesAsFloat32(output)
	want := []float32{0.1 * 2, 0.2 * 4, 0.3 * 2, 0.4 * 4}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("output[%d] = %f, want %f", i, out[i], want[i])
		}
	}
}

func TestDuplex_OnData_ProcessorError(t *testing.T) {
	proc := &recordingProcessor{err: errors.New("buffer mismatch")}
	d := New(Config{Channels: 1}, proc)

	input := float32Bytes(0.5, 0.5)
	output := float32Bytes(1, 1)
	d.onData(output, input, 2)
	d.onData(output, input, 2)

	for i, s := range bytesAsFloat32(output) {
		if s != 0 {
			t.Errorf("output[%d] = %f, want silence after error", i, s)
		}
	}

	select {
	case err := <-d.Errors():
		if err != proc.err {
			t.Errorf("Errors() = %v, want %v", err, proc.err)
		}
	default:
		t.Fatal("Errors() delivered nothing")
	}
	select {
	case err := <-d.Errors():
		t.Errorf("second error delivered: %v", err)
	default:
	}
}

func TestDuplex_OnData_GrowsBuffers(t *testing.T) {
	proc := &recordingProcessor{}
	d := New(Config{Channels: 1}, proc)

	for _, frames := range []int{4, 16, 8} {
		input := float32Bytes(make([]float32, frames)...)
		output := make([]byte, len(input))
		d.onData(output, input, uint32(frames))
		if len(proc.rx[0]) != frames {
			t.Errorf("frames = %d, processor saw %d", frames, len(proc.rx[0]))
		}
	}
}

func TestBytesAsFloat32_ZeroCopy(t *testing.T) {
	// 1.0 = 0x3F800000 in little-endian
	bytes := []byte{0x00, 0x00, 0x80, 0x3F, 0x00, 0x00, 0x80, 0xBF}

	result := bytesAsFloat32(bytes)

	if len(result) != 2 {
		t.Fatalf("length = %d, want 2", len(result))
	}
	if result[0] != 1.0 || result[1] != -1.0 {
		t.Errorf("result = %v, want [1 -1]", result)
	}
	if unsafe.Pointer(&result[0]) != unsafe.Pointer(&bytes[0]) {
		t.Error("bytesAsFloat32 copied the buffer")
	}
}

func TestBytesAsFloat32_TooSmall(t *testing.T) {
	if result := bytesAsFloat32([]byte{}); result != nil {
		t.Errorf("bytesAsFloat32(empty) = %v, want nil", result)
	}
	if result := bytesAsFloat32([]byte{0x00, 0x00, 0x80}); result != nil {
		t.Errorf("bytesAsFloat32(3 bytes) = %v, want nil", result)
	}
}

func TestInterleaveRoundTrip(t *testing.T) {
	frames := []float32{1, 2, 3, 4, 5, 6}
	chans := [][]float32{make([]float32, 3), make([]float32, 3)}

	deinterleave(frames, chans)
	if chans[0][2] != 5 || chans[1][2] != 6 {
		t.Errorf("deinterleave = %v", chans)
	}

	out := make([]float32, len(frames))
	interleave(chans, out)
	for i := range frames {
		if out[i] != frames[i] {
			t.Errorf("interleave[%d] = %f, want %f", i, out[i], frames[i])
		}
	}
}

func TestDeinterleave_ShortInput(t *testing.T) {
	chans := [][]float32{{9, 9, 9}}
	deinterleave([]float32{1}, chans)
	if chans[0][0] != 1 || chans[0][1] != 0 || chans[0][2] != 0 {
		t.Errorf("deinterleave short input = %v, want [1 0 0]", chans[0])
	}
}

func TestErrors(t *testing.T) {
	if ErrNotInitialized.Error() != "audio device not initialized" {
		t.Errorf("ErrNotInitialized message wrong")
	}
	if ErrAlreadyRunning.Error() != "audio device already running" {
		t.Errorf("ErrAlreadyRunning message wrong")
	}
	if ErrNotRunning.Error() != "audio device not running" {
		t.Errorf("ErrNotRunning message wrong")
	}
}

func TestDuplex_ConcurrentAccess(t *testing.T) {
	d := New(DefaultConfig(), &recordingProcessor{})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.IsRunning()
			_ = d.Stop()
		}()
	}
	wg.Wait()
}

func BenchmarkOnData(b *testing.B) {
	d := New(Config{Channels: 2}, &recordingProcessor{})
	input := make([]byte, 160*2*4)
	output := make([]byte, len(input))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.onData(output, input, 160)
	}
}
