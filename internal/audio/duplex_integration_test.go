//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/gen2brain/malgo"
)

// These tests require actual audio hardware and are skipped by default.
// Run with: go test -tags=integration ./internal/audio

type silence struct{ calls int }

func (s *silence) Process(rx, tx [][]float32) error {
	s.calls++
	for i := range tx {
		clear(tx[i])
	}
	return nil
}

func TestDuplex_ListDevices_Integration(t *testing.T) {
	d := New(DefaultConfig(), &silence{})
	defer d.Close()

	if err := d.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	for _, kind := range []malgo.DeviceType{malgo.Capture, malgo.Playback} {
		devices, err := d.ListDevices(kind)
		if err != nil {
			t.Fatalf("ListDevices(%v) error = %v", kind, err)
		}
		for i, dev := range devices {
			t.Logf("%v device %d: %s", kind, i, dev.Name())
		}
	}
}

func TestDuplex_StartStop_Integration(t *testing.T) {
	proc := &silence{}
	d := New(DefaultConfig(), proc)
	defer d.Close()

	if err := d.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !d.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}

	time.Sleep(200 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	if d.IsRunning() {
		t.Error("IsRunning() = true after context cancellation")
	}
}
