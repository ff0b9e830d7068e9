package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voicelab/voicebridge/internal/core"
)

type fakeDevice struct {
	mu      sync.Mutex
	openErr error
	chunk   []byte
	opens   int
	closes  int
}

func (d *fakeDevice) Open(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return d.openErr
	}
	d.opens++
	return nil
}

func (d *fakeDevice) ReadChunk() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chunk, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func TestRecorder_PermissionDenied(t *testing.T) {
	dev := &fakeDevice{openErr: core.ErrPermissionDenied}
	r := NewRecorder(dev, time.Millisecond)
	if err := r.Start(context.Background()); !errors.Is(err, core.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestRecorder_StopWithoutChunks(t *testing.T) {
	dev := &fakeDevice{} // ReadChunk returns nil chunks
	r := NewRecorder(dev, time.Hour)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := r.Stop(); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
	if dev.closes != 1 {
		t.Errorf("device not released: closes=%d", dev.closes)
	}
}

func TestRecorder_StopNeverStarted(t *testing.T) {
	r := NewRecorder(&fakeDevice{}, time.Millisecond)
	if _, err := r.Stop(); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
}

func TestRecorder_BuffersAndConcatenates(t *testing.T) {
	dev := &fakeDevice{chunk: []byte{1, 2, 3, 4}}
	r := NewRecorder(dev, time.Millisecond)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.Level() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	blob, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if len(blob) == 0 || len(blob)%4 != 0 {
		t.Errorf("unexpected blob length %d", len(blob))
	}
	if blob[0] != 1 || blob[3] != 4 {
		t.Errorf("chunk content mangled: %v", blob[:4])
	}
}

func TestRecorder_SecondStartFailsFast(t *testing.T) {
	dev := &fakeDevice{chunk: []byte{0, 1}}
	r := NewRecorder(dev, time.Millisecond)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	if err := r.Start(context.Background()); !errors.Is(err, core.ErrDeviceBusy) {
		t.Fatalf("expected ErrDeviceBusy, got %v", err)
	}
}

func TestLevelOf(t *testing.T) {
	if got := levelOf(nil); got != 0 {
		t.Errorf("empty chunk level = %f", got)
	}
	// Constant DC signal should read near zero once the offset is removed.
	dc := make([]byte, 64)
	for i := 0; i < len(dc); i += 2 {
		dc[i] = 0x00
		dc[i+1] = 0x10
	}
	if got := levelOf(dc); got != 0 {
		t.Errorf("DC chunk level = %f, want 0", got)
	}
	// Alternating full-scale signal should read well above zero.
	loud := make([]byte, 64)
	for i := 0; i < len(loud); i += 4 {
		loud[i] = 0xFF
		loud[i+1] = 0x7F // +32767
		loud[i+2] = 0x01
		loud[i+3] = 0x80 // -32767
	}
	if got := levelOf(loud); got < 0.5 {
		t.Errorf("loud chunk level = %f, want >= 0.5", got)
	}
}
