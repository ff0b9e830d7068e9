package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/voicelab/voicebridge/internal/core"
)

func TestFileDevice_MissingFile(t *testing.T) {
	d := NewFileDevice("/nonexistent/input.wav", 8)
	if err := d.Open(context.Background()); !errors.Is(err, core.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestFileDevice_ReadsAndDrains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.wav")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewFileDevice(path, 4)
	if err := d.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer d.Close()

	if err := d.Open(context.Background()); !errors.Is(err, core.ErrDeviceBusy) {
		t.Fatalf("expected ErrDeviceBusy on double open, got %v", err)
	}

	var got []byte
	for {
		chunk, err := d.ReadChunk()
		if err != nil {
			t.Fatalf("ReadChunk failed: %v", err)
		}
		if chunk == nil {
			break
		}
		got = append(got, chunk...)
	}
	if string(got) != "0123456789" {
		t.Errorf("drained %q", got)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
