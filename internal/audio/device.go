package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/voicelab/voicebridge/internal/core"
)

// FileDevice adapts a file (a pre-recorded WAV, or a pipe fed by an OS
// capture tool) to the CaptureDevice interface. Only one capture cycle may
// hold the device at a time.
type FileDevice struct {
	path      string
	chunkSize int

	mu sync.Mutex
	rc io.ReadCloser
}

func NewFileDevice(path string, chunkSize int) *FileDevice {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	return &FileDevice{path: path, chunkSize: chunkSize}
}

func (d *FileDevice) Open(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rc != nil {
		return core.ErrDeviceBusy
	}
	f, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrDeviceUnavailable, err)
	}
	d.rc = f
	return nil
}

// ReadChunk returns the next chunk, or (nil, nil) once the source is
// drained.
func (d *FileDevice) ReadChunk() ([]byte, error) {
	d.mu.Lock()
	rc := d.rc
	d.mu.Unlock()
	if rc == nil {
		return nil, core.ErrDeviceUnavailable
	}

	buf := make([]byte, d.chunkSize)
	n, err := rc.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == io.EOF {
		return nil, nil
	}
	return nil, err
}

func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rc == nil {
		return nil
	}
	err := d.rc.Close()
	d.rc = nil
	return err
}
