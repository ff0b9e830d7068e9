// Package audio is the request/response sibling of the real-time path:
// it records microphone input, ships it to the processing endpoint and
// schedules playback of the synthesized reply.
package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voicelab/voicebridge/internal/core"
)

// ErrNoAudio is returned by Stop when nothing was captured.
var ErrNoAudio = errors.New("no audio captured")

const DefaultChunkInterval = 200 * time.Millisecond

// Recorder buffers chunks from a capture device on a fixed interval and
// keeps a display-only input level. One capture cycle may run at a time;
// the device is released on every Stop path.
type Recorder struct {
	dev      core.CaptureDevice
	interval time.Duration

	mu     sync.Mutex
	active bool
	chunks [][]byte
	level  float64
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRecorder(dev core.CaptureDevice, interval time.Duration) *Recorder {
	if interval <= 0 {
		interval = DefaultChunkInterval
	}
	return &Recorder{dev: dev, interval: interval}
}

// Start acquires the device and begins buffering. Fails fast with
// ErrDeviceBusy when a capture cycle is already running.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return core.ErrDeviceBusy
	}
	r.mu.Unlock()

	if err := r.dev.Open(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	r.mu.Lock()
	r.active = true
	r.chunks = nil
	r.level = 0
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	log.Info().Str("module", "audio").Dur("interval", r.interval).Msg("capture started")
	go r.loop(loopCtx, done)
	return nil
}

func (r *Recorder) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			chunk, err := r.dev.ReadChunk()
			if err != nil {
				log.Warn().Err(err).Str("module", "audio").Msg("chunk read failed")
				continue
			}
			if len(chunk) == 0 {
				continue
			}
			r.mu.Lock()
			r.chunks = append(r.chunks, chunk)
			r.level = levelOf(chunk)
			r.mu.Unlock()
		}
	}
}

// Stop ends the capture cycle, releases the device and concatenates the
// buffered chunks into one payload. Returns ErrNoAudio when nothing was
// captured; the caller must not produce conversation entries in that case.
func (r *Recorder) Stop() ([]byte, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil, ErrNoAudio
	}
	r.active = false
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	<-done
	if err := r.dev.Close(); err != nil {
		log.Warn().Err(err).Str("module", "audio").Msg("device close failed")
	}

	r.mu.Lock()
	chunks := r.chunks
	r.chunks = nil
	r.level = 0
	r.mu.Unlock()

	if len(chunks) == 0 {
		return nil, ErrNoAudio
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	blob := make([]byte, 0, total)
	for _, c := range chunks {
		blob = append(blob, c...)
	}
	log.Info().Str("module", "audio").Int("bytes", total).Int("chunks", len(chunks)).Msg("capture stopped")
	return blob, nil
}

// Level reports the latest input level in [0,1] for UI feedback only.
func (r *Recorder) Level() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level
}

// levelOf maps a 16-bit little-endian PCM chunk to a coarse 0..1 meter
// value: mean magnitude with the DC offset removed. Display metric only,
// never used for any capture decision.
func levelOf(chunk []byte) float64 {
	n := len(chunk) / 2
	if n == 0 {
		return 0
	}
	var mean float64
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(uint16(chunk[2*i]) | uint16(chunk[2*i+1])<<8)
		samples[i] = float64(s)
		mean += samples[i]
	}
	mean /= float64(n)

	var acc float64
	for _, s := range samples {
		d := s - mean
		if d < 0 {
			d = -d
		}
		acc += d
	}
	return acc / float64(n) / 32768
}
