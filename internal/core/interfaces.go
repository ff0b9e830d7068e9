// Package core defines the interfaces the session manager and audio
// adapter are written against. Adapters own the underlying SDK or device
// handles; core never touches transport resources directly.
package core

import (
	"context"
	"errors"
)

// Shared failure modes surfaced by adapters. Callers match with errors.Is.
var (
	ErrAuthRejected      = errors.New("authorization rejected")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrDeviceBusy        = errors.New("capture device already held")
)

// Transport is one live connection to the real-time server. The media
// plumbing (routing, negotiation, NAT traversal) is fully delegated to the
// implementation; the session manager only sees the event stream.
//
// Connect errors wrapping ErrAuthRejected mean the credential was refused;
// anything else means the server was unreachable. Close releases the
// connection and is safe to call on an already-closed transport.
type Transport interface {
	Connect(ctx context.Context, room, token string, h EventHandler) error
	SetMicrophoneEnabled(ctx context.Context, enable bool) error
	Close()
}

// TokenSource mints a join credential scoped to (room, identity).
type TokenSource interface {
	Token(ctx context.Context, room, identity string) (string, error)
}

// TrackSink is the playback end of a subscribed remote track. Exactly one
// sink exists per (participant, track) binding; Detach releases it.
type TrackSink interface {
	Attach(participant, trackID string) error
	Detach()
}

// CaptureDevice abstracts microphone access for the REST capture path.
// Open fails fast with ErrDeviceBusy when the device is already held.
type CaptureDevice interface {
	Open(ctx context.Context) error
	ReadChunk() ([]byte, error)
	Close() error
}

// Player schedules playback of a synthesized reply by URL.
type Player interface {
	Play(url string) error
}
