// Package livekit adapts the LiveKit client SDK to the core.Transport
// interface. Media routing, negotiation and NAT traversal stay inside the
// SDK; this adapter only maps room callbacks onto core events.
package livekit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	lksdk "github.com/livekit/server-sdk-go/v2"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/livekit/protocol/livekit"

	"github.com/voicelab/voicebridge/internal/core"
)

const (
	micSampleRate = 48000
	micChannels   = 1
)

// Transport is one client connection to a LiveKit server. A Transport is
// reusable: Close releases the current room and a later Connect opens a
// new one.
type Transport struct {
	url string

	mu      sync.Mutex
	room    *lksdk.Room
	micPub  *lksdk.LocalTrackPublication
	handler core.EventHandler
	closing bool
}

func New(url string) *Transport {
	return &Transport{url: url}
}

// Connect joins the room named inside the token's grant. Events are
// forwarded to h in the order the SDK delivers them until Close.
func (t *Transport) Connect(ctx context.Context, room, token string, h core.EventHandler) error {
	t.mu.Lock()
	if t.room != nil {
		t.mu.Unlock()
		return errors.New("transport already connected")
	}
	t.handler = h
	t.closing = false
	t.mu.Unlock()

	cb := &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				t.emit(core.Event{
					Kind:        core.EventTrackSubscribed,
					Participant: rp.Identity(),
					TrackID:     track.ID(),
					TrackKind:   track.Kind().String(),
				})
			},
			OnTrackUnsubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				t.emit(core.Event{
					Kind:        core.EventTrackUnsubscribed,
					Participant: rp.Identity(),
					TrackID:     track.ID(),
					TrackKind:   track.Kind().String(),
				})
			},
		},
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			t.emit(core.Event{Kind: core.EventParticipantConnected, Participant: rp.Identity()})
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			t.emit(core.Event{Kind: core.EventParticipantDisconnected, Participant: rp.Identity()})
		},
		OnDisconnected: func() {
			t.emit(core.Event{Kind: core.EventDisconnected})
		},
	}

	log.Info().Str("module", "livekit").Str("url", t.url).Str("room", room).Msg("connecting")
	lkRoom, err := lksdk.ConnectToRoomWithToken(t.url, token, cb, lksdk.WithAutoSubscribe(true))
	if err != nil {
		return classify(err)
	}

	t.mu.Lock()
	if t.closing {
		// Close raced the connect; release the room we just got.
		t.mu.Unlock()
		lkRoom.Disconnect()
		return errors.New("transport closed during connect")
	}
	t.room = lkRoom
	t.mu.Unlock()

	log.Info().Str("module", "livekit").Str("room", room).Msg("connected")
	return nil
}

// SetMicrophoneEnabled publishes the local microphone track on first enable
// and mutes/unmutes the publication after that.
func (t *Transport) SetMicrophoneEnabled(_ context.Context, enable bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.room == nil {
		return errors.New("transport not connected")
	}

	if !enable {
		if t.micPub != nil {
			t.micPub.SetMuted(true)
		}
		return nil
	}

	if t.micPub == nil {
		track, err := lkmedia.NewPCMLocalTrack(micSampleRate, micChannels, nil)
		if err != nil {
			return classify(fmt.Errorf("create microphone track: %w", err))
		}
		pub, err := t.room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
			Name:   "microphone",
			Source: livekit.TrackSource_MICROPHONE,
		})
		if err != nil {
			return classify(fmt.Errorf("publish microphone track: %w", err))
		}
		t.micPub = pub
		log.Info().Str("module", "livekit").Str("track_sid", pub.SID()).Msg("microphone published")
	}
	t.micPub.SetMuted(false)
	return nil
}

// Close releases the room. Safe to call repeatedly; events stop being
// forwarded as soon as Close begins.
func (t *Transport) Close() {
	t.mu.Lock()
	t.closing = true
	room := t.room
	t.room = nil
	t.micPub = nil
	t.mu.Unlock()

	if room != nil {
		room.Disconnect()
		log.Info().Str("module", "livekit").Msg("disconnected")
	}
}

func (t *Transport) emit(ev core.Event) {
	t.mu.Lock()
	h := t.handler
	closing := t.closing
	t.mu.Unlock()
	if h == nil || closing {
		return
	}
	h(ev)
}

// classify maps SDK errors onto core's failure taxonomy: credential
// refusals wrap core.ErrAuthRejected, device/permission failures wrap
// core.ErrPermissionDenied, everything else passes through as unreachable.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid token"),
		strings.Contains(msg, "permission denied to join"),
		strings.Contains(msg, "401"):
		return fmt.Errorf("%w: %v", core.ErrAuthRejected, err)
	case strings.Contains(msg, "permission"):
		return fmt.Errorf("%w: %v", core.ErrPermissionDenied, err)
	default:
		return err
	}
}
