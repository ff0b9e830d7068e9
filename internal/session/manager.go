// Package session owns the lifecycle of one real-time voice session:
// token acquisition, connect, track bookkeeping, disconnect and the derived
// connection-state signal.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voicelab/voicebridge/internal/convo"
	"github.com/voicelab/voicebridge/internal/core"
	"github.com/voicelab/voicebridge/internal/domain"
)

// Config carries the manager's collaborators and policy knobs.
type Config struct {
	// Tokens is the live token provider. Optional when every Connect call
	// passes a pre-resolved token.
	Tokens core.TokenSource

	// FallbackToken is the pre-configured static credential used when the
	// provider fails. Empty disables the fallback: fetch failures then fail
	// the connect attempt.
	FallbackToken string

	// TokenTimeout bounds the provider call. Defaults to 5s.
	TokenTimeout time.Duration

	// NewSink builds the playback sink for each subscribed remote track.
	NewSink func() core.TrackSink
}

type binding struct {
	participant string
	trackID     string
	kind        string
	sink        core.TrackSink
}

// Manager coordinates one session over a Transport. All methods are safe
// for concurrent use; transport events are processed in the order the
// transport delivers them.
type Manager struct {
	transport core.Transport
	convo     *convo.Log
	cfg       Config

	mu       sync.Mutex
	sess     domain.Session
	bindings map[string]*binding
	gen      uint64
	onState  func(domain.ConnectionState)
}

func NewManager(t core.Transport, c *convo.Log, cfg Config) *Manager {
	if cfg.TokenTimeout <= 0 {
		cfg.TokenTimeout = 5 * time.Second
	}
	if cfg.NewSink == nil {
		cfg.NewSink = func() core.TrackSink { return noopSink{} }
	}
	return &Manager{
		transport: t,
		convo:     c,
		cfg:       cfg,
		bindings:  make(map[string]*binding),
	}
}

// OnStateChange registers the connection-state observer. The callback runs
// outside the manager's lock and must not block.
func (m *Manager) OnStateChange(fn func(domain.ConnectionState)) {
	m.mu.Lock()
	m.onState = fn
	m.mu.Unlock()
}

// Session returns a copy of the current session meta.
func (m *Manager) Session() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// State returns the current connection state.
func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.State
}

// BindingCount reports the number of live remote track bindings.
func (m *Manager) BindingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bindings)
}

// ConnectOptions tunes a single Connect call.
type ConnectOptions struct {
	// Token skips the provider when the caller already holds a credential.
	Token string

	// EnableMicrophone publishes the microphone right after connecting.
	EnableMicrophone bool
}

// Connect joins the room. The session must be disconnected. The state moves
// disconnected -> connecting -> connected; any failure lands back on
// disconnected with a system entry describing what happened.
func (m *Manager) Connect(ctx context.Context, room, identity string, opts ConnectOptions) error {
	if err := domain.ValidateRoomName(room); err != nil {
		return err
	}
	if err := domain.ValidateIdentity(identity); err != nil {
		return err
	}

	m.mu.Lock()
	if m.sess.State != domain.StateDisconnected {
		m.mu.Unlock()
		return ErrNotDisconnected
	}
	m.sess = domain.Session{
		Room:     domain.RoomName(room),
		Identity: domain.Identity(identity),
		State:    domain.StateConnecting,
	}
	gen := m.gen
	m.mu.Unlock()
	m.notify(domain.StateConnecting)

	tok := opts.Token
	if tok == "" {
		resolved, err := m.resolveToken(ctx, room, identity)
		if err != nil {
			m.failConnect(gen, fmt.Sprintf("Failed to join %s: could not obtain a token", room))
			return &ConnectError{Reason: ReasonTokenFetchFailed, Err: err}
		}
		tok = resolved
	}

	if !m.stillConnecting(gen) {
		return ErrConnectAborted
	}

	if err := m.transport.Connect(ctx, room, tok, m.handleEvent); err != nil {
		reason := ReasonTransportUnreachable
		if errors.Is(err, core.ErrAuthRejected) {
			reason = ReasonAuthRejected
		}
		log.Error().Err(err).Str("module", "session").Str("room", room).Str("reason", string(reason)).Msg("transport connect failed")
		m.failConnect(gen, fmt.Sprintf("Failed to join %s: %s", room, reason))
		return &ConnectError{Reason: reason, Err: err}
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.transport.Close()
		return ErrConnectAborted
	}
	m.sess.State = domain.StateConnected
	m.sess.Token = tok
	m.mu.Unlock()

	log.Info().Str("module", "session").Str("room", room).Str("identity", identity).Msg("connected")
	m.convo.Append(domain.SenderSystem, fmt.Sprintf("Connected to room %s", room))
	m.notify(domain.StateConnected)

	if opts.EnableMicrophone {
		if err := m.ToggleMicrophone(ctx, true); err != nil {
			log.Warn().Err(err).Str("module", "session").Msg("microphone enable after connect failed")
		}
	}
	return nil
}

// resolveToken fetches from the provider with a bounded timeout and falls
// back to the static token when the provider fails. The fallback is a
// logged, narrated degraded mode, never a silent success.
func (m *Manager) resolveToken(ctx context.Context, room, identity string) (string, error) {
	if m.cfg.Tokens == nil {
		if m.cfg.FallbackToken != "" {
			return m.cfg.FallbackToken, nil
		}
		return "", errors.New("no token source configured")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.TokenTimeout)
	defer cancel()
	tok, err := m.cfg.Tokens.Token(fetchCtx, room, identity)
	if err == nil {
		return tok, nil
	}
	if m.cfg.FallbackToken == "" {
		return "", err
	}

	log.Warn().Err(err).Str("module", "session").Str("room", room).Msg("token fetch failed, using static fallback token")
	m.convo.Append(domain.SenderSystem, "Token service unavailable, using fallback token")
	return m.cfg.FallbackToken, nil
}

func (m *Manager) stillConnecting(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen && m.sess.State == domain.StateConnecting
}

// failConnect lands a failed attempt back on disconnected and narrates it,
// unless a disconnect already superseded the attempt.
func (m *Manager) failConnect(gen uint64, msg string) {
	m.mu.Lock()
	if m.gen != gen || m.sess.State != domain.StateConnecting {
		m.mu.Unlock()
		return
	}
	m.sess.State = domain.StateDisconnected
	m.gen++
	m.mu.Unlock()

	m.convo.Append(domain.SenderSystem, msg)
	m.notify(domain.StateDisconnected)
}

// Disconnect releases the transport and all track bindings. It is
// idempotent and never errors on an already-disconnected session.
func (m *Manager) Disconnect() {
	if m.teardown() {
		m.notify(domain.StateDisconnected)
	}
}

// ToggleMicrophone requests hardware capture enable/disable from the
// transport. On permission denial MicEnabled is left unchanged.
func (m *Manager) ToggleMicrophone(ctx context.Context, enable bool) error {
	m.mu.Lock()
	if m.sess.State != domain.StateConnected {
		m.mu.Unlock()
		return ErrNotConnected
	}
	m.mu.Unlock()

	if err := m.transport.SetMicrophoneEnabled(ctx, enable); err != nil {
		log.Warn().Err(err).Str("module", "session").Bool("enable", enable).Msg("microphone toggle failed")
		return err
	}

	m.mu.Lock()
	if m.sess.State == domain.StateConnected {
		m.sess.MicEnabled = enable
	}
	m.mu.Unlock()
	log.Info().Str("module", "session").Bool("enabled", enable).Msg("microphone toggled")
	return nil
}

// handleEvent is the single intake for transport notifications, dispatching
// on the event kind. Events are processed in delivery order.
func (m *Manager) handleEvent(ev core.Event) {
	switch ev.Kind {
	case core.EventParticipantConnected:
		m.convo.Append(domain.SenderSystem, fmt.Sprintf("%s joined the room", ev.Participant))

	case core.EventParticipantDisconnected:
		m.dropBindings(func(b *binding) bool { return b.participant == ev.Participant })
		m.convo.Append(domain.SenderSystem, fmt.Sprintf("%s left the room", ev.Participant))

	case core.EventTrackSubscribed:
		m.bindTrack(ev)

	case core.EventTrackUnsubscribed:
		m.dropBindings(func(b *binding) bool {
			return b.participant == ev.Participant && b.trackID == ev.TrackID
		})

	case core.EventDisconnected:
		if m.teardown() {
			m.convo.Append(domain.SenderSystem, "Disconnected from room")
			m.notify(domain.StateDisconnected)
		}

	default:
		log.Warn().Str("module", "session").Str("kind", ev.Kind.String()).Msg("unknown transport event")
	}
}

func bindingKey(participant, trackID string) string {
	return participant + "/" + trackID
}

func (m *Manager) bindTrack(ev core.Event) {
	sink := m.cfg.NewSink()
	if err := sink.Attach(ev.Participant, ev.TrackID); err != nil {
		log.Error().Err(err).Str("module", "session").Str("participant", ev.Participant).Str("track", ev.TrackID).Msg("sink attach failed")
		return
	}

	key := bindingKey(ev.Participant, ev.TrackID)
	m.mu.Lock()
	if old, ok := m.bindings[key]; ok {
		old.sink.Detach()
	}
	m.bindings[key] = &binding{
		participant: ev.Participant,
		trackID:     ev.TrackID,
		kind:        ev.TrackKind,
		sink:        sink,
	}
	m.mu.Unlock()

	m.convo.Append(domain.SenderSystem, fmt.Sprintf("Subscribed to %s track from %s", ev.TrackKind, ev.Participant))
}

func (m *Manager) dropBindings(match func(*binding) bool) {
	m.mu.Lock()
	var dropped []*binding
	for key, b := range m.bindings {
		if match(b) {
			dropped = append(dropped, b)
			delete(m.bindings, key)
		}
	}
	m.mu.Unlock()

	for _, b := range dropped {
		b.sink.Detach()
	}
}

// teardown releases everything a live session holds. Reports whether there
// was anything to tear down.
func (m *Manager) teardown() bool {
	m.mu.Lock()
	if m.sess.State == domain.StateDisconnected {
		m.mu.Unlock()
		return false
	}
	m.sess.State = domain.StateDisconnected
	m.sess.MicEnabled = false
	m.gen++
	dropped := make([]*binding, 0, len(m.bindings))
	for _, b := range m.bindings {
		dropped = append(dropped, b)
	}
	m.bindings = make(map[string]*binding)
	m.mu.Unlock()

	for _, b := range dropped {
		b.sink.Detach()
	}
	m.transport.Close()
	log.Info().Str("module", "session").Msg("session torn down")
	return true
}

func (m *Manager) notify(s domain.ConnectionState) {
	m.mu.Lock()
	fn := m.onState
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

type noopSink struct{}

func (noopSink) Attach(string, string) error { return nil }
func (noopSink) Detach()                     {}
