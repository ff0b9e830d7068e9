package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voicelab/voicebridge/internal/convo"
	"github.com/voicelab/voicebridge/internal/core"
	"github.com/voicelab/voicebridge/internal/domain"
)

var (
	// ErrUnreachable means the processing endpoint could not be reached.
	ErrUnreachable = errors.New("processing endpoint unreachable")

	// ErrMalformedResponse means the endpoint answered 2xx with a body that
	// does not decode to the expected shape.
	ErrMalformedResponse = errors.New("malformed processing response")
)

// ServerError is a non-2xx answer from the processing endpoint. Detail is
// the parsed {"detail": ...} field when present, the raw body otherwise.
type ServerError struct {
	Status int
	Detail string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("processing endpoint rejected request: %d %s", e.Status, e.Detail)
}

// ProcessedResponse is the decoded answer of /api/process-audio.
type ProcessedResponse struct {
	UserText     string `json:"user_text"`
	ResponseText string `json:"response_text"`
	AudioID      string `json:"audio_id"`
}

const (
	defaultRevealChars = 3
	defaultRevealTick  = 40 * time.Millisecond
)

// Client ships captured audio to the processing backend and narrates the
// exchange into the conversation log.
type Client struct {
	base    string
	http    *http.Client
	convo   *convo.Log
	player  core.Player
	timeout time.Duration

	// RevealChars/RevealTick tune the typing reveal of agent replies.
	RevealChars int
	RevealTick  time.Duration
}

func NewClient(base string, timeout time.Duration, c *convo.Log, player core.Player) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:        strings.TrimRight(base, "/"),
		http:        &http.Client{},
		convo:       c,
		player:      player,
		timeout:     timeout,
		RevealChars: defaultRevealChars,
		RevealTick:  defaultRevealTick,
	}
}

// Health probes GET /health. Connectivity indicator only; callers must not
// gate correctness on it.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Process uploads one audio payload and, on success, appends the transcribed
// user text and the agent reply (revealed progressively) to the conversation
// log, then schedules playback when a synthesized reply is referenced.
// Nothing is appended on failure. Cancel ctx to abandon a pending upload.
func (c *Client) Process(ctx context.Context, blob []byte) (*ProcessedResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", "capture.wav")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(blob); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/process-audio", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, serverError(resp.StatusCode, raw)
	}

	var pr ProcessedResponse
	if err := json.Unmarshal(raw, &pr); err != nil || (pr.UserText == "" && pr.ResponseText == "") {
		return nil, ErrMalformedResponse
	}

	c.convo.Append(domain.SenderUser, pr.UserText)
	agent := c.convo.Append(domain.SenderAgent, "")
	c.convo.Reveal(agent, pr.ResponseText, c.RevealChars, c.RevealTick)

	if pr.AudioID != "" && c.player != nil {
		u := c.AudioURL(pr.AudioID)
		if err := c.player.Play(u); err != nil {
			log.Warn().Err(err).Str("module", "audio").Str("url", u).Msg("playback scheduling failed")
		}
	}
	return &pr, nil
}

// AudioURL builds the retrieval URL for a synthesized reply.
func (c *Client) AudioURL(id string) string {
	return fmt.Sprintf("%s/audio/%s.mp3", c.base, id)
}

func serverError(status int, raw []byte) *ServerError {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != "" {
		return &ServerError{Status: status, Detail: body.Detail}
	}
	return &ServerError{Status: status, Detail: strings.TrimSpace(string(raw))}
}
