// Package token resolves join credentials for the session manager.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyToken = errors.New("token endpoint returned an empty token")
	ErrNoFallback = errors.New("no fallback token configured")
)

const DefaultTimeout = 5 * time.Second

// HTTPProvider fetches short-lived tokens from the token endpoint:
// GET <endpoint>/get-token?room=<name>&identity=<id> -> {"token": "..."}.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

func NewHTTPProvider(endpoint string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPProvider{
		endpoint: endpoint,
		client:   &http.Client{},
		timeout:  timeout,
	}
}

func (p *HTTPProvider) Token(ctx context.Context, room, identity string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("room", room)
	q.Set("identity", identity)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/get-token?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if body.Token == "" {
		return "", ErrEmptyToken
	}

	log.Debug().Str("module", "token").Str("room", room).Str("identity", identity).Msg("token fetched")
	return body.Token, nil
}

// Static is a pre-configured fallback credential. An empty value disables
// the fallback path entirely; the static token is a development escape
// hatch and must be set explicitly in config.
type Static string

func (s Static) Token(_ context.Context, _, _ string) (string, error) {
	if s == "" {
		return "", ErrNoFallback
	}
	return string(s), nil
}
