// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

// Package auth validates Discord OAuth2 bearer tokens for viewers connecting
// to passworded rooms.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/NNTin/d-back/internal/logging"
)

// Mode selects how connections without a valid token are treated.
type Mode string

const (
	// ModeNone performs no validation; every viewer is anonymous.
	ModeNone Mode = "none"

	// ModeAnonymous validates tokens when presented and falls back to an
	// anonymous identity otherwise.
	ModeAnonymous Mode = "anonymous"

	// ModeReject requires a valid token; connections without one are refused.
	ModeReject Mode = "reject"
)

// ErrUnauthorized is returned in ModeReject when no valid token is presented.
var ErrUnauthorized = errors.New("auth: token required")

// Identity is the resolved viewer identity attached to a connection.
type Identity struct {
	UID       string
	Username  string
	Anonymous bool
}

// Config configures the token validator.
type Config struct {
	Mode Mode

	// APIURL is the base URL of the Discord-style OAuth2 API.
	// Tokens are checked against {APIURL}/users/@me.
	APIURL string

	// ClientID is the OAuth2 application id, surfaced to clients so they
	// can start the authorization flow.
	ClientID string

	// CacheTTL bounds how long a validated token is trusted without
	// re-checking upstream. Default: 5m
	CacheTTL time.Duration
}

type cachedIdentity struct {
	identity Identity
	expires  time.Time
}

// Validator resolves bearer tokens into viewer identities.
type Validator struct {
	cfg    Config
	client *http.Client

	mu    sync.Mutex
	cache map[string]cachedIdentity
}

// NewValidator creates a token validator.
func NewValidator(cfg Config) *Validator {
	if cfg.Mode == "" {
		cfg.Mode = ModeNone
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Validator{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  make(map[string]cachedIdentity),
	}
}

// Mode returns the configured validation mode.
func (v *Validator) Mode() Mode {
	return v.cfg.Mode
}

// ClientID returns the OAuth2 application id, empty when not configured.
func (v *Validator) ClientID() string {
	return v.cfg.ClientID
}

// Resolve turns a bearer token (possibly empty) into a viewer identity.
// The error is non-nil only when the connection must be refused.
func (v *Validator) Resolve(ctx context.Context, token string) (Identity, error) {
	switch v.cfg.Mode {
	case ModeNone:
		return anonymousIdentity(), nil

	case ModeReject:
		if token == "" {
			return Identity{}, ErrUnauthorized
		}
		id, err := v.validate(ctx, token)
		if err != nil {
			logging.Warn().Err(err).Msg("token validation failed, refusing connection")
			return Identity{}, ErrUnauthorized
		}
		return id, nil

	default: // ModeAnonymous
		if token == "" {
			return anonymousIdentity(), nil
		}
		id, err := v.validate(ctx, token)
		if err != nil {
			logging.Warn().Err(err).Msg("token validation failed, downgrading to anonymous")
			return anonymousIdentity(), nil
		}
		return id, nil
	}
}

// userResponse is the /users/@me payload subset we care about.
type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// validate checks the token against the OAuth2 API, consulting the cache
// first so reconnect storms do not hammer upstream.
func (v *Validator) validate(ctx context.Context, token string) (Identity, error) {
	v.mu.Lock()
	if cached, ok := v.cache[token]; ok && time.Now().Before(cached.expires) {
		v.mu.Unlock()
		return cached.identity, nil
	}
	v.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.APIURL+"/users/@me", nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("oauth2 userinfo request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("oauth2 userinfo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Identity{}, err
	}
	var user userResponse
	if err := json.Unmarshal(body, &user); err != nil {
		return Identity{}, fmt.Errorf("oauth2 userinfo decode: %w", err)
	}
	if user.ID == "" {
		return Identity{}, errors.New("oauth2 userinfo missing id")
	}

	id := Identity{UID: user.ID, Username: user.Username}
	v.mu.Lock()
	v.cache[token] = cachedIdentity{identity: id, expires: time.Now().Add(v.cfg.CacheTTL)}
	v.mu.Unlock()
	return id, nil
}

// anonymousIdentity mints a throwaway guest identity for one connection.
func anonymousIdentity() Identity {
	short := uuid.NewString()[:8]
	return Identity{
		UID:       "anon-" + short,
		Username:  "guest-" + short,
		Anonymous: true,
	}
}
