package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// RefreshError is the marker stored on a TokenState whose refresh failed.
const RefreshError = "RefreshAccessTokenError"

// defaultLifetime applies when the provider omits expires_in.
const defaultLifetime = time.Hour

// ErrAuthExpired is returned when the session has no usable access token and
// the user must authenticate again.
var ErrAuthExpired = &AuthExpiredError{}

// AuthExpiredError reports that the token could not be refreshed.
type AuthExpiredError struct {
	Reason string
}

func (e *AuthExpiredError) Error() string {
	if e.Reason == "" {
		return "authentication expired"
	}
	return "authentication expired: " + e.Reason
}

// Is makes every AuthExpiredError match ErrAuthExpired.
func (e *AuthExpiredError) Is(target error) bool {
	_, ok := target.(*AuthExpiredError)
	return ok
}

// TokenState is the session's OAuth token record. It is a value: transitions
// return a new state instead of mutating the old one.
type TokenState struct {
	AccessToken       string    `json:"access_token"`
	AccessTokenExpiry time.Time `json:"access_token_expiry"`
	RefreshToken      string    `json:"refresh_token"`
	Error             string    `json:"error,omitempty"`
}

// Usable reports whether the access token may be sent to the mail API.
func (s TokenState) Usable() bool {
	return s.Error == "" && s.AccessToken != ""
}

// FromExchange builds the initial state from a completed OAuth handshake.
func FromExchange(tok *oauth2.Token, now time.Time) TokenState {
	return TokenState{
		AccessToken:       tok.AccessToken,
		AccessTokenExpiry: now.Add(lifetime(tok)),
		RefreshToken:      tok.RefreshToken,
	}
}

// Refresher implements the "refresh if needed" transition.
type Refresher struct {
	cfg *oauth2.Config
	now func() time.Time
	log *slog.Logger
}

// NewRefresher creates a Refresher against cfg's token endpoint.
func NewRefresher(cfg *oauth2.Config, now func() time.Time, log *slog.Logger) *Refresher {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Refresher{cfg: cfg, now: now, log: log}
}

// Ensure returns a state usable now. A still valid token is returned without a
// network call, an expired one is refreshed, and a failed refresh is reported
// through the Error marker instead of an error value.
func (r *Refresher) Ensure(ctx context.Context, s TokenState) TokenState {
	if s.Error != "" {
		return s
	}

	now := r.now()
	if !s.AccessTokenExpiry.IsZero() && now.Before(s.AccessTokenExpiry) {
		return s
	}

	if s.RefreshToken == "" {
		r.log.Warn("token expired without refresh token")
		s.Error = RefreshError
		return s
	}

	r.log.Info("token expired, attempting refresh", "expiry", s.AccessTokenExpiry)

	// An empty access token forces the oauth2 source to hit the endpoint.
	tok, err := r.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: s.RefreshToken}).Token()
	if err != nil {
		r.log.Error("token refresh failed", "error", describeRefreshErr(err))
		s.Error = RefreshError
		return s
	}

	next := TokenState{
		AccessToken:       tok.AccessToken,
		AccessTokenExpiry: now.Add(lifetime(tok)),
		RefreshToken:      s.RefreshToken,
	}
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}

	return next
}

func describeRefreshErr(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return strconv.Itoa(re.Response.StatusCode) + ": " + string(re.Body)
	}
	return err.Error()
}

// lifetime reads expires_in from the raw token response; oauth2 only exposes
// it as an absolute Expiry computed from the wall clock.
func lifetime(tok *oauth2.Token) time.Duration {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}

	var secs float64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		secs = v
	case int64:
		secs = float64(v)
	case int:
		secs = float64(v)
	case json.Number:
		secs, _ = v.Float64()
	case string:
		secs, _ = strconv.ParseFloat(v, 64)
	}
	if secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}

	if !tok.Expiry.IsZero() {
		if d := time.Until(tok.Expiry); d > 0 {
			return d
		}
	}

	return defaultLifetime
}
