// Package auth handles the OAuth2 token lifecycle and its persistence.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrTokenNotSet indicates no OAuth handshake has completed yet.
var ErrTokenNotSet = errors.New("no token defined")

const stateTTL = 5 * time.Minute

// Token is the session's token holder. Reads go through the Refresher so every
// caller gets a state usable now; concurrent refreshes are not serialized.
type Token struct {
	mu          sync.RWMutex
	cfg         *oauth2.Config
	refresher   *Refresher
	state       *TokenState
	persistPath string
	stateStore  map[string]time.Time
	now         func() time.Time
	log         *slog.Logger
}

// NewToken creates a Token holder, loading a persisted state if path provided.
func NewToken(cfg *oauth2.Config, persistPath string, log *slog.Logger) (*Token, error) {
	if log == nil {
		log = slog.Default()
	}
	t := &Token{
		cfg:         cfg,
		refresher:   NewRefresher(cfg, time.Now, log),
		persistPath: persistPath,
		stateStore:  make(map[string]time.Time),
		now:         time.Now,
		log:         log,
	}
	if persistPath == "" {
		return t, nil
	}

	f, err := os.Open(persistPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Info("token file doesn't exist, will be created at the end", "path", persistPath)

			return t, nil
		}

		return nil, fmt.Errorf("os.Open failed: %w", err)
	}
	defer func() { _ = f.Close() }()

	state := &TokenState{}
	if err := json.NewDecoder(f).Decode(state); err != nil {
		return nil, fmt.Errorf("json.NewDecoder.Decode failed: %w", err)
	}
	t.state = state

	return t, nil
}

// SetClock replaces the time source used for expiry checks.
func (t *Token) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.now = now
	t.refresher = NewRefresher(t.cfg, now, t.log)
}

// RedirectURL generates the OAuth2 authorization URL with a secure random state.
func (t *Token) RedirectURL() (string, error) {
	state, err := t.generateState()
	if err != nil {
		return "", fmt.Errorf("generateState failed: %w", err)
	}

	return t.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

func (t *Token) generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read failed: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(b)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.stateStore[state] = now.Add(stateTTL)

	for s, exp := range t.stateStore {
		if exp.Before(now) {
			delete(t.stateStore, s)
		}
	}

	return state, nil
}

func (t *Token) validateState(state string) bool {
	if state == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	expiry, exists := t.stateStore[state]
	if !exists {
		return false
	}

	delete(t.stateStore, state)

	return !t.now().After(expiry)
}

// AuthorizeCode exchanges an authorization code for a fresh token state after
// validating the OAuth state parameter.
func (t *Token) AuthorizeCode(ctx context.Context, code string, state string) error {
	if !t.validateState(state) {
		return errors.New("invalid or expired state parameter")
	}

	tok, err := t.cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("cfg.Exchange failed: %w", err)
	}

	t.Set(FromExchange(tok, t.clock()))
	t.log.Info("initial sign in, tokens set up")

	return nil
}

// Set replaces the stored state.
func (t *Token) Set(s TokenState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = &s
}

// State returns the stored state without refreshing it.
func (t *Token) State() (TokenState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.state == nil {
		return TokenState{}, ErrTokenNotSet
	}

	return *t.state, nil
}

// Current returns the state after applying the refresh transition and stores
// the result. It is safe to call on every read.
func (t *Token) Current(ctx context.Context) (TokenState, error) {
	t.mu.RLock()
	if t.state == nil {
		t.mu.RUnlock()
		return TokenState{}, ErrTokenNotSet
	}
	prev := *t.state
	refresher := t.refresher
	t.mu.RUnlock()

	next := refresher.Ensure(ctx, prev)
	if next == prev {
		return next, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Another refresh or a new authorization landed while this one was in
	// flight. The stored state is newer, keep it.
	if t.state == nil || *t.state != prev {
		if t.state == nil {
			return TokenState{}, ErrTokenNotSet
		}
		return *t.state, nil
	}
	t.state = &next

	return next, nil
}

// AccessToken returns a bearer token usable now, or ErrAuthExpired when the
// user has to authenticate again.
func (t *Token) AccessToken(ctx context.Context) (string, error) {
	s, err := t.Current(ctx)
	if errors.Is(err, ErrTokenNotSet) {
		return "", &AuthExpiredError{Reason: err.Error()}
	}
	if err != nil {
		return "", err
	}
	if !s.Usable() {
		return "", &AuthExpiredError{Reason: s.Error}
	}

	return s.AccessToken, nil
}

// Persist saves the state to disk.
func (t *Token) Persist() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.persistPath == "" || t.state == nil {
		return nil
	}

	f, err := os.OpenFile(t.persistPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("os.OpenFile failed: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(t.state); err != nil {
		return fmt.Errorf("json.NewEncoder.Encode failed: %w", err)
	}

	return nil
}

func (t *Token) clock() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.now()
}
