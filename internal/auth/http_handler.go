package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type tok interface {
	AuthorizeCode(context.Context, string, string) error
	State() (TokenState, error)
	RedirectURL() (string, error)
}

// HTTPHandler handles the OAuth2 consent redirect flow.
type HTTPHandler struct {
	tok tok
	log *slog.Logger
}

// NewHTTPHandler creates an HTTP handler for OAuth2 flow.
func NewHTTPHandler(tok tok, log *slog.Logger) *HTTPHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPHandler{tok: tok, log: log}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("redirect") != "" {
		u, err := h.tok.RedirectURL()
		if err != nil {
			h.log.Error("h.tok.RedirectURL failed", "error", err)
			http.Error(w, "Unable to start authorization", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, u, http.StatusFound)
		return
	}

	if code := r.URL.Query().Get("code"); code != "" {
		state := r.URL.Query().Get("state")
		if err := h.tok.AuthorizeCode(r.Context(), code, state); err != nil {
			h.log.Error("h.tok.AuthorizeCode failed", "error", err)
			http.Error(w, "Unable to authorize provided code", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, r.URL.EscapedPath(), http.StatusFound)
		return
	}

	s, err := h.tok.State()
	if errors.Is(err, ErrTokenNotSet) {
		http.Error(w, "Token not found", http.StatusUnauthorized)
		return
	}
	if s.Error != "" {
		http.Error(w, "Token refresh failed, sign in again: "+s.Error, http.StatusUnauthorized)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "Token: %s, expires: %s", maskLeft(s.AccessToken), s.AccessTokenExpiry.Format(time.RFC3339))
}

func maskLeft(s string) string {
	rs := []rune(s)
	for i := 0; i < len(rs)-4; i++ {
		rs[i] = 'X'
	}
	return string(rs)
}
