package auth_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/mailbulk/internal/auth"
)

func TestHTTPHandler(t *testing.T) {
	_, cfg := newEndpoint(t, http.StatusOK, `{}`)
	tok, err := auth.NewToken(cfg, "", discard())
	require.NoError(t, err)
	h := auth.NewHTTPHandler(tok, discard())

	t.Run("no_token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("redirect_to_consent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth?redirect=1", nil))
		require.Equal(t, http.StatusFound, rec.Code)

		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/auth", loc.Path)
		assert.NotEmpty(t, loc.Query().Get("state"))
		assert.Equal(t, "offline", loc.Query().Get("access_type"))
	})

	t.Run("code_with_unknown_state", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth?code=abc&state=forged", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("token_masked", func(t *testing.T) {
		tok.Set(auth.TokenState{AccessToken: "secret-token", AccessTokenExpiry: time.Now().Add(time.Hour)})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "XXXXXXXXoken")
		assert.NotContains(t, rec.Body.String(), "secret")
	})

	t.Run("broken_token", func(t *testing.T) {
		tok.Set(auth.TokenState{AccessToken: "secret-token", Error: auth.RefreshError})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
