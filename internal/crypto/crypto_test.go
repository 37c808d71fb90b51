package crypto

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"freecord/internal/models"
	chaterrors "freecord/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyServer(t *testing.T) (*KeyService, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ks := NewKeyService([]byte("master-secret-for-tests"))
	r := gin.New()
	ks.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return ks, srv
}

func TestClient_RoundTrip(t *testing.T) {
	_, srv := newKeyServer(t)
	c := NewClient(srv.URL, 5*time.Second, nil)
	ctx := context.Background()

	for _, scope := range []models.Scope{models.ChannelScope(3), models.ConversationScope(3), models.ChannelScope(1_000_003 + 7)} {
		ct, err := c.Encrypt(ctx, scope, "hello there")
		require.NoError(t, err, scope.String())
		assert.NotEqual(t, "hello there", ct)

		pt, err := c.Decrypt(ctx, scope, ct)
		require.NoError(t, err, scope.String())
		assert.Equal(t, "hello there", pt)
	}
}

func TestClient_ScopeIsolation(t *testing.T) {
	ks, srv := newKeyServer(t)
	c := NewClient(srv.URL, 5*time.Second, nil)
	ctx := context.Background()

	ct, err := c.Encrypt(ctx, models.ConversationScope(3), "secret")
	require.NoError(t, err)

	_, err = c.Decrypt(ctx, models.ChannelScope(3), ct)
	assert.ErrorIs(t, err, chaterrors.ErrEncryptionUnavailable)

	// Conversation 3 lives under key 1,000,003.
	pt, err := ks.Open(1_000_003, ct)
	require.NoError(t, err)
	assert.Equal(t, "secret", pt)

	_, err = ks.Open(3, ct)
	assert.Error(t, err)
}

func TestClient_DecryptOrPlaceholder(t *testing.T) {
	_, srv := newKeyServer(t)
	c := NewClient(srv.URL, 5*time.Second, nil)
	ctx := context.Background()
	scope := models.ChannelScope(9)

	assert.Equal(t, models.DecryptionErrorText, c.DecryptOrPlaceholder(ctx, scope, "bm90LXZhbGlk"))
	assert.Equal(t, models.DecryptionErrorText, c.DecryptOrPlaceholder(ctx, scope, "%%%"))

	ct, err := c.Encrypt(ctx, scope, "ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", c.DecryptOrPlaceholder(ctx, scope, ct))
}

func TestClient_ServiceFailures(t *testing.T) {
	ctx := context.Background()
	scope := models.ChannelScope(1)

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, time.Second, nil).Encrypt(ctx, scope, "x")
		assert.ErrorIs(t, err, chaterrors.ErrEncryptionUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
			w.Write([]byte(`{"encrypted":"late"}`))
		}))
		defer srv.Close()

		start := time.Now()
		_, err := NewClient(srv.URL, 50*time.Millisecond, nil).Encrypt(ctx, scope, "x")
		assert.ErrorIs(t, err, chaterrors.ErrEncryptionUnavailable)
		assert.Less(t, time.Since(start), 250*time.Millisecond)
	})

	t.Run("unreachable", func(t *testing.T) {
		_, err := NewClient("http://127.0.0.1:1", time.Second, nil).Encrypt(ctx, scope, "x")
		assert.ErrorIs(t, err, chaterrors.ErrEncryptionUnavailable)
	})

	t.Run("cancelled context", func(t *testing.T) {
		_, srv := newKeyServer(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewClient(srv.URL, time.Second, nil).Encrypt(cctx, scope, "x")
		assert.ErrorIs(t, err, chaterrors.ErrEncryptionUnavailable)
	})
}

func TestKeyService_BadRequests(t *testing.T) {
	_, srv := newKeyServer(t)

	resp, err := http.Post(srv.URL+"/decrypt", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
