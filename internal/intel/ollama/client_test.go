package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Model: "m"}, nil)
	require.Error(t, err)
	_, err = New(Config{BaseURL: "http://localhost:11434"}, nil)
	require.Error(t, err)
}

func TestCompleteUsesGenerate(t *testing.T) {
	t.Parallel()

	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"response":"<think>hmm</think> Hello there "}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", Model: "qwen"}, zap.NewNop())
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "translate this")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)
	assert.Equal(t, "qwen", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, DefaultTemperature, got.Options.Temperature)
	assert.Equal(t, DefaultNumCtx, got.Options.NumCtx)
}

func TestCompleteFallsBackToChat(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		case "/api/chat":
			_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"from chat"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Model: "m"}, nil)
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "from chat", out)
}

func TestCompleteBothEndpointsFail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Model: "m"}, nil)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, harvest.ErrTransientNetwork)
}

func TestCompleteMalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Model: "m"}, nil)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, harvest.ErrMalformedResponse)
}
