package transport_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"descargamasiva/internal/transport"
)

func TestSend_PostsBodyAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "text/xml; charset=utf-8", r.Header.Get("Content-Type"))
		assert.Equal(t, "urn:accion", r.Header.Get("SOAPAction"))
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "<a/>", string(b))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("<ok/>"))
	}))
	defer srv.Close()

	c := transport.New(transport.Config{}, srv.Client(), zerolog.Nop())
	h := http.Header{}
	h.Set("Content-Type", "text/xml; charset=utf-8")
	h.Set("SOAPAction", "urn:accion")

	status, body, err := c.Send(context.Background(), srv.URL, h, []byte("<a/>"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "<ok/>", string(body))
}

func TestSend_ReturnsNon2xxWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusNotFound)
	}))
	defer srv.Close()

	c := transport.New(transport.Config{}, srv.Client(), zerolog.Nop())
	status, _, err := c.Send(context.Background(), srv.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSend_LimitsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	c := transport.New(transport.Config{MaxBodyBytes: 4}, srv.Client(), zerolog.Nop())
	_, body, err := c.Send(context.Background(), srv.URL, nil, nil)
	var tErr *transport.Error
	require.ErrorAs(t, err, &tErr)
	assert.Contains(t, err.Error(), "respuesta excede 4 bytes")
	assert.Nil(t, body)

	// exactamente en el límite se acepta
	c = transport.New(transport.Config{MaxBodyBytes: 10}, srv.Client(), zerolog.Nop())
	_, body, err = c.Send(context.Background(), srv.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(body))
}

func TestSend_TransportError(t *testing.T) {
	c := transport.New(transport.Config{}, nil, zerolog.Nop())

	_, _, err := c.Send(context.Background(), "://sin-esquema", nil, nil)
	var tErr *transport.Error
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, "://sin-esquema", tErr.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = c.Send(ctx, "http://127.0.0.1:1/", nil, nil)
	require.ErrorAs(t, err, &tErr)
	assert.ErrorIs(t, err, context.Canceled)
}
