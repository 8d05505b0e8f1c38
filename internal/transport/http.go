package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxBodyBytes limita el tamaño de una respuesta (los paquetes vienen en base64).
const DefaultMaxBodyBytes int64 = 256 << 20

// Error wraps a failure to build, send or read an HTTP exchange.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("transporte %s: %v", e.URL, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Config del cliente HTTP. Timeout cero significa sin límite.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Client envía POST y devuelve status + cuerpo; no interpreta el status.
type Client struct {
	http     *http.Client
	maxBytes int64
	log      zerolog.Logger
}

// New crea un Client. Si httpClient es nil se usa uno propio con cfg.Timeout.
func New(cfg Config, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	return &Client{http: httpClient, maxBytes: limit, log: log}
}

// Send hace POST de body a url con header. Only transport-level failures
// are errors; any HTTP status is returned to the caller.
func (c *Client) Send(ctx context.Context, url string, header http.Header, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, &Error{URL: url, Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return resp.StatusCode, nil, &Error{URL: url, Err: fmt.Errorf("leer respuesta: %w", err)}
	}
	if int64(len(respBody)) > c.maxBytes {
		return resp.StatusCode, nil, &Error{URL: url, Err: fmt.Errorf("respuesta excede %d bytes", c.maxBytes)}
	}
	c.log.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Int("bytes", len(respBody)).
		Dur("elapsed", time.Since(start)).
		Msg("respuesta SAT")
	return resp.StatusCode, respBody, nil
}
