package token

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Cache keeps the latest token per audience and refreshes it on expiry.
// Concurrent callers that find an expired token share one Authenticate call.
type Cache struct {
	// items audiencia → Token
	items *gocache.Cache

	// sf colapsa las renovaciones concurrentes de la misma audiencia
	sf singleflight.Group

	auth  Authenticator
	store Store
	log   zerolog.Logger
}

// Option configura un Cache.
type Option func(*Cache)

// WithStore agrega persistencia; los tokens guardados se reusan mientras sigan vigentes.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// NewCache crea un cache vacío.
func NewCache(auth Authenticator, opts ...Option) *Cache {
	c := &Cache{
		items: gocache.New(gocache.NoExpiration, time.Minute),
		auth:  auth,
		log:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) cached(aud Audience) (Token, bool) {
	v, ok := c.items.Get(string(aud))
	if !ok {
		return Token{}, false
	}
	t, ok := v.(Token)
	return t, ok
}

// Peek devuelve el token en memoria sin validar vigencia.
func (c *Cache) Peek(aud Audience) (Token, bool) { return c.cached(aud) }

// Get returns the cached token while now < ExpiresAt, otherwise it
// authenticates and replaces the entry.
func (c *Cache) Get(ctx context.Context, aud Audience, now time.Time) (Token, error) {
	if t, ok := c.cached(aud); ok && t.ValidAt(now) {
		return t, nil
	}

	v, err, _ := c.sf.Do(string(aud), func() (interface{}, error) {
		// Double-check: otra llamada pudo renovarlo mientras esperábamos
		if t, ok := c.cached(aud); ok && t.ValidAt(now) {
			return t, nil
		}
		if t, ok := c.load(ctx, aud, now); ok {
			return t, nil
		}
		return c.authenticate(ctx, aud)
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// Refresh authenticates unconditionally and replaces the entry. It never
// joins a renewal started by Get; concurrent Refresh calls share one.
func (c *Cache) Refresh(ctx context.Context, aud Audience) (Token, error) {
	v, err, _ := c.sf.Do("refresh:"+string(aud), func() (interface{}, error) {
		return c.authenticate(ctx, aud)
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// Reset vacía la memoria; el Store no se toca.
func (c *Cache) Reset() { c.items.Flush() }

func (c *Cache) load(ctx context.Context, aud Audience, now time.Time) (Token, bool) {
	if c.store == nil {
		return Token{}, false
	}
	t, ok, err := c.store.LoadToken(ctx, aud)
	if err != nil {
		c.log.Warn().Err(err).Str("audience", string(aud)).Msg("no se pudo leer el token guardado")
		return Token{}, false
	}
	if !ok || !t.ValidAt(now) {
		return Token{}, false
	}
	c.items.Set(string(aud), t, gocache.NoExpiration)
	c.log.Debug().Str("audience", string(aud)).Time("expires", t.ExpiresAt).Msg("token recuperado del almacén")
	return t, true
}

func (c *Cache) authenticate(ctx context.Context, aud Audience) (Token, error) {
	t, err := c.auth.Authenticate(ctx, aud)
	if err != nil {
		return Token{}, err
	}
	c.items.Set(string(aud), t, gocache.NoExpiration)
	c.log.Info().Str("audience", string(aud)).Time("expires", t.ExpiresAt).Msg("token renovado")

	if c.store != nil {
		if err := c.store.SaveToken(ctx, aud, t); err != nil {
			c.log.Warn().Err(err).Str("audience", string(aud)).Msg("no se pudo guardar el token")
		}
	}
	return t, nil
}
