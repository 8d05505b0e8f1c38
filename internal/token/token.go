package token

import (
	"context"
	"time"
)

// Audience selects one of the two SAT token scopes.
type Audience string

const (
	Primary   Audience = "cfdi"
	Retention Audience = "reten"
)

// AudienceFor devuelve Retention cuando retention es verdadero.
func AudienceFor(retention bool) Audience {
	if retention {
		return Retention
	}
	return Primary
}

// Token es el resultado de Autentica. Nunca se modifica; se reemplaza.
type Token struct {
	CreatedAt time.Time
	ExpiresAt time.Time
	Value     string
}

// ValidAt reports whether the token can still be used at now.
func (t Token) ValidAt(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// Authorization es el valor del header Authorization.
func (t Token) Authorization() string {
	return `WRAP access_token="` + t.Value + `"`
}

// Authenticator obtiene un token nuevo para una audiencia.
type Authenticator interface {
	Authenticate(ctx context.Context, aud Audience) (Token, error)
}

// AuthenticatorFunc adapta una función a Authenticator.
type AuthenticatorFunc func(ctx context.Context, aud Audience) (Token, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, aud Audience) (Token, error) {
	return f(ctx, aud)
}

// Store persiste tokens entre ejecuciones. LoadToken devuelve ok=false si no hay.
type Store interface {
	LoadToken(ctx context.Context, aud Audience) (Token, bool, error)
	SaveToken(ctx context.Context, aud Audience, t Token) error
}
