package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"descargamasiva/internal/token"
)

var _ token.Store = (*Store)(nil)

// LoadToken implementa token.Store.
func (s *Store) LoadToken(ctx context.Context, aud token.Audience) (token.Token, bool, error) {
	var value, created, expires string
	err := s.db.QueryRowContext(ctx,
		`SELECT value, created_at, expires_at FROM tokens WHERE audience = ?`, string(aud)).
		Scan(&value, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return token.Token{}, false, nil
	}
	if err != nil {
		return token.Token{}, false, fmt.Errorf("leer token %s: %w", aud, err)
	}
	t := token.Token{Value: value}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return token.Token{}, false, err
	}
	if t.ExpiresAt, err = parseTime(expires); err != nil {
		return token.Token{}, false, err
	}
	return t, true, nil
}

// SaveToken implementa token.Store; reemplaza el token anterior de la audiencia.
func (s *Store) SaveToken(ctx context.Context, aud token.Audience, t token.Token) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (audience, value, created_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(audience) DO UPDATE SET value = excluded.value, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		string(aud), t.Value, t.CreatedAt.UTC().Format(timeLayout), t.ExpiresAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("guardar token %s: %w", aud, err)
	}
	return nil
}

// StoredToken es una fila de la tabla tokens.
type StoredToken struct {
	Audience token.Audience
	token.Token
}

// Tokens lista los tokens guardados.
func (s *Store) Tokens(ctx context.Context) ([]StoredToken, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT audience FROM tokens ORDER BY audience`)
	if err != nil {
		return nil, err
	}
	var auds []token.Audience
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			rows.Close()
			return nil, err
		}
		auds = append(auds, token.Audience(a))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]StoredToken, 0, len(auds))
	for _, a := range auds {
		t, ok, err := s.LoadToken(ctx, a)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, StoredToken{Audience: a, Token: t})
		}
	}
	return out, nil
}
