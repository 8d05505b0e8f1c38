// Package store persiste en SQLite las solicitudes, paquetes, tokens y el
// índice de CFDI de un RFC.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Drivers soportados.
const (
	DriverSQLite  = "sqlite"  // modernc.org/sqlite, sin cgo
	DriverSQLite3 = "sqlite3" // github.com/mattn/go-sqlite3
)

const timeLayout = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS solicitudes (
	id_solicitud TEXT PRIMARY KEY,
	rfc          TEXT NOT NULL,
	endpoint     TEXT NOT NULL,
	tipo         TEXT NOT NULL,
	estado       INTEGER NOT NULL DEFAULT 0,
	numero_cfdis INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS paquetes (
	id_paquete   TEXT PRIMARY KEY,
	id_solicitud TEXT NOT NULL,
	descargado   INTEGER NOT NULL DEFAULT 0,
	updated_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tokens (
	audience   TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);`

// Store es la base local de un RFC.
type Store struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open abre (o crea) la base en path y aplica el esquema.
func Open(ctx context.Context, driver, path string, opts ...Option) (*Store, error) {
	switch driver {
	case "":
		driver = DriverSQLite
	case DriverSQLite, DriverSQLite3:
	default:
		return nil, fmt.Errorf("driver de base de datos no soportado: %q", driver)
	}
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("abrir base %s: %w", path, err)
	}
	// SQLite serializa las escrituras; una conexión evita SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("crear esquema: %w", err)
	}
	s := &Store{db: db, now: time.Now, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) stamp() string { return s.now().UTC().Format(timeLayout) }

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("fecha inválida en la base: %q: %w", v, err)
	}
	return t, nil
}
