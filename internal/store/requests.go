package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"descargamasiva/internal/response"
)

// Request es una solicitud enviada al SAT.
type Request struct {
	ID          string
	RFC         string
	EndPoint    string // facturas | retenciones
	Tipo        string // SolicitaDescargaEmitidos, ...
	Estado      response.VerificationState
	NumeroCFDIs int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Package es un paquete devuelto por Verify.
type Package struct {
	ID         string
	RequestID  string
	Downloaded bool
	UpdatedAt  time.Time
}

// SaveRequest registra una solicitud nueva; si ya existe no hace nada.
func (s *Store) SaveRequest(ctx context.Context, r Request) error {
	now := s.stamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO solicitudes (id_solicitud, rfc, endpoint, tipo, estado, numero_cfdis, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RFC, r.EndPoint, r.Tipo, int(r.Estado), r.NumeroCFDIs, now, now)
	if err != nil {
		return fmt.Errorf("guardar solicitud %s: %w", r.ID, err)
	}
	return nil
}

// UpdateRequest guarda el estado devuelto por Verify.
func (s *Store) UpdateRequest(ctx context.Context, id string, estado response.VerificationState, numero int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE solicitudes SET estado = ?, numero_cfdis = ?, updated_at = ? WHERE id_solicitud = ?`,
		int(estado), numero, s.stamp(), id)
	if err != nil {
		return fmt.Errorf("actualizar solicitud %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("solicitud %s no registrada", id)
	}
	return nil
}

// GetRequest busca una solicitud por id.
func (s *Store) GetRequest(ctx context.Context, id string) (Request, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id_solicitud, rfc, endpoint, tipo, estado, numero_cfdis, created_at, updated_at
		 FROM solicitudes WHERE id_solicitud = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, false, nil
	}
	if err != nil {
		return Request{}, false, err
	}
	return r, true, nil
}

// PendingRequests lista las solicitudes que aún no llegan a un estado final.
func (s *Store) PendingRequests(ctx context.Context) ([]Request, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id_solicitud, rfc, endpoint, tipo, estado, numero_cfdis, created_at, updated_at
		 FROM solicitudes WHERE estado < ? ORDER BY created_at, id_solicitud`, int(response.StateCompleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc scanner) (Request, error) {
	var (
		r                Request
		estado           int
		created, updated string
	)
	if err := sc.Scan(&r.ID, &r.RFC, &r.EndPoint, &r.Tipo, &estado, &r.NumeroCFDIs, &created, &updated); err != nil {
		return Request{}, err
	}
	r.Estado = response.VerificationState(estado)
	var err error
	if r.CreatedAt, err = parseTime(created); err != nil {
		return Request{}, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return Request{}, err
	}
	return r, nil
}

// AddPackages registra los paquetes de una solicitud; los repetidos se ignoran.
func (s *Store) AddPackages(ctx context.Context, requestID string, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.stamp()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO paquetes (id_paquete, id_solicitud, descargado, updated_at) VALUES (?, ?, 0, ?)`,
			id, requestID, now); err != nil {
			return fmt.Errorf("guardar paquete %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// PendingPackages lista los paquetes sin descargar.
func (s *Store) PendingPackages(ctx context.Context) ([]Package, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id_paquete, id_solicitud, descargado, updated_at FROM paquetes WHERE descargado = 0 ORDER BY id_paquete`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Package
	for rows.Next() {
		var (
			p          Package
			downloaded int
			updated    string
		)
		if err := rows.Scan(&p.ID, &p.RequestID, &downloaded, &updated); err != nil {
			return nil, err
		}
		p.Downloaded = downloaded != 0
		if p.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkDownloaded marca un paquete como descargado. Un id desconocido se
// registra sin solicitud (descargas manuales con --id).
func (s *Store) MarkDownloaded(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO paquetes (id_paquete, id_solicitud, descargado, updated_at) VALUES (?, '', 1, ?)
		 ON CONFLICT(id_paquete) DO UPDATE SET descargado = 1, updated_at = excluded.updated_at`,
		id, s.stamp())
	if err != nil {
		return fmt.Errorf("marcar paquete %s: %w", id, err)
	}
	return nil
}
