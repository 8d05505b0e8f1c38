package store

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

const uuidXPath = "//*[local-name()='TimbreFiscalDigital']/@UUID"

// SyncResult resume una sincronización.
type SyncResult struct {
	Inserted int
	Existing int
	Failed   []string
}

// SyncCFDIs indexa en la tabla cfdis cada .xml bajo dir. Los UUID que ya
// están en la tabla no se tocan; los archivos que no se pueden leer se
// reportan en Failed y no detienen el proceso.
func (s *Store) SyncCFDIs(ctx context.Context, dir string, campos []Campo) (SyncResult, error) {
	var res SyncResult
	if err := s.ensureCFDITable(ctx, campos); err != nil {
		return res, err
	}

	insert := insertStatement(campos)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".xml") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		values, err := extractValues(path, campos)
		if err != nil {
			s.log.Warn().Err(err).Str("archivo", path).Msg("no se pudo indexar el CFDI")
			res.Failed = append(res.Failed, path)
			return nil
		}
		r, err := s.db.ExecContext(ctx, insert, values...)
		if err != nil {
			return fmt.Errorf("insertar %s: %w", filepath.Base(path), err)
		}
		if n, _ := r.RowsAffected(); n > 0 {
			res.Inserted++
			s.log.Debug().Str("archivo", filepath.Base(path)).Msg("CFDI insertado")
		} else {
			res.Existing++
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("no se pudo leer el directorio de cfdis: %w", err)
	}
	return res, nil
}

// ensureCFDITable crea la tabla y agrega las columnas nuevas del archivo campos.
func (s *Store) ensureCFDITable(ctx context.Context, campos []Campo) error {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS cfdis (id INTEGER PRIMARY KEY AUTOINCREMENT, uuid TEXT UNIQUE, xml_path TEXT")
	for _, c := range campos {
		fmt.Fprintf(&sb, ", %s %s", c.Nombre, c.Tipo)
	}
	sb.WriteString(")")
	if _, err := s.db.ExecContext(ctx, sb.String()); err != nil {
		return fmt.Errorf("crear tabla cfdis: %w", err)
	}

	existing, err := s.columns(ctx, "cfdis")
	if err != nil {
		return err
	}
	for _, c := range campos {
		if existing[strings.ToLower(c.Nombre)] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE cfdis ADD COLUMN %s %s", c.Nombre, c.Tipo)); err != nil {
			return fmt.Errorf("agregar columna %s: %w", c.Nombre, err)
		}
		s.log.Info().Str("columna", c.Nombre).Msg("columna agregada a cfdis")
	}
	return nil
}

func (s *Store) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             any
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}

func insertStatement(campos []Campo) string {
	cols := []string{"uuid", "xml_path"}
	marks := []string{"?", "?"}
	for _, c := range campos {
		cols = append(cols, c.Nombre)
		marks = append(marks, "?")
	}
	return fmt.Sprintf("INSERT OR IGNORE INTO cfdis (%s) VALUES (%s)", strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// extractValues devuelve uuid, ruta y un valor por campo.
func extractValues(path string, campos []Campo) ([]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsear xml: %w", err)
	}
	uuidNode := xmlquery.FindOne(doc, uuidXPath)
	if uuidNode == nil || strings.TrimSpace(uuidNode.InnerText()) == "" {
		return nil, fmt.Errorf("no se encontró el UUID en el XML")
	}

	values := make([]any, 0, len(campos)+2)
	values = append(values, strings.TrimSpace(uuidNode.InnerText()), path)
	for _, c := range campos {
		values = append(values, evaluate(doc, c))
	}
	return values, nil
}

func evaluate(doc *xmlquery.Node, c Campo) any {
	expr := c.expr
	if expr == nil {
		var err error
		if expr, err = xpath.Compile(c.XPath); err != nil {
			return nil
		}
	}
	switch v := expr.Evaluate(xmlquery.CreateXPathNavigator(doc)).(type) {
	case string:
		if v == "" {
			return nil
		}
		return v
	case float64:
		if math.IsNaN(v) {
			return nil
		}
		return v
	case bool:
		return v
	case *xpath.NodeIterator:
		if v.MoveNext() {
			return v.Current().Value()
		}
	}
	return nil
}

// DropCFDIs borra el índice; el siguiente SyncCFDIs lo reconstruye con el
// archivo campos vigente.
func (s *Store) DropCFDIs(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS cfdis"); err != nil {
		return fmt.Errorf("borrar tabla cfdis: %w", err)
	}
	return nil
}
