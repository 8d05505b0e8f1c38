package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/antchfx/xpath"
)

// DefaultCampos es el archivo campos que se crea la primera vez.
const DefaultCampos = `# nombre tipo xpath
emisor_rfc CHAR(13) string(//*[local-name()='Emisor']/@Rfc)
receptor_rfc CHAR(13) string(//*[local-name()='Receptor']/@Rfc)
fecha DATETIME string(//*[local-name()='Comprobante']/@Fecha)
total DECIMAL(18,2) string(//*[local-name()='Comprobante']/@Total)
`

var (
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	typeRe  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_(),]*$`)
)

// columnas fijas de la tabla cfdis
var reserved = map[string]bool{"id": true, "uuid": true, "xml_path": true}

// Campo es una columna de la tabla cfdis y la expresión XPath que la llena.
type Campo struct {
	Nombre string
	Tipo   string
	XPath  string

	expr *xpath.Expr
}

// ParseCampos lee líneas "nombre tipo xpath". Las líneas vacías y las que
// empiezan con # se ignoran.
func ParseCampos(r io.Reader) ([]Campo, error) {
	var campos []Campo
	seen := map[string]bool{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.Fields(text)
		if len(parts) < 3 {
			return nil, fmt.Errorf("campos línea %d: se esperaba 'nombre tipo xpath'", line)
		}
		c := Campo{Nombre: parts[0], Tipo: parts[1], XPath: strings.Join(parts[2:], " ")}
		if !identRe.MatchString(c.Nombre) || reserved[strings.ToLower(c.Nombre)] {
			return nil, fmt.Errorf("campos línea %d: nombre de columna inválido %q", line, c.Nombre)
		}
		if seen[strings.ToLower(c.Nombre)] {
			return nil, fmt.Errorf("campos línea %d: columna repetida %q", line, c.Nombre)
		}
		if !typeRe.MatchString(c.Tipo) {
			return nil, fmt.Errorf("campos línea %d: tipo inválido %q", line, c.Tipo)
		}
		expr, err := xpath.Compile(c.XPath)
		if err != nil {
			return nil, fmt.Errorf("campos línea %d: xpath %q: %w", line, c.XPath, err)
		}
		c.expr = expr
		seen[strings.ToLower(c.Nombre)] = true
		campos = append(campos, c)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(campos) == 0 {
		return nil, errors.New("el archivo campos no define columnas")
	}
	return campos, nil
}

// LoadCampos lee path; si no existe lo crea con DefaultCampos. created
// indica que se escribió el archivo por defecto.
func LoadCampos(path string) (campos []Campo, created bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte(DefaultCampos), 0o644); err != nil {
			return nil, false, fmt.Errorf("no se pudo crear el archivo de campos por defecto: %w", err)
		}
		campos, err = ParseCampos(strings.NewReader(DefaultCampos))
		return campos, true, err
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()
	campos, err = ParseCampos(f)
	return campos, false, err
}
