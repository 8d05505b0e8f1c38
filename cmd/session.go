package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"descargamasiva/internal/certs"
	"descargamasiva/internal/descarga"
	"descargamasiva/internal/soap"
	"descargamasiva/internal/store"
	"descargamasiva/internal/token"
	"descargamasiva/internal/transport"
)

// rfcConfig es el config.json que escribe add-rfc.
type rfcConfig struct {
	KeyPath string `json:"keyPath,omitempty"`
	CerPath string `json:"cerPath,omitempty"`
	PfxPath string `json:"pfxPath,omitempty"`
}

func loadRFCConfig(dir string) (rfcConfig, error) {
	var c rfcConfig
	b, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("config.json inválido: %w", err)
	}
	return c, nil
}

func saveRFCConfig(dir string, c rfcConfig) (string, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "config.json")
	return path, os.WriteFile(path, b, 0o600)
}

// readPassword toma SAT_PASSWORD o la pide en la terminal.
func readPassword(out io.Writer) ([]byte, error) {
	if pw, ok := os.LookupEnv("SAT_PASSWORD"); ok {
		return []byte(pw), nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("no hay terminal para pedir la contraseña; defina SAT_PASSWORD")
	}
	fmt.Fprint(out, "Por favor, introduce la contraseña de la e.firma: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return nil, fmt.Errorf("error al leer la contraseña: %w", err)
	}
	return pw, nil
}

func loadIdentity(c rfcConfig, password []byte) (*certs.Identity, error) {
	if c.PfxPath != "" {
		return certs.LoadPKCS12(c.PfxPath, string(password))
	}
	if c.KeyPath == "" || c.CerPath == "" {
		return nil, errors.New("config.json no tiene keyPath/cerPath ni pfxPath")
	}
	return certs.LoadFiles(c.CerPath, c.KeyPath, password)
}

// session reúne lo que necesita un comando para un RFC.
type session struct {
	rfc string
	dir string
	db  *store.Store
	svc *descarga.Service
}

// openSession abre la base del RFC. Con withService también carga la
// e.firma y prepara el cliente SOAP.
func openSession(ctx context.Context, rfc string, withService bool, out io.Writer) (*session, error) {
	rfc = strings.ToUpper(strings.TrimSpace(rfc))
	dir := appCfg.RFCDir(rfc)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no se encontró configuración para el RFC %s; ejecute 'add-rfc' primero", rfc)
	}

	log := appLog.With().Str("rfc", rfc).Logger()
	db, err := store.Open(ctx, appCfg.DB.Driver, appCfg.DBPath(rfc), store.WithLogger(log))
	if err != nil {
		return nil, err
	}
	s := &session{rfc: rfc, dir: dir, db: db}
	if !withService {
		return s, nil
	}

	rc, err := loadRFCConfig(dir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("no se pudo leer la configuración del RFC %s: %w", rfc, err)
	}
	password, err := readPassword(out)
	if err != nil {
		db.Close()
		return nil, err
	}
	id, err := loadIdentity(rc, password)
	if err != nil {
		appLog.Error().Err(err).Str("rfc", rfc).Msg("e.firma inválida")
		db.Close()
		return nil, fmt.Errorf("error al cargar la e.firma: %w", err)
	}

	client := transport.New(transport.Config{
		Timeout:      appCfg.HTTP.Timeout,
		MaxBodyBytes: appCfg.HTTP.MaxBodyBytes,
	}, nil, log)
	opts := []descarga.Option{
		descarga.WithLogger(log),
		descarga.WithTokenStore(db),
	}
	if appCfg.Endpoints.CFDI != "" {
		opts = append(opts, descarga.WithEndpoints(token.Primary, descarga.WithBase(appCfg.Endpoints.CFDI)))
	}
	if appCfg.Endpoints.Reten != "" {
		opts = append(opts, descarga.WithEndpoints(token.Retention, descarga.WithBase(appCfg.Endpoints.Reten)))
	}
	s.svc = descarga.New(id, client, opts...)
	return s, nil
}

func (s *session) cfdiDir() string { return filepath.Join(s.dir, "cfdis") }

func (s *session) Close() error { return s.db.Close() }

// audienceFor deduce la audiencia de una solicitud registrada.
func (s *session) audienceFor(ctx context.Context, requestID string, fallback token.Audience) token.Audience {
	if requestID == "" {
		return fallback
	}
	r, ok, err := s.db.GetRequest(ctx, requestID)
	if err != nil || !ok {
		return fallback
	}
	return token.AudienceFor(r.EndPoint == string(soap.Retenciones))
}
