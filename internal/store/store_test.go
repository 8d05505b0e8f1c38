package store_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"descargamasiva/internal/response"
	"descargamasiva/internal/store"
	"descargamasiva/internal/token"
)

var base = time.Date(2024, 5, 3, 18, 30, 1, 0, time.UTC)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.DriverSQLite, filepath.Join(t.TempDir(), "sat.db"),
		store.WithClock(func() time.Time { return base }))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), "postgres", "x")
	assert.Error(t, err)
}

func TestRequests_Lifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRequest(ctx, store.Request{
		ID: "a", RFC: "EKU9003173C9", EndPoint: "facturas", Tipo: "SolicitaDescargaEmitidos", Estado: response.StateAccepted,
	}))
	require.NoError(t, s.SaveRequest(ctx, store.Request{
		ID: "b", RFC: "EKU9003173C9", EndPoint: "retenciones", Tipo: "SolicitaDescargaRecibidos", Estado: response.StateAccepted,
	}))
	// repetida: se ignora
	require.NoError(t, s.SaveRequest(ctx, store.Request{ID: "a", RFC: "otro", EndPoint: "facturas", Tipo: "x"}))

	pending, err := s.PendingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].ID)
	assert.Equal(t, "EKU9003173C9", pending[0].RFC)
	assert.Equal(t, base, pending[0].CreatedAt)

	require.NoError(t, s.UpdateRequest(ctx, "a", response.StateCompleted, 12))
	pending, err = s.PendingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].ID)

	r, ok, err := s.GetRequest(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, response.StateCompleted, r.Estado)
	assert.Equal(t, 12, r.NumeroCFDIs)

	_, ok, err = s.GetRequest(ctx, "zzz")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, s.UpdateRequest(ctx, "zzz", response.StateCompleted, 0))
}

func TestPackages(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddPackages(ctx, "a", []string{"p2", "p1"}))
	require.NoError(t, s.AddPackages(ctx, "a", []string{"p1"}))

	pkgs, err := s.PendingPackages(ctx)
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	assert.Equal(t, "p1", pkgs[0].ID)
	assert.Equal(t, "a", pkgs[0].RequestID)
	assert.False(t, pkgs[0].Downloaded)

	require.NoError(t, s.MarkDownloaded(ctx, "p1"))
	require.NoError(t, s.MarkDownloaded(ctx, "manual"))
	pkgs, err = s.PendingPackages(ctx)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "p2", pkgs[0].ID)
}

func TestTokens_StoreRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, ok, err := s.LoadToken(ctx, token.Primary)
	require.NoError(t, err)
	assert.False(t, ok)

	first := token.Token{CreatedAt: base, ExpiresAt: base.Add(5 * time.Minute), Value: "uno"}
	require.NoError(t, s.SaveToken(ctx, token.Primary, first))
	second := token.Token{CreatedAt: base.Add(time.Minute), ExpiresAt: base.Add(6 * time.Minute), Value: "dos"}
	require.NoError(t, s.SaveToken(ctx, token.Primary, second))
	require.NoError(t, s.SaveToken(ctx, token.Retention, first))

	got, ok, err := s.LoadToken(ctx, token.Primary)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second, got)

	all, err := s.Tokens(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, token.Primary, all[0].Audience)
	assert.Equal(t, "dos", all[0].Value)
	assert.Equal(t, token.Retention, all[1].Audience)
}

func TestTokens_CacheReusesStoredToken(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveToken(ctx, token.Primary,
		token.Token{CreatedAt: base, ExpiresAt: base.Add(5 * time.Minute), Value: "guardado"}))

	calls := 0
	c := token.NewCache(token.AuthenticatorFunc(func(context.Context, token.Audience) (token.Token, error) {
		calls++
		return token.Token{CreatedAt: base, ExpiresAt: base.Add(10 * time.Minute), Value: "nuevo"}, nil
	}), token.WithStore(s))

	got, err := c.Get(ctx, token.Primary, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "guardado", got.Value)
	assert.Equal(t, 0, calls)

	c.Reset()
	got, err = c.Get(ctx, token.Primary, base.Add(6*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "nuevo", got.Value)
	assert.Equal(t, 1, calls)

	stored, _, err := s.LoadToken(ctx, token.Primary)
	require.NoError(t, err)
	assert.Equal(t, "nuevo", stored.Value)
}

func TestParseCampos(t *testing.T) {
	campos, err := store.ParseCampos(strings.NewReader(store.DefaultCampos))
	require.NoError(t, err)
	require.Len(t, campos, 4)
	assert.Equal(t, "emisor_rfc", campos[0].Nombre)
	assert.Equal(t, "CHAR(13)", campos[0].Tipo)
	assert.Equal(t, "string(//*[local-name()='Emisor']/@Rfc)", campos[0].XPath)

	bad := []string{
		"solo_nombre TEXT",
		"uuid TEXT string(//@UUID)",
		"a-b TEXT string(//@A)",
		"a TEXT;DROP string(//@A)",
		"a TEXT string(//@A)\na TEXT string(//@B)",
		"a TEXT string(//[",
		"# vacío",
	}
	for _, in := range bad {
		_, err := store.ParseCampos(strings.NewReader(in))
		assert.Error(t, err, in)
	}
}

func TestLoadCampos_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campos")

	campos, created, err := store.LoadCampos(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, campos, 4)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, store.DefaultCampos, string(b))

	_, created, err = store.LoadCampos(path)
	require.NoError(t, err)
	assert.False(t, created)
}

const cfdiTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" xmlns:tfd="http://www.sat.gob.mx/TimbreFiscalDigital" Fecha="%s" Total="%s">
  <cfdi:Emisor Rfc="%s"/>
  <cfdi:Receptor Rfc="XAXX010101000"/>
  <cfdi:Complemento><tfd:TimbreFiscalDigital UUID="%s"/></cfdi:Complemento>
</cfdi:Comprobante>`

func writeCFDI(t *testing.T, dir, name, fecha, total, emisor, uuid string) {
	t.Helper()
	body := fmt.Sprintf(cfdiTemplate, fecha, total, emisor, uuid)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestSyncCFDIsAndReport(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeCFDI(t, dir, "a.xml", "2024-01-02T10:00:00", "100.50", "EKU9003173C9", "AAAA-1")
	writeCFDI(t, dir, "b.xml", "2024-01-01T09:00:00", "20.00", "EKU9003173C9", "BBBB-2")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "roto.xml"), []byte("<cfdi:Comprobante"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notas.txt"), []byte("x"), 0o644))

	campos, err := store.ParseCampos(strings.NewReader(`emisor TEXT string(//*[local-name()='Emisor']/@Rfc)
fecha TEXT string(//*[local-name()='Comprobante']/@Fecha)
total TEXT string(//*[local-name()='Comprobante']/@Total)
`))
	require.NoError(t, err)

	res, err := s.SyncCFDIs(ctx, dir, campos)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 0, res.Existing)
	assert.Equal(t, []string{filepath.Join(dir, "roto.xml")}, res.Failed)

	// idempotente
	res, err = s.SyncCFDIs(ctx, dir, campos)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 2, res.Existing)

	var out bytes.Buffer
	n, err := s.Report(ctx, "SELECT uuid, emisor, fecha, total FROM cfdis ORDER BY fecha ASC", &out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "uuid|emisor|fecha|total\n"+
		"BBBB-2|EKU9003173C9|2024-01-01T09:00:00|20.00\n"+
		"AAAA-1|EKU9003173C9|2024-01-02T10:00:00|100.50\n", out.String())
}

func TestSyncCFDIs_AddsNewColumns(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeCFDI(t, dir, "a.xml", "2024-01-02T10:00:00", "100.50", "EKU9003173C9", "AAAA-1")

	first, err := store.ParseCampos(strings.NewReader(`emisor TEXT string(//*[local-name()='Emisor']/@Rfc)`))
	require.NoError(t, err)
	_, err = s.SyncCFDIs(ctx, dir, first)
	require.NoError(t, err)

	second, err := store.ParseCampos(strings.NewReader(`emisor TEXT string(//*[local-name()='Emisor']/@Rfc)
receptor TEXT string(//*[local-name()='Receptor']/@Rfc)`))
	require.NoError(t, err)
	_, err = s.SyncCFDIs(ctx, dir, second)
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = s.Report(ctx, "SELECT uuid, receptor FROM cfdis", &out)
	require.NoError(t, err)
	assert.Equal(t, "uuid|receptor\nAAAA-1|NULL\n", out.String())
}

func TestReport_InvalidQuery(t *testing.T) {
	s := openStore(t)
	_, err := s.Report(context.Background(), "SELECT * FROM no_existe", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestDropCFDIs_Rebuild(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeCFDI(t, dir, "a.xml", "2024-01-02T10:00:00", "100.50", "EKU9003173C9", "AAAA-1")

	campos, err := store.ParseCampos(strings.NewReader(`total TEXT string(//*[local-name()='Comprobante']/@Total)`))
	require.NoError(t, err)
	_, err = s.SyncCFDIs(ctx, dir, campos)
	require.NoError(t, err)

	require.NoError(t, s.DropCFDIs(ctx))
	require.NoError(t, s.DropCFDIs(ctx))

	res, err := s.SyncCFDIs(ctx, dir, campos)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
}
