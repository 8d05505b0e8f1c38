package descarga_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"descargamasiva/internal/certs"
	"descargamasiva/internal/descarga"
	"descargamasiva/internal/response"
	"descargamasiva/internal/soap"
	"descargamasiva/internal/token"
	"descargamasiva/internal/transport"
)

var base = time.Date(2024, 5, 3, 18, 30, 1, 0, time.UTC)

type call struct {
	url    string
	header http.Header
	body   string
}

// stubRequester contesta según el SOAPAction.
type stubRequester struct {
	mu      sync.Mutex
	calls   []call
	replies map[string]func() (int, string)
	err     error
}

func (s *stubRequester) Send(_ context.Context, url string, header http.Header, body []byte) (int, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{url: url, header: header.Clone(), body: string(body)})
	if s.err != nil {
		return 0, nil, s.err
	}
	reply, ok := s.replies[header.Get("SOAPAction")]
	if !ok {
		return http.StatusNotFound, nil, nil
	}
	status, b := reply()
	return status, []byte(b), nil
}

func (s *stubRequester) count(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.header.Get("SOAPAction") == action {
			n++
		}
	}
	return n
}

func authReply() (int, string) {
	return 200, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" xmlns:u="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd">` +
		`<s:Header><o:Security xmlns:o="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">` +
		`<u:Timestamp u:Id="_0"><u:Created>2024-05-03T18:30:01.000Z</u:Created><u:Expires>2024-05-03T18:35:01.000Z</u:Expires></u:Timestamp>` +
		`</o:Security></s:Header><s:Body><AutenticaResponse xmlns="http://DescargaMasivaTerceros.gob.mx">` +
		`<AutenticaResult>TOKEN-PRUEBA</AutenticaResult></AutenticaResponse></s:Body></s:Envelope>`
}

func verifyReply() (int, string) {
	return 200, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>` +
		`<VerificaSolicitudDescargaResponse xmlns="http://DescargaMasivaTerceros.sat.gob.mx">` +
		`<VerificaSolicitudDescargaResult CodEstatus="5000" EstadoSolicitud="3" CodigoEstadoSolicitud="5000" NumeroCFDIs="2" Mensaje="Solicitud Aceptada">` +
		`<IdsPaquetes>4E80345D-917F-40BB-A98F-4A73939343C5_01</IdsPaquetes>` +
		`</VerificaSolicitudDescargaResult></VerificaSolicitudDescargaResponse></s:Body></s:Envelope>`
}

func queryReply() (int, string) {
	return 200, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>` +
		`<SolicitaDescargaEmitidosResponse xmlns="http://DescargaMasivaTerceros.sat.gob.mx">` +
		`<SolicitaDescargaEmitidosResult IdSolicitud="8b15cb57-85a4-4ef3-8797-805de260c6bb" RfcSolicitante="EKU9003173C9" CodEstatus="5000" Mensaje="Solicitud Aceptada"/>` +
		`</SolicitaDescargaEmitidosResponse></s:Body></s:Envelope>`
}

func fixtureIdentity(t *testing.T) *certs.Identity {
	t.Helper()
	id, err := certs.LoadFiles("../certs/testdata/fixture.cer", "../certs/testdata/fixture.key", []byte("12345678a"))
	require.NoError(t, err)
	return id
}

func newService(t *testing.T, req *stubRequester, opts ...descarga.Option) *descarga.Service {
	t.Helper()
	opts = append([]descarga.Option{
		descarga.WithClock(func() time.Time { return base }),
		descarga.WithIDGenerator(func() string { return "00000000-0000-0000-0000-000000000001" }),
	}, opts...)
	return descarga.New(fixtureIdentity(t), req, opts...)
}

func TestVerify_AuthenticatesThenVerifies(t *testing.T) {
	req := &stubRequester{replies: map[string]func() (int, string){
		soap.ActionAuthenticate: authReply,
		soap.ActionVerify:       verifyReply,
	}}
	svc := newService(t, req)

	res, err := svc.Verify(context.Background(), token.Primary, "8b15cb57-85a4-4ef3-8797-805de260c6bb")
	require.NoError(t, err)
	assert.True(t, res.Accepted())
	assert.Equal(t, response.StateCompleted, res.Estado)
	assert.Equal(t, 2, res.NumeroCFDIs)
	assert.Equal(t, []string{"4E80345D-917F-40BB-A98F-4A73939343C5_01"}, res.IdsPaquetes)

	require.Len(t, req.calls, 2)
	auth, verify := req.calls[0], req.calls[1]

	assert.Equal(t, "https://cfdidescargamasivasolicitud.clouda.sat.gob.mx/Autenticacion/Autenticacion.svc", auth.url)
	assert.Equal(t, "text/xml; charset=utf-8", auth.header.Get("Content-Type"))
	assert.Empty(t, auth.header.Get("Authorization"))
	assert.Contains(t, auth.body, `u:Id="uuid-00000000-0000-0000-0000-000000000001-1"`)
	assert.Contains(t, auth.body, `<u:Created>2024-05-03T18:30:01.000Z</u:Created>`)

	assert.Equal(t, "https://cfdidescargamasivasolicitud.clouda.sat.gob.mx/VerificaSolicitudDescargaService.svc", verify.url)
	assert.Equal(t, `WRAP access_token="TOKEN-PRUEBA"`, verify.header.Get("Authorization"))
	assert.Contains(t, verify.body, `IdSolicitud="8b15cb57-85a4-4ef3-8797-805de260c6bb"`)
	assert.Contains(t, verify.body, `RfcSolicitante="EKU9003173C9"`)
}

func TestToken_ReusedAcrossOperations(t *testing.T) {
	req := &stubRequester{replies: map[string]func() (int, string){
		soap.ActionAuthenticate: authReply,
		soap.ActionVerify:       verifyReply,
		soap.ActionQueryPrefix + "SolicitaDescargaEmitidos": queryReply,
	}}
	svc := newService(t, req)
	ctx := context.Background()

	p := soap.NewInvoiceParams(base)
	res, err := svc.Query(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "8b15cb57-85a4-4ef3-8797-805de260c6bb", res.IdSolicitud)

	for i := 0; i < 3; i++ {
		_, err := svc.Verify(ctx, token.Primary, res.IdSolicitud)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, req.count(soap.ActionAuthenticate))
	assert.Equal(t, 3, req.count(soap.ActionVerify))
}

func TestToken_ConcurrentCallersShareOneAuthentication(t *testing.T) {
	req := &stubRequester{replies: map[string]func() (int, string){
		soap.ActionAuthenticate: authReply,
		soap.ActionVerify:       verifyReply,
	}}
	svc := newService(t, req)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Verify(context.Background(), token.Primary, "id")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, req.count(soap.ActionAuthenticate))
}

func TestQuery_RetentionUsesRetentionEndpoints(t *testing.T) {
	req := &stubRequester{replies: map[string]func() (int, string){
		soap.ActionAuthenticate: authReply,
		soap.ActionQueryPrefix + "SolicitaDescargaRecibidos": queryReply,
	}}
	svc := newService(t, req)

	p := soap.NewInvoiceParams(base)
	p.Operation = soap.Recibidas
	p.EndPoint = soap.Retenciones
	_, err := svc.Query(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, req.calls, 2)
	assert.True(t, strings.HasPrefix(req.calls[0].url, "https://retendescargamasivasolicitud.clouda.sat.gob.mx/"))
	assert.Equal(t, "https://retendescargamasivasolicitud.clouda.sat.gob.mx/SolicitaDescargaService.svc", req.calls[1].url)
	_, ok := svc.Tokens().Peek(token.Retention)
	assert.True(t, ok)
	_, ok = svc.Tokens().Peek(token.Primary)
	assert.False(t, ok)
}

func TestQuery_InvalidParamsSkipNetwork(t *testing.T) {
	req := &stubRequester{}
	svc := newService(t, req)

	p := soap.NewInvoiceParams(base)
	p.QueryType = "ZIP"
	_, err := svc.Query(context.Background(), p)
	assert.ErrorIs(t, err, soap.ErrInvalidParams)
	assert.Empty(t, req.calls)
}

func TestDownload_DecodesPackage(t *testing.T) {
	zipBytes := testZip(t, map[string]string{"a.xml": "<a/>"})
	req := &stubRequester{replies: map[string]func() (int, string){
		soap.ActionAuthenticate: authReply,
		soap.ActionDownload: func() (int, string) {
			return 200, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Header>` +
				`<h:respuesta CodEstatus="5000" Mensaje="Solicitud Aceptada" xmlns:h="http://DescargaMasivaTerceros.sat.gob.mx"/>` +
				`</s:Header><s:Body><RespuestaDescargaMasivaTercerosSalida xmlns="http://DescargaMasivaTerceros.sat.gob.mx">` +
				`<Paquete>` + base64.StdEncoding.EncodeToString(zipBytes) + `</Paquete>` +
				`</RespuestaDescargaMasivaTercerosSalida></s:Body></s:Envelope>`
		},
	}}
	svc := newService(t, req)

	res, err := svc.Download(context.Background(), token.Primary, "4E80345D-917F-40BB-A98F-4A73939343C5_01")
	require.NoError(t, err)
	assert.True(t, res.Accepted())
	assert.Equal(t, zipBytes, res.Paquete)
	assert.Equal(t, "https://cfdidescargamasiva.clouda.sat.gob.mx/DescargaMasivaService.svc", req.calls[1].url)
	assert.Contains(t, req.calls[1].body, `IdPaquete="4E80345D-917F-40BB-A98F-4A73939343C5_01"`)
}

func TestVerify_HTTPErrorStatus(t *testing.T) {
	req := &stubRequester{replies: map[string]func() (int, string){
		soap.ActionAuthenticate: authReply,
	}}
	svc := newService(t, req)

	_, err := svc.Verify(context.Background(), token.Primary, "id")
	var httpErr *response.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestAuthenticate_TransportErrorPropagates(t *testing.T) {
	req := &stubRequester{err: &transport.Error{URL: "x", Err: errors.New("sin red")}}
	svc := newService(t, req)

	_, err := svc.Token(context.Background(), token.Primary)
	var tErr *transport.Error
	assert.ErrorAs(t, err, &tErr)
	_, ok := svc.Tokens().Peek(token.Primary)
	assert.False(t, ok)
}

func TestService_NotConfigured(t *testing.T) {
	req := &stubRequester{}
	svc := descarga.New(nil, req)
	ctx := context.Background()

	_, err := svc.Query(ctx, soap.NewInvoiceParams(base))
	assert.ErrorIs(t, err, descarga.ErrNotConfigured)
	_, err = svc.Verify(ctx, token.Primary, "id")
	assert.ErrorIs(t, err, descarga.ErrNotConfigured)
	_, err = svc.Download(ctx, token.Primary, "id")
	assert.ErrorIs(t, err, descarga.ErrNotConfigured)
	_, err = svc.Authenticate(ctx, token.Primary)
	assert.ErrorIs(t, err, descarga.ErrNotConfigured)
	assert.Empty(t, req.calls)
}

func TestService_TypedNilSigner(t *testing.T) {
	req := &stubRequester{}
	var id *certs.Identity
	svc := descarga.New(id, req)

	_, err := svc.Verify(context.Background(), token.Primary, "id")
	assert.ErrorIs(t, err, descarga.ErrNotConfigured)
	assert.Empty(t, req.calls)
}

func TestWithEndpoints_Overrides(t *testing.T) {
	req := &stubRequester{replies: map[string]func() (int, string){
		soap.ActionAuthenticate: authReply,
	}}
	svc := newService(t, req, descarga.WithEndpoints(token.Primary, descarga.WithBase("http://stub")))

	_, err := svc.Token(context.Background(), token.Primary)
	require.NoError(t, err)
	assert.Equal(t, "http://stub/Autenticacion/Autenticacion.svc", req.calls[0].url)
}

func testZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractPackage(t *testing.T) {
	dir := t.TempDir()
	data := testZip(t, map[string]string{"a.xml": "<a/>", "sub/b.xml": "<b/>"})

	written, err := descarga.ExtractPackage(data, dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.xml"), filepath.Join(dir, "sub", "b.xml")}, written)

	b, err := os.ReadFile(filepath.Join(dir, "sub", "b.xml"))
	require.NoError(t, err)
	assert.Equal(t, "<b/>", string(b))

	// Una segunda extracción no reescribe nada.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.xml"), []byte("local"), 0o644))
	written, err = descarga.ExtractPackage(data, dir)
	require.NoError(t, err)
	assert.Empty(t, written)
	b, _ = os.ReadFile(filepath.Join(dir, "a.xml"))
	assert.Equal(t, "local", string(b))
}

func TestExtractPackage_RejectsEscape(t *testing.T) {
	dir := t.TempDir()
	data := testZip(t, map[string]string{"../fuera.xml": "<x/>"})

	_, err := descarga.ExtractPackage(data, dir)
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dir), "fuera.xml"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractPackage_NotAZip(t *testing.T) {
	_, err := descarga.ExtractPackage([]byte("no es zip"), t.TempDir())
	assert.Error(t, err)
}
