package descarga

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"descargamasiva/internal/response"
	"descargamasiva/internal/soap"
	"descargamasiva/internal/token"
)

// ErrNotConfigured: se intentó una operación sin e.firma.
var ErrNotConfigured = errors.New("descarga: no se cargaron las credenciales (e.firma)")

const contentType = "text/xml; charset=utf-8"

// Requester sends one POST and returns the raw status and body.
type Requester interface {
	Send(ctx context.Context, url string, header http.Header, body []byte) (int, []byte, error)
}

// Service is the client for the four SAT operations. It owns the identity
// and the token cache; several services can coexist with different RFCs.
type Service struct {
	signer    soap.Signer
	requester Requester
	tokens    *token.Cache
	endpoints map[token.Audience]Endpoints
	now       func() time.Time
	newID     func() string
	log       zerolog.Logger

	tokenOpts []token.Option
}

// Option configura un Service.
type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock fija el reloj usado para firmar y para la vigencia del token.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEndpoints sobreescribe las URLs de una audiencia.
func WithEndpoints(aud token.Audience, ep Endpoints) Option {
	return func(s *Service) { s.endpoints[aud] = ep }
}

// WithTokenStore persiste los tokens entre ejecuciones.
func WithTokenStore(store token.Store) Option {
	return func(s *Service) { s.tokenOpts = append(s.tokenOpts, token.WithStore(store)) }
}

// WithIDGenerator cambia el generador del id del BinarySecurityToken.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// New crea el servicio. signer puede ser nil (también un puntero nil dentro
// de la interfaz); las operaciones devolverán ErrNotConfigured.
func New(signer soap.Signer, requester Requester, opts ...Option) *Service {
	if isNil(signer) {
		signer = nil
	}
	s := &Service{
		signer:    signer,
		requester: requester,
		endpoints: map[token.Audience]Endpoints{
			token.Primary:   DefaultEndpoints(token.Primary),
			token.Retention: DefaultEndpoints(token.Retention),
		},
		now:   time.Now,
		newID: uuid.NewString,
		log:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.tokens = token.NewCache(s, append([]token.Option{token.WithLogger(s.log)}, s.tokenOpts...)...)
	return s
}

// Tokens expone el cache (para forzar renovación o limpiar).
func (s *Service) Tokens() *token.Cache { return s.tokens }

func isNil(signer soap.Signer) bool {
	if signer == nil {
		return true
	}
	v := reflect.ValueOf(signer)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func (s *Service) ready() error {
	if s.signer == nil {
		return ErrNotConfigured
	}
	return nil
}

func (s *Service) send(ctx context.Context, url string, env *soap.Envelope, tok *token.Token) (int, []byte, error) {
	h := http.Header{}
	h.Set("Content-Type", contentType)
	h.Set("SOAPAction", env.Action)
	if tok != nil {
		h.Set("Authorization", tok.Authorization())
	}
	s.log.Debug().Str("url", url).Str("action", env.Action).Msg("enviando petición SAT")
	return s.requester.Send(ctx, url, h, []byte(env.Body))
}

// Authenticate obtiene un token nuevo; implementa token.Authenticator.
func (s *Service) Authenticate(ctx context.Context, aud token.Audience) (token.Token, error) {
	if err := s.ready(); err != nil {
		return token.Token{}, err
	}
	env, err := soap.BuildAuthenticate(s.signer, s.now(), "uuid-"+s.newID()+"-1")
	if err != nil {
		return token.Token{}, fmt.Errorf("construir autenticación: %w", err)
	}
	status, body, err := s.send(ctx, s.endpoints[aud].Auth, env, nil)
	if err != nil {
		return token.Token{}, err
	}
	tok, err := response.ParseAuthenticate(status, body)
	if err != nil {
		return token.Token{}, fmt.Errorf("autenticación %s: %w", aud, err)
	}
	return tok, nil
}

// Token devuelve un token vigente para aud, autenticando solo si hace falta.
func (s *Service) Token(ctx context.Context, aud token.Audience) (token.Token, error) {
	if err := s.ready(); err != nil {
		return token.Token{}, err
	}
	return s.tokens.Get(ctx, aud, s.now())
}

// Query envía una solicitud de descarga. A non-5000 CodEstatus is not an
// error: the service reports rejections inside a 200 response.
func (s *Service) Query(ctx context.Context, p soap.InvoiceParams) (*response.QueryResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	aud := token.AudienceFor(p.IsRetention())
	tok, err := s.Token(ctx, aud)
	if err != nil {
		return nil, err
	}
	env, err := soap.BuildQuery(s.signer, p)
	if err != nil {
		return nil, fmt.Errorf("construir solicitud: %w", err)
	}
	status, body, err := s.send(ctx, s.endpoints[aud].Query, env, &tok)
	if err != nil {
		return nil, err
	}
	return response.ParseQuery(status, body)
}

// Verify consulta el estado de una solicitud.
func (s *Service) Verify(ctx context.Context, aud token.Audience, requestID string) (*response.VerifyResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	tok, err := s.Token(ctx, aud)
	if err != nil {
		return nil, err
	}
	env, err := soap.BuildVerify(s.signer, requestID)
	if err != nil {
		return nil, fmt.Errorf("construir verificación: %w", err)
	}
	status, body, err := s.send(ctx, s.endpoints[aud].Verify, env, &tok)
	if err != nil {
		return nil, err
	}
	return response.ParseVerify(status, body)
}

// Download descarga un paquete.
func (s *Service) Download(ctx context.Context, aud token.Audience, packageID string) (*response.DownloadResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	tok, err := s.Token(ctx, aud)
	if err != nil {
		return nil, err
	}
	env, err := soap.BuildDownload(s.signer, packageID)
	if err != nil {
		return nil, fmt.Errorf("construir descarga: %w", err)
	}
	status, body, err := s.send(ctx, s.endpoints[aud].Download, env, &tok)
	if err != nil {
		return nil, err
	}
	return response.ParseDownload(status, body)
}
