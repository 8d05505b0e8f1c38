package response

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"descargamasiva/internal/token"
)

// CodeAccepted es el CodEstatus de una petición aceptada.
const CodeAccepted = 5000

// ParseAuthenticate reads created, expires and the token value from the
// first three non-blank text nodes of an Autentica response.
func ParseAuthenticate(status int, body []byte) (token.Token, error) {
	p, err := Parse(status, body, nil)
	if err != nil {
		return token.Token{}, err
	}
	if len(p.Contents) < 3 {
		return token.Token{}, fmt.Errorf("%w: se esperaban 3 valores, llegaron %d", ErrDateParsingFailed, len(p.Contents))
	}
	created, err := time.Parse(time.RFC3339Nano, p.Contents[0])
	if err != nil {
		return token.Token{}, fmt.Errorf("%w: created: %v", ErrDateParsingFailed, err)
	}
	expires, err := time.Parse(time.RFC3339Nano, p.Contents[1])
	if err != nil {
		return token.Token{}, fmt.Errorf("%w: expires: %v", ErrDateParsingFailed, err)
	}
	if !created.Before(expires) {
		return token.Token{}, fmt.Errorf("%w: el token expira antes de crearse", ErrMalformedResponse)
	}
	return token.Token{CreatedAt: created, ExpiresAt: expires, Value: p.Contents[2]}, nil
}

// QueryResult es la respuesta de SolicitaDescarga*.
type QueryResult struct {
	CodEstatus     int
	Mensaje        string
	IdSolicitud    string
	RfcSolicitante string
	Fields         Fields
}

// Accepted reporta CodEstatus 5000.
func (r *QueryResult) Accepted() bool { return r.CodEstatus == CodeAccepted }

// ParseQuery toma los atributos del elemento *Result.
func ParseQuery(status int, body []byte) (*QueryResult, error) {
	p, err := Parse(status, body, Suffix("Result"))
	if err != nil {
		return nil, err
	}
	code, _ := p.Fields.Int("CodEstatus")
	return &QueryResult{
		CodEstatus:     code,
		Mensaje:        p.Fields.String("Mensaje"),
		IdSolicitud:    p.Fields.String("IdSolicitud"),
		RfcSolicitante: p.Fields.String("RfcSolicitante"),
		Fields:         p.Fields,
	}, nil
}

// VerifyResult es la respuesta de VerificaSolicitudDescarga.
type VerifyResult struct {
	CodEstatus            int
	Mensaje               string
	Estado                VerificationState
	CodigoEstadoSolicitud int
	NumeroCFDIs           int
	IdsPaquetes           []string
	Fields                Fields
}

func (r *VerifyResult) Accepted() bool { return r.CodEstatus == CodeAccepted }

// ParseVerify lee VerificaSolicitudDescargaResult; los textos del documento
// son los ids de paquete.
func ParseVerify(status int, body []byte) (*VerifyResult, error) {
	p, err := Parse(status, body, LocalName("VerificaSolicitudDescargaResult"))
	if err != nil {
		return nil, err
	}
	code, _ := p.Fields.Int("CodEstatus")
	estado, _ := p.Fields.Int("EstadoSolicitud")
	codigo, _ := p.Fields.Int("CodigoEstadoSolicitud")
	numero, _ := p.Fields.Int("NumeroCFDIs")
	return &VerifyResult{
		CodEstatus:            code,
		Mensaje:               p.Fields.String("Mensaje"),
		Estado:                VerificationState(estado),
		CodigoEstadoSolicitud: codigo,
		NumeroCFDIs:           numero,
		IdsPaquetes:           p.Contents,
		Fields:                p.Fields,
	}, nil
}

// DownloadResult es la respuesta de Descargar. Paquete es el zip decodificado.
type DownloadResult struct {
	CodEstatus int
	Mensaje    string
	Paquete    []byte
	Fields     Fields
}

func (r *DownloadResult) Accepted() bool { return r.CodEstatus == CodeAccepted }

// ParseDownload lee el encabezado h:respuesta y el paquete en base64.
func ParseDownload(status int, body []byte) (*DownloadResult, error) {
	p, err := Parse(status, body, LocalName("respuesta"))
	if err != nil {
		return nil, err
	}
	code, _ := p.Fields.Int("CodEstatus")
	r := &DownloadResult{
		CodEstatus: code,
		Mensaje:    p.Fields.String("Mensaje"),
		Fields:     p.Fields,
	}
	if len(p.Contents) > 0 {
		r.Paquete, err = base64.StdEncoding.DecodeString(strings.Join(p.Contents, ""))
		if err != nil {
			return nil, fmt.Errorf("%w: paquete: %v", ErrMalformedResponse, err)
		}
	}
	return r, nil
}
