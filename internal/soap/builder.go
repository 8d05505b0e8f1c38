package soap

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/beevik/etree"
)

var (
	// ErrDataConversion se devuelve cuando un fragmento no es UTF-8 válido.
	ErrDataConversion = errors.New("soap: conversión de datos fallida")
	// ErrInvalidParams agrupa los errores de validación de InvoiceParams.
	ErrInvalidParams = errors.New("soap: parámetros inválidos")
)

// Signer es lo que el constructor necesita de la e.firma.
type Signer interface {
	SubjectID() (string, error)
	IssuerName() (string, error)
	SerialNumber() string
	CertificateBase64() string
	DigestBase64(data []byte) string
	Sign(data []byte) ([]byte, error)
}

// Envelope is a signed, single-use request body.
type Envelope struct {
	Action         string
	Body           string
	DigestValue    string
	SignatureValue string
}

// TimestampLayout is the WS-Security Created/Expires format.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// AuthValidity is the window requested in the Timestamp block. The
// Timestamp carries u:Expires as well as u:Created; the SAT accepts both
// forms and the issued token window comes from its response.
const AuthValidity = 5 * time.Minute

// signature runs the shared recipe: digest the digest-info bytes, embed the
// digest in the SignedInfo literal and sign those bytes.
func signature(s Signer, digestInfo string, signedInfo func(string) string) (digest, signed, sigValue string, err error) {
	if !utf8.ValidString(digestInfo) {
		return "", "", "", fmt.Errorf("%w: digest info", ErrDataConversion)
	}
	digest = s.DigestBase64([]byte(digestInfo))
	signed = signedInfo(digest)
	if !utf8.ValidString(signed) {
		return "", "", "", fmt.Errorf("%w: signed info", ErrDataConversion)
	}
	raw, err := s.Sign([]byte(signed))
	if err != nil {
		return "", "", "", fmt.Errorf("firmar SignedInfo: %w", err)
	}
	return digest, signed, base64.StdEncoding.EncodeToString(raw), nil
}

// signedInfoElement convierte el literal firmado en sub-árbol; el namespace
// lo declara el elemento Signature que lo contiene.
func signedInfoElement(signedInfo string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(signedInfo); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataConversion, err)
	}
	root := doc.Root()
	root.RemoveAttr("xmlns")
	return root, nil
}

func x509Signature(s Signer, signedInfo, sigValue string) (*etree.Element, error) {
	issuer, err := s.IssuerName()
	if err != nil {
		return nil, err
	}
	si, err := signedInfoElement(signedInfo)
	if err != nil {
		return nil, err
	}
	sig := etree.NewElement("Signature")
	sig.CreateAttr("xmlns", nsDSig)
	sig.AddChild(si)
	sig.CreateElement("SignatureValue").SetText(sigValue)
	data := sig.CreateElement("KeyInfo").CreateElement("X509Data")
	issuerSerial := data.CreateElement("X509IssuerSerial")
	issuerSerial.CreateElement("X509IssuerName").SetText(issuer)
	issuerSerial.CreateElement("X509SerialNumber").SetText(s.SerialNumber())
	data.CreateElement("X509Certificate").SetText(s.CertificateBase64())
	return sig, nil
}

func serialize(root *etree.Element) (string, error) {
	doc := etree.NewDocument()
	doc.WriteSettings.CanonicalAttrVal = true
	doc.SetRoot(root)
	out, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("serializar sobre: %w", err)
	}
	return out, nil
}

func setAttrs(el *etree.Element, attrs []attr) {
	for _, a := range attrs {
		el.CreateAttr(a.Key, a.Value)
	}
}

// BuildAuthenticate builds the Autentica envelope. tokenID is the
// BinarySecurityToken reference id, e.g. "uuid-<uuid>-1".
func BuildAuthenticate(s Signer, created time.Time, tokenID string) (*Envelope, error) {
	c := created.UTC().Format(TimestampLayout)
	e := created.UTC().Add(AuthValidity).Format(TimestampLayout)

	digest, signed, sigValue, err := signature(s, AuthTimestamp(c, e), AuthSignedInfo)
	if err != nil {
		return nil, err
	}
	si, err := signedInfoElement(signed)
	if err != nil {
		return nil, err
	}

	env := etree.NewElement("s:Envelope")
	env.CreateAttr("xmlns:s", nsSOAP)
	env.CreateAttr("xmlns:u", nsWSU)
	sec := env.CreateElement("s:Header").CreateElement("o:Security")
	sec.CreateAttr("s:mustUnderstand", "1")
	sec.CreateAttr("xmlns:o", nsWSSE)

	ts := sec.CreateElement("u:Timestamp")
	ts.CreateAttr("u:Id", "_0")
	ts.CreateElement("u:Created").SetText(c)
	ts.CreateElement("u:Expires").SetText(e)

	bst := sec.CreateElement("o:BinarySecurityToken")
	bst.CreateAttr("u:Id", tokenID)
	bst.CreateAttr("ValueType", valueTypeX509)
	bst.CreateAttr("EncodingType", encodingBase64)
	bst.SetText(s.CertificateBase64())

	sig := sec.CreateElement("Signature")
	sig.CreateAttr("xmlns", nsDSig)
	sig.AddChild(si)
	sig.CreateElement("SignatureValue").SetText(sigValue)
	ref := sig.CreateElement("KeyInfo").CreateElement("o:SecurityTokenReference").CreateElement("o:Reference")
	ref.CreateAttr("ValueType", valueTypeX509)
	ref.CreateAttr("URI", "#"+tokenID)

	env.CreateElement("s:Body").CreateElement("Autentica").CreateAttr("xmlns", nsAuth)

	body, err := serialize(env)
	if err != nil {
		return nil, err
	}
	return &Envelope{Action: ActionAuthenticate, Body: body, DigestValue: digest, SignatureValue: sigValue}, nil
}

// BuildQuery construye SolicitaDescarga{Emitidos,Recibidos,Folio}.
func BuildQuery(s Signer, p InvoiceParams) (*Envelope, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rfc, err := s.SubjectID()
	if err != nil {
		return nil, err
	}
	endpoint := p.EndpointName()
	attrs := p.requestAttrs(rfc)

	digest, signed, sigValue, err := signature(s, QueryDigestInfo(endpoint, renderNode("solicitud", attrs)), SignedInfo)
	if err != nil {
		return nil, err
	}
	sig, err := x509Signature(s, signed, sigValue)
	if err != nil {
		return nil, err
	}

	env := etree.NewElement("s:Envelope")
	env.CreateAttr("xmlns:s", nsSOAP)
	env.CreateElement("s:Header")
	body := env.CreateElement("s:Body")
	body.CreateAttr("xmlns:xsi", nsXSI)
	body.CreateAttr("xmlns:xsd", nsXSD)
	op := body.CreateElement(endpoint)
	op.CreateAttr("xmlns", nsDescarga)
	req := op.CreateElement("solicitud")
	setAttrs(req, attrs)
	req.AddChild(sig)

	out, err := serialize(env)
	if err != nil {
		return nil, err
	}
	return &Envelope{Action: ActionQueryPrefix + endpoint, Body: out, DigestValue: digest, SignatureValue: sigValue}, nil
}

// desEnvelope arma soapenv:Envelope > soapenv:Body > des:<operation> > des:<inner>.
func desEnvelope(operation, inner string, attrs []attr, sig *etree.Element) *etree.Element {
	env := etree.NewElement("soapenv:Envelope")
	env.CreateAttr("xmlns:soapenv", nsSOAP)
	env.CreateAttr("xmlns:des", nsDescarga)
	env.CreateAttr("xmlns:xd", nsDSig)
	env.CreateElement("soapenv:Header")
	el := env.CreateElement("soapenv:Body").CreateElement(operation).CreateElement(inner)
	setAttrs(el, attrs)
	el.AddChild(sig)
	return env
}

// BuildVerify construye VerificaSolicitudDescarga para requestID.
func BuildVerify(s Signer, requestID string) (*Envelope, error) {
	rfc, err := s.SubjectID()
	if err != nil {
		return nil, err
	}
	attrs := []attr{{"IdSolicitud", requestID}, {"RfcSolicitante", rfc}}

	digest, signed, sigValue, err := signature(s, VerifyDigestInfo(renderNode("des:solicitud", attrs)), SignedInfo)
	if err != nil {
		return nil, err
	}
	sig, err := x509Signature(s, signed, sigValue)
	if err != nil {
		return nil, err
	}
	out, err := serialize(desEnvelope("des:VerificaSolicitudDescarga", "des:solicitud", attrs, sig))
	if err != nil {
		return nil, err
	}
	return &Envelope{Action: ActionVerify, Body: out, DigestValue: digest, SignatureValue: sigValue}, nil
}

// BuildDownload construye PeticionDescargaMasivaTercerosEntrada para packageID.
func BuildDownload(s Signer, packageID string) (*Envelope, error) {
	rfc, err := s.SubjectID()
	if err != nil {
		return nil, err
	}
	attrs := []attr{{"IdPaquete", packageID}, {"RfcSolicitante", rfc}}

	digest, signed, sigValue, err := signature(s, DownloadDigestInfo(renderNode("des:peticionDescarga", attrs)), SignedInfo)
	if err != nil {
		return nil, err
	}
	sig, err := x509Signature(s, signed, sigValue)
	if err != nil {
		return nil, err
	}
	out, err := serialize(desEnvelope("des:PeticionDescargaMasivaTercerosEntrada", "des:peticionDescarga", attrs, sig))
	if err != nil {
		return nil, err
	}
	return &Envelope{Action: ActionDownload, Body: out, DigestValue: digest, SignatureValue: sigValue}, nil
}
