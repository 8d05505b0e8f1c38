package soap

import "strings"

const (
	nsSOAP     = "http://schemas.xmlsoap.org/soap/envelope/"
	nsWSU      = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"
	nsWSSE     = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	nsDSig     = "http://www.w3.org/2000/09/xmldsig#"
	nsXSI      = "http://www.w3.org/2001/XMLSchema-instance"
	nsXSD      = "http://www.w3.org/2001/XMLSchema"
	nsAuth     = "http://DescargaMasivaTerceros.gob.mx"
	nsDescarga = "http://DescargaMasivaTerceros.sat.gob.mx"

	valueTypeX509  = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-x509-token-profile-1.0#X509v3"
	encodingBase64 = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary"
)

// SOAPAction por operación.
const (
	ActionAuthenticate = "http://DescargaMasivaTerceros.gob.mx/IAutenticacion/Autentica"
	ActionQueryPrefix  = "http://DescargaMasivaTerceros.sat.gob.mx/ISolicitaDescargaService/"
	ActionVerify       = "http://DescargaMasivaTerceros.sat.gob.mx/IVerificaSolicitudDescargaService/VerificaSolicitudDescarga"
	ActionDownload     = "http://DescargaMasivaTerceros.sat.gob.mx/IDescargaMasivaTercerosService/Descargar"
)

// The functions below produce the exact byte sequences the server digests
// and verifies. Do not reformat them.

// AuthTimestamp es el bloque u:Timestamp tal como se digiere.
func AuthTimestamp(created, expires string) string {
	return `<u:Timestamp xmlns:u="` + nsWSU + `" u:Id="_0"><u:Created>` + created +
		`</u:Created><u:Expires>` + expires + `</u:Expires></u:Timestamp>`
}

// AuthSignedInfo firma la referencia #_0 con exc-c14n.
func AuthSignedInfo(digest string) string {
	return `<SignedInfo xmlns="http://www.w3.org/2000/09/xmldsig#">` +
		`<CanonicalizationMethod Algorithm="http://www.w3.org/2001/10/xml-exc-c14n#"></CanonicalizationMethod>` +
		`<SignatureMethod Algorithm="http://www.w3.org/2000/09/xmldsig#rsa-sha1"></SignatureMethod>` +
		`<Reference URI="#_0"><Transforms><Transform Algorithm="http://www.w3.org/2001/10/xml-exc-c14n#"></Transform></Transforms>` +
		`<DigestMethod Algorithm="http://www.w3.org/2000/09/xmldsig#sha1"></DigestMethod>` +
		`<DigestValue>` + digest + `</DigestValue></Reference></SignedInfo>`
}

// SignedInfo is used by Query, Verify and Download: c14n 2001 with an
// enveloped-signature transform over the whole document.
func SignedInfo(digest string) string {
	return `<SignedInfo xmlns="http://www.w3.org/2000/09/xmldsig#">` +
		`<CanonicalizationMethod Algorithm="http://www.w3.org/TR/2001/REC-xml-c14n-20010315"></CanonicalizationMethod>` +
		`<SignatureMethod Algorithm="http://www.w3.org/2000/09/xmldsig#rsa-sha1"></SignatureMethod>` +
		`<Reference URI=""><Transforms><Transform Algorithm="http://www.w3.org/2000/09/xmldsig#enveloped-signature"></Transform></Transforms>` +
		`<DigestMethod Algorithm="http://www.w3.org/2000/09/xmldsig#sha1"></DigestMethod>` +
		`<DigestValue>` + digest + `</DigestValue></Reference></SignedInfo>`
}

func QueryDigestInfo(endpoint, node string) string {
	return `<` + endpoint + ` xmlns="` + nsDescarga + `">` + node + `</` + endpoint + `>`
}

func VerifyDigestInfo(node string) string {
	return `<des:VerificaSolicitudDescarga xmlns:des="` + nsDescarga + `">` + node + `</des:VerificaSolicitudDescarga>`
}

func DownloadDigestInfo(node string) string {
	return `<des:PeticionDescargaMasivaTercerosEntrada xmlns:des="` + nsDescarga + `">` + node + `</des:PeticionDescargaMasivaTercerosEntrada>`
}

type attr struct {
	Key, Value string
}

// renderNode renders <name a="v" ...></name> keeping attrs in slice order.
func renderNode(name string, attrs []attr) string {
	var sb strings.Builder
	sb.WriteString("<")
	sb.WriteString(name)
	for _, a := range attrs {
		sb.WriteString(" ")
		sb.WriteString(a.Key)
		sb.WriteString(`="`)
		sb.WriteString(escapeAttr(a.Value))
		sb.WriteString(`"`)
	}
	sb.WriteString("></")
	sb.WriteString(name)
	sb.WriteString(">")
	return sb.String()
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	`"`, "&quot;",
	"\t", "&#x9;",
	"\n", "&#xA;",
	"\r", "&#xD;",
)

// escapeAttr applies canonical XML (c14n) attribute escaping.
func escapeAttr(s string) string { return attrEscaper.Replace(s) }
