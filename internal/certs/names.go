package certs

import (
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// OIDSubjectID es el atributo x500UniqueIdentifier donde el SAT coloca el RFC.
const OIDSubjectID = "2.5.4.45"

var issuerLabels = map[string]string{
	"2.5.4.3":              "CN",
	"2.5.4.10":             "O",
	"2.5.4.11":             "OU",
	"2.5.4.9":              "STREET",
	"2.5.4.17":             "PostalCode",
	"2.5.4.6":              "C",
	"2.5.4.8":              "S",
	"2.5.4.7":              "L",
	"1.2.840.113549.1.9.1": "E",
}

// IssuerName renders the issuer as LABEL=value pairs in certificate order.
// The result is embedded verbatim in X509IssuerName.
func IssuerName(cert *x509.Certificate) (string, error) {
	if len(cert.Issuer.Names) == 0 {
		return "", ErrNoIssuerName
	}
	parts := make([]string, 0, len(cert.Issuer.Names))
	for _, attr := range cert.Issuer.Names {
		oid := attr.Type.String()
		label, ok := issuerLabels[oid]
		if !ok {
			label = "OID." + oid
		}
		parts = append(parts, fmt.Sprintf("%s=%v", label, attr.Value))
	}
	return strings.Join(parts, ", "), nil
}

// SubjectID devuelve el valor del atributo 2.5.4.45 del sujeto.
func SubjectID(cert *x509.Certificate) (string, error) {
	for _, attr := range cert.Subject.Names {
		if attr.Type.String() != OIDSubjectID {
			continue
		}
		if v, ok := attr.Value.(string); ok && v != "" {
			return v, nil
		}
	}
	return "", ErrNoSubjectField
}

// SerialNumber is the lowercase hex of the serial INTEGER content octets,
// read from the TBS certificate so leading bytes survive untouched.
func SerialNumber(cert *x509.Certificate) string {
	if raw, ok := rawSerial(cert.RawTBSCertificate); ok {
		return hex.EncodeToString(raw)
	}
	return hex.EncodeToString(cert.SerialNumber.Bytes())
}

func rawSerial(tbs []byte) ([]byte, bool) {
	input := cryptobyte.String(tbs)
	var body cryptobyte.String
	if !input.ReadASN1(&body, cbasn1.SEQUENCE) {
		return nil, false
	}
	// [0] EXPLICIT version, opcional
	if !body.SkipOptionalASN1(cbasn1.Tag(0).Constructed().ContextSpecific()) {
		return nil, false
	}
	var serial cryptobyte.String
	if !body.ReadASN1(&serial, cbasn1.INTEGER) {
		return nil, false
	}
	return serial, true
}
