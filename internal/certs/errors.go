package certs

import (
	"errors"
	"fmt"
)

// ErrCertificate agrupa los errores de material criptográfico (certificado o llave).
var ErrCertificate = errors.New("certs: certificado inválido")

var (
	ErrInvalidCertificate = fmt.Errorf("%w: no se pudo parsear el certificado", ErrCertificate)
	ErrInvalidKey         = fmt.Errorf("%w: no se pudo parsear la llave privada", ErrCertificate)
	ErrKeyMismatch        = fmt.Errorf("%w: la llave no corresponde al certificado", ErrCertificate)
	ErrNoSubjectField     = fmt.Errorf("%w: el sujeto no contiene el RFC (OID 2.5.4.45)", ErrCertificate)
	ErrNoIssuerName       = fmt.Errorf("%w: el certificado no tiene emisor", ErrCertificate)
)

// ErrUnsupportedAlgorithm se devuelve cuando la llave no puede firmar RSA-SHA1 PKCS#1 v1.5.
var ErrUnsupportedAlgorithm = errors.New("certs: algoritmo de firma no soportado")
