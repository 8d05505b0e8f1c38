package certs

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/pkcs12"
)

// ParseCertificate acepta el .cer en PEM o DER.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		der = block.Bytes
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return cert, nil
}

// ParseKey reads a SAT .key file: PKCS#8 DER (or PEM), encrypted when a
// password is given.
func ParseKey(data, password []byte) (*rsa.PrivateKey, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		der = block.Bytes
	}
	var (
		key *rsa.PrivateKey
		err error
	)
	if len(password) > 0 {
		key, err = pkcs8.ParsePKCS8PrivateKeyRSA(der, password)
	} else {
		key, err = pkcs8.ParsePKCS8PrivateKeyRSA(der)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// Parse construye la identidad a partir de los bytes del .cer y del .key.
func Parse(cerData, keyData, password []byte) (*Identity, error) {
	cert, err := ParseCertificate(cerData)
	if err != nil {
		return nil, err
	}
	key, err := ParseKey(keyData, password)
	if err != nil {
		return nil, err
	}
	return New(cert, key)
}

// LoadFiles lee el par .cer/.key del disco.
func LoadFiles(cerPath, keyPath string, password []byte) (*Identity, error) {
	cerData, err := os.ReadFile(cerPath)
	if err != nil {
		return nil, fmt.Errorf("leer certificado: %w", err)
	}
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("leer llave: %w", err)
	}
	return Parse(cerData, keyData, password)
}

// ParsePKCS12 decodifica un .pfx con una sola llave y un solo certificado.
func ParsePKCS12(data []byte, password string) (*Identity, error) {
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("%w: pkcs12: %v", ErrInvalidKey, err)
	}
	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: la llave del pfx no es RSA", ErrInvalidKey)
	}
	return New(cert, key)
}

// LoadPKCS12 lee un .pfx del disco.
func LoadPKCS12(path, password string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer pfx: %w", err)
	}
	return ParsePKCS12(data, password)
}
