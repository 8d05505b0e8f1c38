package certs

import (
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	dsig "github.com/russellhaering/goxmldsig"
)

// memoryKeyStore expone el par llave/certificado a goxmldsig.
type memoryKeyStore struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
}

func (m *memoryKeyStore) GetKeyPair() (*rsa.PrivateKey, []byte, error) {
	return m.key, m.cert.Raw, nil
}

// Identity is the e.firma of one taxpayer: certificate plus RSA key.
// It is immutable and safe for concurrent use.
type Identity struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

// New valida que la llave corresponda al certificado.
func New(cert *x509.Certificate, key *rsa.PrivateKey) (*Identity, error) {
	if cert == nil {
		return nil, ErrInvalidCertificate
	}
	if key == nil {
		return nil, ErrInvalidKey
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: el certificado no contiene una llave RSA", ErrKeyMismatch)
	}
	if !key.PublicKey.Equal(pub) {
		return nil, ErrKeyMismatch
	}
	return &Identity{cert: cert, key: key}, nil
}

// Certificate devuelve el certificado parseado.
func (id *Identity) Certificate() *x509.Certificate { return id.cert }

func (id *Identity) SubjectID() (string, error) { return SubjectID(id.cert) }

func (id *Identity) IssuerName() (string, error) { return IssuerName(id.cert) }

func (id *Identity) SerialNumber() string { return SerialNumber(id.cert) }

func (id *Identity) CertificateBase64() string {
	return base64.StdEncoding.EncodeToString(id.cert.Raw)
}

// DigestBase64 is base64(SHA-1(data)). SHA-1 is fixed by the SAT protocol.
func (id *Identity) DigestBase64(data []byte) string {
	return Digest(data)
}

// Digest es DigestBase64 sin identidad.
func Digest(data []byte) string {
	sum := sha1.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Sign firma data con RSA PKCS#1 v1.5 sobre SHA-1.
func (id *Identity) Sign(data []byte) ([]byte, error) {
	ctx := dsig.NewDefaultSigningContext(&memoryKeyStore{key: id.key, cert: id.cert})
	if err := ctx.SetSignatureMethod(dsig.RSASHA1SignatureMethod); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err)
	}
	sig, err := ctx.SignString(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err)
	}
	return sig, nil
}
