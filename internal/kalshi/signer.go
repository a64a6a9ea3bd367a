package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// Signer produces the RSA-PSS request signatures the exchange requires.
// The signed message is timestamp_ms + METHOD + path, where path carries the
// /trade-api/v2 prefix and no query string.
type Signer struct {
	keyID string
	key   *rsa.PrivateKey
}

func NewSigner(keyID string, pemData []byte) (*Signer, error) {
	if keyID == "" {
		return nil, errors.New("api key id is required")
	}
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found in private key")
	}
	key, err := parseRSAKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	return &Signer{keyID: keyID, key: key}, nil
}

func NewSignerFromFile(keyID, path string) (*Signer, error) {
	pemData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewSigner(keyID, pemData)
}

func parseRSAKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}

func (s *Signer) KeyID() string {
	return s.keyID
}

func (s *Signer) Sign(timestampMS, method, path string) (string, error) {
	digest := sha256.Sum256([]byte(timestampMS + method + path))
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
