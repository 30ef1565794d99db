package validate

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"
)

// IntegrityError indicates a definitely-broken state, such as a certificate
// whose public key does not match its private key. It is always fatal and
// never downgraded to a warning.
type IntegrityError struct {
	Subject string
	Reason  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error: %s: %s", e.Subject, e.Reason)
}

// LoadCertificate parses the first CERTIFICATE block in a PEM file.
func LoadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	for block, rest := pem.Decode(data); block != nil; block, rest = pem.Decode(rest) {
		if block.Type == "CERTIFICATE" {
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse certificate: %w", err)
			}
			return cert, nil
		}
	}
	return nil, fmt.Errorf("no certificate block in %s", path)
}

// DaysUntilExpiry returns the whole days between now and the certificate's
// notAfter timestamp. Negative means already expired.
func DaysUntilExpiry(cert *x509.Certificate, now time.Time) int {
	return int(cert.NotAfter.Sub(now).Hours() / 24)
}

// PairMatches verifies the certificate's public key belongs to the private
// key. For RSA this compares the public modulus; mismatch is an
// IntegrityError, a hard failure at every validation level.
func PairMatches(certPath, keyPath string) error {
	cert, err := LoadCertificate(certPath)
	if err != nil {
		return err
	}
	key, err := loadPrivateKey(keyPath)
	if err != nil {
		return err
	}

	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		priv, ok := key.(*rsa.PrivateKey)
		if !ok || pub.N.Cmp(priv.N) != 0 {
			return &IntegrityError{Subject: certPath, Reason: "certificate modulus does not match private key"}
		}
	case *ecdsa.PublicKey:
		priv, ok := key.(*ecdsa.PrivateKey)
		if !ok || !pub.Equal(&priv.PublicKey) {
			return &IntegrityError{Subject: certPath, Reason: "certificate public key does not match private key"}
		}
	case ed25519.PublicKey:
		priv, ok := key.(ed25519.PrivateKey)
		if !ok || !pub.Equal(priv.Public()) {
			return &IntegrityError{Subject: certPath, Reason: "certificate public key does not match private key"}
		}
	default:
		return fmt.Errorf("unsupported public key type %T", pub)
	}
	return nil
}

func loadPrivateKey(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("unrecognized private key format in %s", path)
}
