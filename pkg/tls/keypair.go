package tls

import (
	"crypto/tls"
	"fmt"

	"github.com/sunny-chung/hello-http-sub000/pkg/config"
)

// LoadKeyPair loads a client certificate and private key from PEM text or files.
func LoadKeyPair(p config.ClientCertificateKeyPair) (tls.Certificate, error) {
	certPEM, err := readPEM(p.CertificatePEM, p.CertificateFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("client certificate %q: %w", p.ID, err)
	}
	keyPEM, err := readPEM(p.PrivateKeyPEM, p.PrivateKeyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("client key %q: %w", p.ID, err)
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("client key pair %q: %w", p.ID, err)
	}
	return cert, nil
}
