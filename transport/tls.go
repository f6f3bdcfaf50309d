package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/c360/gofhem/errors"
)

// clientTLSConfig creates a tls.Config for encrypted connections.
// Always uses the system CA bundle first, caFile is an additional trusted CA.
//
// Without a CA file the server certificate is not verified. FHEM
// installations overwhelmingly run self-signed certificates, so
// verification only turns on when the operator supplies the CA to
// verify against.
func clientTLSConfig(caFile string) (*tls.Config, error) {
	if caFile == "" {
		return &tls.Config{
			InsecureSkipVerify: true,
			MinVersion:         tls.VersionTLS12,
		}, nil
	}

	// Start with system CA pool
	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		// If system pool unavailable, create empty pool
		rootCAs = x509.NewCertPool()
	}

	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "transport", "clientTLSConfig",
			fmt.Sprintf("read CA file %s", caFile))
	}
	if !rootCAs.AppendCertsFromPEM(caPEM) {
		return nil, errors.WrapFatal(
			fmt.Errorf("invalid PEM data"),
			"transport",
			"clientTLSConfig",
			fmt.Sprintf("parse CA certificate from %s", caFile),
		)
	}

	return &tls.Config{
		RootCAs:    rootCAs,
		MinVersion: tls.VersionTLS12,
	}, nil
}
