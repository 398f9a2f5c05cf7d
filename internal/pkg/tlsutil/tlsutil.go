// Package tlsutil builds the TLS configuration of the viewer HTTP server.
package tlsutil

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/endorses/mtmon/internal/pkg/logger"
)

var (
	// ErrIncomplete is returned when only one of the certificate and key paths is set.
	ErrIncomplete = errors.New("both certificate and key file must be provided")

	// ErrConflict is returned when a generated certificate is requested
	// together with certificate files.
	ErrConflict = errors.New("self-signed certificate and certificate files are mutually exclusive")
)

// ServerConfig names the PEM files of the server certificate. SelfSigned
// serves a certificate generated at startup instead.
type ServerConfig struct {
	CertFile   string
	KeyFile    string
	SelfSigned bool
}

// Enabled reports whether TLS was requested in any form.
func (c ServerConfig) Enabled() bool {
	return c.CertFile != "" || c.KeyFile != "" || c.SelfSigned
}

// Validate checks that the paths are configured as a pair and not mixed
// with SelfSigned.
func (c ServerConfig) Validate() error {
	files := c.CertFile != "" || c.KeyFile != ""
	switch {
	case c.SelfSigned && files:
		return ErrConflict
	case files && (c.CertFile == "" || c.KeyFile == ""):
		return ErrIncomplete
	}
	return nil
}

// BuildServerConfig loads or generates the certificate. It returns nil, nil
// when TLS is not configured.
func BuildServerConfig(config ServerConfig) (*tls.Config, error) {
	if !config.Enabled() {
		return nil, nil
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var cert tls.Certificate
	if config.SelfSigned {
		certPEM, keyPEM, err := selfSigned(time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to generate server certificate: %w", err)
		}
		if cert, err = tls.X509KeyPair(certPEM, keyPEM); err != nil {
			return nil, fmt.Errorf("failed to load generated certificate: %w", err)
		}
		logger.Warn("Serving TLS with a generated self-signed certificate",
			"hosts", "localhost, 127.0.0.1, ::1",
			"min_version", "TLS 1.2")
	} else {
		var err error
		if cert, err = tls.LoadX509KeyPair(config.CertFile, config.KeyFile); err != nil {
			return nil, fmt.Errorf("failed to load server certificate: %w", err)
		}
		logger.Info("TLS server certificate loaded",
			"cert", config.CertFile,
			"key", config.KeyFile,
			"min_version", "TLS 1.2")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
