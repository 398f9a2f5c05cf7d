package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildServerConfig_Disabled(t *testing.T) {
	cfg, err := BuildServerConfig(ServerConfig{})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestBuildServerConfig_Incomplete(t *testing.T) {
	_, err := BuildServerConfig(ServerConfig{CertFile: "cert.pem"})
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestBuildServerConfig_SelfSignedWithFilesConflicts(t *testing.T) {
	_, err := BuildServerConfig(ServerConfig{CertFile: "cert.pem", KeyFile: "key.pem", SelfSigned: true})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestBuildServerConfig_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := BuildServerConfig(ServerConfig{
		CertFile: filepath.Join(dir, "nope.pem"),
		KeyFile:  filepath.Join(dir, "nope.key"),
	})
	assert.ErrorContains(t, err, "failed to load server certificate")
}

func TestBuildServerConfig_CertificateFiles(t *testing.T) {
	certPEM, keyPEM, err := selfSigned(time.Now())
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))

	cfg, err := BuildServerConfig(ServerConfig{CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
}

func TestBuildServerConfig_SelfSigned(t *testing.T) {
	cfg, err := BuildServerConfig(ServerConfig{SelfSigned: true})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Len(t, cfg.Certificates, 1)

	leaf, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	require.NoError(t, err)
	assert.NoError(t, leaf.VerifyHostname("localhost"))
	assert.NoError(t, leaf.VerifyHostname("127.0.0.1"))
	assert.True(t, leaf.NotAfter.After(time.Now()))
}
