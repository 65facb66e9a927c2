package certs

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

func parse(t *testing.T, cert tls.Certificate) *x509.Certificate {
	t.Helper()
	require.Len(t, cert.Certificate, 1)
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return x509Cert
}

func TestFileManager_GetOrCreateCertificate(t *testing.T) {
	tests := []struct {
		setup          func(t *testing.T, certDir string)
		validateResult func(t *testing.T, cert *x509.Certificate)
		name           string
		errorContains  string
		hosts          []string
		wantErr        bool
	}{
		{
			name:  "creates new certificate when none exists",
			hosts: []string{"bank.clan.lan", "10.0.0.5"},
			validateResult: func(t *testing.T, cert *x509.Certificate) {
				t.Helper()
				assert.Equal(t, []string{"Clan Bank"}, cert.Subject.Organization)
				assert.ElementsMatch(t, []string{"localhost", "bank.clan.lan"}, cert.DNSNames)
				require.NoError(t, cert.VerifyHostname("bank.clan.lan"))
				require.NoError(t, cert.VerifyHostname("10.0.0.5"))
				require.NoError(t, cert.VerifyHostname("::1"))
			},
		},
		{
			name: "reuses existing valid certificate",
			setup: func(t *testing.T, certDir string) {
				t.Helper()
				_, err := NewFileManager(certDir, nil).GetOrCreateCertificate()
				require.NoError(t, err)
			},
			validateResult: func(t *testing.T, cert *x509.Certificate) {
				t.Helper()
				assert.True(t, cert.NotBefore.Before(time.Now()))
			},
		},
		{
			name: "regenerates unreadable files",
			setup: func(t *testing.T, certDir string) {
				t.Helper()
				require.NoError(t, os.MkdirAll(certDir, 0700))
				require.NoError(t, os.WriteFile(filepath.Join(certDir, CertFileName), []byte("invalid"), 0600))
				require.NoError(t, os.WriteFile(filepath.Join(certDir, KeyFileName), []byte("invalid"), 0600))
			},
			validateResult: func(t *testing.T, cert *x509.Certificate) {
				t.Helper()
				assert.True(t, cert.NotBefore.After(time.Now().Add(-2*time.Minute)))
			},
		},
		{
			name: "fails when the directory is a file",
			setup: func(t *testing.T, certDir string) {
				t.Helper()
				require.NoError(t, os.MkdirAll(filepath.Dir(certDir), 0700))
				require.NoError(t, os.WriteFile(certDir, []byte("not a directory"), 0600))
			},
			wantErr:       true,
			errorContains: "failed to check certificate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certDir := filepath.Join(t.TempDir(), "certs")
			if tt.setup != nil {
				tt.setup(t, certDir)
			}

			cert, err := NewFileManager(certDir, tt.hosts).GetOrCreateCertificate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			require.NoError(t, err)

			if tt.validateResult != nil {
				tt.validateResult(t, parse(t, cert))
			}

			for _, name := range []string{CertFileName, KeyFileName} {
				info, err := os.Stat(filepath.Join(certDir, name))
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), name)
			}
		})
	}
}

func TestFileManager_RegeneratesForNewHost(t *testing.T) {
	certDir := t.TempDir()

	first, err := NewFileManager(certDir, nil).GetOrCreateCertificate()
	require.NoError(t, err)

	second, err := NewFileManager(certDir, []string{"bank.clan.lan"}).GetOrCreateCertificate()
	require.NoError(t, err)

	assert.NotEqual(t, parse(t, first).SerialNumber, parse(t, second).SerialNumber)
	require.NoError(t, parse(t, second).VerifyHostname("bank.clan.lan"))
}

func TestFileManager_RenewsBeforeExpiry(t *testing.T) {
	certDir := t.TempDir()
	now := time.Now()

	first, err := NewFileManager(certDir, nil, WithValidity(30*24*time.Hour)).GetOrCreateCertificate()
	require.NoError(t, err)

	later := NewFileManager(certDir, nil, WithClock(func() time.Time { return now.Add(25 * 24 * time.Hour) }))
	second, err := later.GetOrCreateCertificate()
	require.NoError(t, err)

	assert.NotEqual(t, parse(t, first).SerialNumber, parse(t, second).SerialNumber)
}

func TestFileManager_CertificateExists(t *testing.T) {
	tests := []struct {
		files      []string
		name       string
		wantExists bool
	}{
		{name: "no files", wantExists: false},
		{name: "both files", files: []string{CertFileName, KeyFileName}, wantExists: true},
		{name: "only certificate", files: []string{CertFileName}, wantExists: false},
		{name: "only key", files: []string{KeyFileName}, wantExists: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certDir := t.TempDir()
			for _, f := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(certDir, f), []byte("x"), 0600))
			}

			exists, err := NewFileManager(certDir, nil).CertificateExists()
			require.NoError(t, err)
			assert.Equal(t, tt.wantExists, exists)
		})
	}
}

func TestFileManager_verifyCertificate(t *testing.T) {
	m := NewFileManager(t.TempDir(), nil)
	err := m.verifyCertificate(tls.Certificate{})
	require.ErrorContains(t, err, "no certificates found")

	cert, err := m.GetOrCreateCertificate()
	require.NoError(t, err)
	require.NoError(t, m.verifyCertificate(cert))

	other := NewFileManager(t.TempDir(), []string{"bank.clan.lan"})
	require.ErrorContains(t, other.verifyCertificate(cert), "does not cover bank.clan.lan")
}

func TestHosts(t *testing.T) {
	m := NewFileManager(t.TempDir(), []string{"", "localhost", "bank.clan.lan", "bank.clan.lan"})
	assert.Equal(t, []string{"localhost", "127.0.0.1", "::1", "bank.clan.lan"}, m.Hosts())
}
