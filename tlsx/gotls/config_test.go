package gotls

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/vpncore/tlsx"
)

const garbagePEM = "-----BEGIN CERTIFICATE-----\nnot base64!!\n-----END CERTIFICATE-----\n"

func TestValidateCertRejectsGarbage(t *testing.T) {
	cfg := NewConfig()

	diag := cfg.ValidateCert("this is not PEM at all")
	assert.NotEmpty(t, diag)

	diag = cfg.ValidateCert(garbagePEM)
	assert.NotEmpty(t, diag)

	// Validation must not mutate the builder.
	assert.Nil(t, cfg.leaf)
	assert.Nil(t, cfg.chainDER)
}

func TestLoadCertRejectsGarbage(t *testing.T) {
	cfg := NewConfig()

	err := cfg.LoadCert("garbage")
	require.Error(t, err)
	assert.ErrorIs(t, err, tlsx.ErrOptions)
	assert.Nil(t, cfg.leaf)
}

func TestValidateAndLoadAgree(t *testing.T) {
	pki := newTestPKI(t, "testserver")
	cfg := NewConfig()

	tests := []struct {
		name     string
		validate func(string) string
		load     func(string) error
		good     string
		bad      string
	}{
		{"cert", cfg.ValidateCert, cfg.LoadCert, pki.certPEM, garbagePEM},
		{"key", cfg.ValidatePrivateKey, cfg.LoadPrivateKey, pki.keyPEM, "no key here"},
		{"crl", cfg.ValidateCRL, cfg.LoadCRL, pki.crlPEM(t), "no crl here"},
		{"dh", cfg.ValidateDH, cfg.LoadDH, dhPEM(t, 2048), "no dh here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, tt.validate(tt.good))
			assert.NoError(t, tt.load(tt.good))

			assert.NotEmpty(t, tt.validate(tt.bad))
			err := tt.load(tt.bad)
			require.Error(t, err)
			assert.ErrorIs(t, err, tlsx.ErrOptions)
		})
	}
}

func TestValidateCertListAllowsChain(t *testing.T) {
	pki := newTestPKI(t, "testserver")
	chain := pki.certPEM + pki.caPEM

	cfg := NewConfig()
	assert.Empty(t, cfg.ValidateCertList(chain))
	// Single-cert validation rejects a multi-cert blob.
	assert.NotEmpty(t, cfg.ValidateCert(chain))
}

func TestValidateDHRejectsSmallPrime(t *testing.T) {
	cfg := NewConfig()
	assert.NotEmpty(t, cfg.ValidateDH(dhPEM(t, 256)))
}

func TestNewFactoryClientRequiresCA(t *testing.T) {
	cfg := NewConfig()
	cfg.SetRole(tlsx.RoleClient)

	_, err := cfg.NewFactory()
	require.Error(t, err)
	assert.ErrorIs(t, err, tlsx.ErrContext)
}

func TestNewFactoryServerRequiresCert(t *testing.T) {
	cfg := NewConfig()
	cfg.SetRole(tlsx.RoleServer)

	_, err := cfg.NewFactory()
	require.Error(t, err)
	assert.ErrorIs(t, err, tlsx.ErrContext)
}

func TestNewFactoryCertWithoutKey(t *testing.T) {
	pki := newTestPKI(t, "testserver")

	cfg := NewConfig()
	cfg.SetRole(tlsx.RoleServer)
	require.NoError(t, cfg.LoadCert(pki.certPEM))

	_, err := cfg.NewFactory()
	require.Error(t, err)
	assert.ErrorIs(t, err, tlsx.ErrContext)
}

func TestNewFactorySignerWithoutCert(t *testing.T) {
	pki := newTestPKI(t, "testserver")

	cfg := NewConfig()
	cfg.SetRole(tlsx.RoleClient)
	require.NoError(t, cfg.LoadCA(pki.caPEM))
	cfg.SetExternalPKI(pki.leafKey)

	_, err := cfg.NewFactory()
	require.Error(t, err)
	assert.ErrorIs(t, err, tlsx.ErrExternalPKI)
}

func TestFactoryRole(t *testing.T) {
	pki := newTestPKI(t, "testserver")

	cfg := NewConfig()
	cfg.SetRole(tlsx.RoleServer)
	require.NoError(t, cfg.LoadCert(pki.certPEM))
	require.NoError(t, cfg.LoadPrivateKey(pki.keyPEM))

	factory, err := cfg.NewFactory()
	require.NoError(t, err)
	assert.Equal(t, tlsx.RoleServer, factory.Role())
}

func TestRenegotiationAppliesToClientOnly(t *testing.T) {
	pki := newTestPKI(t, "testserver")

	clientCfg := NewConfig()
	require.NoError(t, clientCfg.LoadCA(pki.caPEM))
	clientCfg.SetEnableRenegotiation(true)
	clientFactory, err := clientCfg.NewFactory()
	require.NoError(t, err)
	assert.Equal(t, tls.RenegotiateFreelyAsClient, clientFactory.(*Factory).base.Renegotiation)

	serverCfg := NewConfig()
	serverCfg.SetRole(tlsx.RoleServer)
	require.NoError(t, serverCfg.LoadCert(pki.certPEM))
	require.NoError(t, serverCfg.LoadPrivateKey(pki.keyPEM))
	serverCfg.SetEnableRenegotiation(true)
	serverFactory, err := serverCfg.NewFactory()
	require.NoError(t, err)
	assert.Equal(t, tls.RenegotiateNever, serverFactory.(*Factory).base.Renegotiation)
}

func TestConfigReusableAfterNewFactory(t *testing.T) {
	pki := newTestPKI(t, "testserver")

	cfg := NewConfig()
	require.NoError(t, cfg.LoadCA(pki.caPEM))

	first, err := cfg.NewFactory()
	require.NoError(t, err)

	cfg.SetMinVersion(tlsx.VersionTLS13)
	second, err := cfg.NewFactory()
	require.NoError(t, err)

	assert.NotSame(t, first, second)
}

func TestSessionForHostRequiresHostname(t *testing.T) {
	pki := newTestPKI(t, "testserver")

	cfg := NewConfig()
	require.NoError(t, cfg.LoadCA(pki.caPEM))
	factory, err := cfg.NewFactory()
	require.NoError(t, err)

	_, err = factory.SessionForHost("")
	assert.ErrorIs(t, err, tlsx.ErrContext)
}
