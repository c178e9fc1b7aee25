package noisetls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/vpncore/tlsx"
)

// testPair holds factories for a client pinned to the server's static
// key.
func testFactories(t *testing.T) (client, server tlsx.Factory, serverPub string) {
	t.Helper()

	clientPriv, _, err := GenerateKey(nil)
	require.NoError(t, err)
	serverPriv, serverPubPEM, err := GenerateKey(nil)
	require.NoError(t, err)

	clientCfg := NewConfig()
	clientCfg.SetRole(tlsx.RoleClient)
	require.NoError(t, clientCfg.LoadPrivateKey(clientPriv))
	require.NoError(t, clientCfg.LoadCA(serverPubPEM))
	client, err = clientCfg.NewFactory()
	require.NoError(t, err)

	serverCfg := NewConfig()
	serverCfg.SetRole(tlsx.RoleServer)
	require.NoError(t, serverCfg.LoadPrivateKey(serverPriv))
	server, err = serverCfg.NewFactory()
	require.NoError(t, err)

	return client, server, serverPubPEM
}

// completeHandshake runs the two-message IK exchange.
func completeHandshake(t *testing.T, client, server tlsx.Session) {
	t.Helper()

	require.NoError(t, client.StartHandshake())
	require.NoError(t, server.StartHandshake())

	msg1, err := client.ReadCiphertext()
	require.NoError(t, err)
	require.NotNil(t, msg1, "initiator must emit the first message")
	require.NoError(t, server.WriteCiphertext(msg1))

	msg2, err := server.ReadCiphertext()
	require.NoError(t, err)
	require.NotNil(t, msg2, "responder must reply")
	require.NoError(t, client.WriteCiphertext(msg2))
}

func TestHandshakeAndTransport(t *testing.T) {
	clientFactory, serverFactory, _ := testFactories(t)

	client, err := clientFactory.Session()
	require.NoError(t, err)
	server, err := serverFactory.Session()
	require.NoError(t, err)

	completeHandshake(t, client, server)

	require.NotNil(t, client.PeerIdentity())
	require.NotNil(t, server.PeerIdentity())
	assert.Len(t, client.PeerIdentity().Fingerprint, 64)
	assert.Contains(t, client.HandshakeDetails(), protocolName)

	// client -> server
	_, err = client.WriteCleartextUnbuffered([]byte("ping"))
	require.NoError(t, err)
	msg, err := client.ReadCiphertext()
	require.NoError(t, err)
	require.NoError(t, server.WriteCiphertext(msg))

	require.True(t, server.ReadCleartextReady())
	buf := make([]byte, 16)
	n, err := server.ReadCleartext(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	// server -> client
	_, err = server.WriteCleartextUnbuffered([]byte("pong"))
	require.NoError(t, err)
	msg, err = server.ReadCiphertext()
	require.NoError(t, err)
	require.NoError(t, client.WriteCiphertext(msg))

	n, err = client.ReadCleartext(buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf[:n]))
}

func TestPendingCleartextFlushedAfterHandshake(t *testing.T) {
	clientFactory, serverFactory, _ := testFactories(t)

	client, err := clientFactory.Session()
	require.NoError(t, err)
	server, err := serverFactory.Session()
	require.NoError(t, err)

	require.NoError(t, client.StartHandshake())

	// Written before the handshake completes: buffered, not sent.
	_, err = client.WriteCleartextUnbuffered([]byte("early"))
	require.NoError(t, err)

	msg1, err := client.ReadCiphertext()
	require.NoError(t, err)
	require.NoError(t, server.WriteCiphertext(msg1))
	msg2, err := server.ReadCiphertext()
	require.NoError(t, err)
	require.NoError(t, client.WriteCiphertext(msg2))

	// Completion flushes the pending bytes as a transport message.
	require.True(t, client.ReadCiphertextReady())
	msg, err := client.ReadCiphertext()
	require.NoError(t, err)
	require.NoError(t, server.WriteCiphertext(msg))

	buf := make([]byte, 16)
	n, err := server.ReadCleartext(buf)
	require.NoError(t, err)
	assert.Equal(t, "early", string(buf[:n]))
}

func TestSessionForHostPinsFingerprint(t *testing.T) {
	clientFactory, serverFactory, serverPub := testFactories(t)

	key, err := parseKeyPEM(serverPub, publicKeyPEMType)
	require.NoError(t, err)

	client, err := clientFactory.SessionForHost(fingerprint(key))
	require.NoError(t, err)
	server, err := serverFactory.Session()
	require.NoError(t, err)

	completeHandshake(t, client, server)
	require.NotNil(t, client.PeerIdentity())
	assert.Equal(t, fingerprint(key), client.PeerIdentity().Fingerprint)
}

func TestSessionForHostMismatch(t *testing.T) {
	clientFactory, serverFactory, _ := testFactories(t)

	client, err := clientFactory.SessionForHost("0000000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	server, err := serverFactory.Session()
	require.NoError(t, err)

	require.NoError(t, client.StartHandshake())
	require.NoError(t, server.StartHandshake())

	msg1, err := client.ReadCiphertext()
	require.NoError(t, err)
	require.NoError(t, server.WriteCiphertext(msg1))
	msg2, err := server.ReadCiphertext()
	require.NoError(t, err)

	err = client.WriteCiphertext(msg2)
	require.Error(t, err)
	assert.ErrorContains(t, err, "fingerprint")
	assert.Nil(t, client.PeerIdentity())
}

func TestCiphertextOverflow(t *testing.T) {
	clientFactory, serverFactory, _ := testFactories(t)

	client, err := clientFactory.Session()
	require.NoError(t, err)
	server, err := serverFactory.Session()
	require.NoError(t, err)
	completeHandshake(t, client, server)

	// Park cleartext on the server before the overflow.
	_, err = client.WriteCleartextUnbuffered([]byte("kept"))
	require.NoError(t, err)
	msg, err := client.ReadCiphertext()
	require.NoError(t, err)
	require.NoError(t, server.WriteCiphertext(msg))

	err = server.WriteCiphertext(make([]byte, maxMessage+1))
	require.Error(t, err)
	assert.ErrorIs(t, err, tlsx.ErrCiphertextOverflow)

	// Exactly once: later writes report a stopped session instead.
	err = server.WriteCiphertext([]byte("x"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, tlsx.ErrCiphertextOverflow)

	// Buffered cleartext survives.
	buf := make([]byte, 16)
	n, err := server.ReadCleartext(buf)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(buf[:n]))
}

func TestDecryptFailureIsFatal(t *testing.T) {
	clientFactory, serverFactory, _ := testFactories(t)

	client, err := clientFactory.Session()
	require.NoError(t, err)
	server, err := serverFactory.Session()
	require.NoError(t, err)
	completeHandshake(t, client, server)

	err = server.WriteCiphertext([]byte("definitely not a noise message"))
	require.Error(t, err)

	_, err = server.WriteCleartextUnbuffered([]byte("after"))
	require.Error(t, err)
}

func TestStartHandshakeIdempotent(t *testing.T) {
	clientFactory, _, _ := testFactories(t)

	client, err := clientFactory.Session()
	require.NoError(t, err)

	require.NoError(t, client.StartHandshake())
	msg1, err := client.ReadCiphertext()
	require.NoError(t, err)
	require.NotNil(t, msg1)

	// A second trigger must not emit another first message.
	require.NoError(t, client.StartHandshake())
	msg, err := client.ReadCiphertext()
	require.NoError(t, err)
	assert.Nil(t, msg)
}
