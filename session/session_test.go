package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openspdm/spdm-go/crypto/providers"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
	"github.com/openspdm/spdm-go/transcript"
)

func init() {
	providers.RegisterDefaults()
}

func testAlgorithms() protocol.Algorithms {
	return protocol.Algorithms{
		BaseHash: protocol.HashSHA256,
		BaseAsym: protocol.AsymECDSAP256,
		DHE:      protocol.DHESECP256R1,
		AEAD:     protocol.AEADChaCha20Poly1305,
	}
}

func TestSessionStartsNotStarted(t *testing.T) {
	s, err := newSession(1, protocol.HashSHA256, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, NotStarted, s.State())
	assert.Equal(t, uint32(1), s.ID())
}

func TestSessionKeySchedule(t *testing.T) {
	s, err := newSession(7, protocol.HashSHA256, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, s.SetAlgorithms(testAlgorithms()))

	require.NoError(t, s.Transcripts().Append(transcript.MessageK, []byte("key_exchange||key_exchange_rsp")))

	sharedSecret := make([]byte, 32)
	require.NoError(t, s.DeriveHandshakeSecrets(sharedSecret))
	assert.Equal(t, Handshaking, s.State())
	assert.Len(t, s.RequestKeys().Key, testAlgorithms().AEAD.KeySize())
	assert.Len(t, s.ResponseKeys().IV, testAlgorithms().AEAD.IVSize())
	assert.NotEqual(t, s.RequestKeys().Key, s.ResponseKeys().Key, "directions must not share a key")

	require.NoError(t, s.Transcripts().Append(transcript.MessageF, []byte("finish||finish_rsp")))
	require.NoError(t, s.DeriveApplicationSecrets())
	assert.Equal(t, Established, s.State())
	assert.NotEqual(t, s.RequestKeys().Key, s.handshakeSecret, "application keys must differ from the handshake secret")
}

func TestSessionDeriveHandshakeSecretsRequiresAlgorithms(t *testing.T) {
	s, err := newSession(2, protocol.HashSHA256, DefaultConfig())
	require.NoError(t, err)
	err = s.DeriveHandshakeSecrets(make([]byte, 32))
	require.Error(t, err)
	assert.ErrorIs(t, err, spdmerr.ErrInvalidStateLocal)
}

func TestSessionCloseZeroizesKeys(t *testing.T) {
	s, err := newSession(3, protocol.HashSHA256, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, s.SetAlgorithms(testAlgorithms()))
	require.NoError(t, s.DeriveHandshakeSecrets(make([]byte, 32)))

	key := s.RequestKeys().Key
	require.NoError(t, s.Close())
	assert.Equal(t, NotStarted, s.State())
	for _, b := range key {
		assert.Zero(t, b)
	}
}

func TestNewSessionRejectsReservedIDs(t *testing.T) {
	_, err := newSession(protocol.SessionIDNone, protocol.HashSHA256, DefaultConfig())
	require.Error(t, err)
	_, err = newSession(protocol.SessionIDReserved, protocol.HashSHA256, DefaultConfig())
	require.Error(t, err)
}
