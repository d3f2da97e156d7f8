package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

func TestStoreWriteOnce(t *testing.T) {
	s := New()

	require.NoError(t, s.SetVersion(protocol.Version12))
	err := s.SetVersion(protocol.Version11)
	require.Error(t, err)
	assert.ErrorIs(t, err, spdmerr.ErrInvalidStateLocal)

	v, ok := s.Version()
	assert.True(t, ok)
	assert.Equal(t, protocol.Version12, v)
}

func TestStoreReadyRequiresAllThree(t *testing.T) {
	s := New()
	assert.False(t, s.Ready())

	require.NoError(t, s.SetVersion(protocol.Version12))
	assert.False(t, s.Ready())

	require.NoError(t, s.SetCapabilities(protocol.CapCert|protocol.CapChal, protocol.CapCert|protocol.CapChal))
	assert.False(t, s.Ready())

	require.NoError(t, s.SetAlgorithms(protocol.Algorithms{
		BaseHash: protocol.HashSHA384,
		BaseAsym: protocol.AsymECDSAP384,
		DHE:      protocol.DHESECP384R1,
		AEAD:     protocol.AEADAES256GCM,
	}))
	assert.True(t, s.Ready())
}

func TestStoreAlgorithmsWriteOnce(t *testing.T) {
	s := New()
	require.NoError(t, s.SetAlgorithms(protocol.Algorithms{BaseHash: protocol.HashSHA256}))
	err := s.SetAlgorithms(protocol.Algorithms{BaseHash: protocol.HashSHA384})
	assert.Error(t, err)

	a, ok := s.Algorithms()
	assert.True(t, ok)
	assert.Equal(t, protocol.HashSHA256, a.BaseHash)
}
