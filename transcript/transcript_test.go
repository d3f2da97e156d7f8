package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openspdm/spdm-go/crypto/providers"
	"github.com/openspdm/spdm-go/protocol"
)

func init() {
	providers.RegisterDefaults()
}

func TestSetAppendAndDigest(t *testing.T) {
	s := NewSet(protocol.HashSHA256)

	require.NoError(t, s.Append(MessageA, []byte("get_version")))
	require.NoError(t, s.Append(MessageA, []byte("version")))

	d1, err := s.Get(MessageA).Digest(protocol.HashSHA256)
	require.NoError(t, err)
	assert.Len(t, d1, protocol.HashSHA256.Size())

	require.NoError(t, s.Append(MessageA, []byte("more")))
	d2, err := s.Get(MessageA).Digest(protocol.HashSHA256)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2, "digest must change as the accumulator grows")
}

func TestAccumulatorReset(t *testing.T) {
	s := NewSet(protocol.HashSHA256)
	require.NoError(t, s.Append(MessageM, []byte("measurement-transcript")))
	assert.Equal(t, len("measurement-transcript"), s.Get(MessageM).Len())

	s.Reset(MessageM)
	assert.Equal(t, 0, s.Get(MessageM).Len())
}

func TestAppendOverflowIsFatal(t *testing.T) {
	s := NewSet(protocol.HashSHA256)
	chunk := make([]byte, 256)

	var err error
	for i := 0; i < MaxMessageBufferSize/len(chunk)+2; i++ {
		if err = s.Append(MessageK, chunk); err != nil {
			break
		}
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBufferFull)
}
