package securedmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openspdm/spdm-go/crypto/providers"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
	"github.com/openspdm/spdm-go/session"
)

func init() {
	providers.RegisterDefaults()
}

func newKeys() *session.DirectionKeys {
	return &session.DirectionKeys{
		Key: make([]byte, protocol.AEADChaCha20Poly1305.KeySize()),
		IV:  make([]byte, protocol.AEADChaCha20Poly1305.IVSize()),
	}
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	tx, rx := newKeys(), newKeys()
	copy(rx.Key, tx.Key)
	copy(rx.IV, tx.IV)

	plaintext := []byte("GET_MEASUREMENTS")
	frame, err := Wrap(protocol.AEADChaCha20Poly1305, 7, tx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tx.Sequence)

	out, err := Unwrap(protocol.AEADChaCha20Poly1305, 7, rx, frame)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
	assert.Equal(t, uint64(1), rx.Sequence)
}

func TestUnwrapRejectsWrongSessionID(t *testing.T) {
	tx, rx := newKeys(), newKeys()
	copy(rx.Key, tx.Key)
	copy(rx.IV, tx.IV)

	frame, err := Wrap(protocol.AEADChaCha20Poly1305, 7, tx, []byte("hi"))
	require.NoError(t, err)

	_, err = Unwrap(protocol.AEADChaCha20Poly1305, 9, rx, frame)
	require.Error(t, err)
}

func TestUnwrapRejectsOutOfOrderSequence(t *testing.T) {
	tx, rx := newKeys(), newKeys()
	copy(rx.Key, tx.Key)
	copy(rx.IV, tx.IV)

	f1, err := Wrap(protocol.AEADChaCha20Poly1305, 1, tx, []byte("first"))
	require.NoError(t, err)
	f2, err := Wrap(protocol.AEADChaCha20Poly1305, 1, tx, []byte("second"))
	require.NoError(t, err)

	// Deliver out of order: f2 arrives before f1 is ever unwrapped.
	_, err = Unwrap(protocol.AEADChaCha20Poly1305, 1, rx, f2)
	require.Error(t, err)

	// Correct order still succeeds.
	_, err = Unwrap(protocol.AEADChaCha20Poly1305, 1, rx, f1)
	require.NoError(t, err)
}

func TestUnwrapRejectsTamperedCiphertext(t *testing.T) {
	tx, rx := newKeys(), newKeys()
	copy(rx.Key, tx.Key)
	copy(rx.IV, tx.IV)

	frame, err := Wrap(protocol.AEADChaCha20Poly1305, 1, tx, []byte("payload"))
	require.NoError(t, err)
	frame[len(frame)-1] ^= 0xFF

	_, err = Unwrap(protocol.AEADChaCha20Poly1305, 1, rx, frame)
	require.Error(t, err)
	assert.Equal(t, uint64(0), rx.Sequence, "a failed unwrap must not advance the sequence number")
}

func TestWrapRefusesOnSequenceOverflow(t *testing.T) {
	tx := newKeys()
	tx.Sequence = ^uint64(0)

	_, err := Wrap(protocol.AEADChaCha20Poly1305, 1, tx, []byte("hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, spdmerr.ErrSequenceNumberOverflow)
}
