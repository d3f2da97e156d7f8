package loopback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairRoundTrip(t *testing.T) {
	a, b := Pair()

	require.NoError(t, a.Send([]byte("hello")))
	buf := make([]byte, 64)
	n, err := b.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	require.NoError(t, b.Send([]byte("world")))
	n, err = a.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))
}

func TestReceiveRejectsOversizedMessage(t *testing.T) {
	a, b := Pair()
	require.NoError(t, a.Send([]byte("this message is too big")))

	tiny := make([]byte, 2)
	_, err := b.Receive(tiny)
	require.Error(t, err)
}

func TestSendAfterCloseFails(t *testing.T) {
	a, _ := Pair()
	require.NoError(t, a.Close())
	err := a.Send([]byte("x"))
	require.Error(t, err)
}
