package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/protocol"
)

func TestStdHashProvider(t *testing.T) {
	h := NewStdHashProvider()

	t.Run("HashAll is deterministic", func(t *testing.T) {
		d1, err := h.HashAll(protocol.HashSHA256, []byte("spdm"))
		require.NoError(t, err)
		d2, err := h.HashAll(protocol.HashSHA256, []byte("spdm"))
		require.NoError(t, err)
		assert.Equal(t, d1, d2)
		assert.Len(t, d1, protocol.HashSHA256.Size())
	})

	t.Run("CtxInit clone diverges independently", func(t *testing.T) {
		ctx, err := h.CtxInit(protocol.HashSHA384)
		require.NoError(t, err)
		ctx.Update([]byte("message_a"))

		branch := ctx.Clone()
		ctx.Update([]byte("_original"))
		branch.Update([]byte("_branch"))

		assert.NotEqual(t, ctx.Finalize(), branch.Finalize())
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		_, err := h.HashAll(protocol.BaseHashAlgo(0), []byte("x"))
		assert.Error(t, err)
	})
}

func TestStdHMACProvider(t *testing.T) {
	h := NewStdHMACProvider()
	key := []byte("session-finished-key-material-32")

	tag, err := h.HMAC(protocol.HashSHA256, key, []byte("transcript"))
	require.NoError(t, err)

	assert.NoError(t, h.Verify(protocol.HashSHA256, key, []byte("transcript"), tag))
	assert.Error(t, h.Verify(protocol.HashSHA256, key, []byte("tampered"), tag))
}

func TestStdAEADProvider(t *testing.T) {
	a := NewStdAEADProvider()
	key := make([]byte, protocol.AEADAES256GCM.KeySize())
	iv := make([]byte, protocol.AEADAES256GCM.IVSize())

	ct, err := a.Encrypt(protocol.AEADAES256GCM, key, iv, []byte("aad"), []byte("plaintext"))
	require.NoError(t, err)

	pt, err := a.Decrypt(protocol.AEADAES256GCM, key, iv, []byte("aad"), ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("plaintext"), pt)

	_, err = a.Decrypt(protocol.AEADAES256GCM, key, iv, []byte("wrong-aad"), ct)
	assert.Error(t, err)
}

func TestStdDHEProviderECDH(t *testing.T) {
	d := NewStdDHEProvider()

	a, err := d.Generate(protocol.DHESECP256R1)
	require.NoError(t, err)
	b, err := d.Generate(protocol.DHESECP256R1)
	require.NoError(t, err)

	s1, err := a.SharedSecret(b.PublicBytes())
	require.NoError(t, err)
	s2, err := b.SharedSecret(a.PublicBytes())
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
}

func TestVendorDHEProviderMLKEM(t *testing.T) {
	d := NewVendorDHEProvider(NewStdDHEProvider())

	requester, err := d.Generate(protocol.DHEVendorMLKEM768)
	require.NoError(t, err)

	kem, ok := requester.(sdkcrypto.KEMKeyPair)
	require.True(t, ok, "ml-kem-768 key pair must implement KEMKeyPair")

	ciphertext, ssResponder, err := kem.Encapsulate(requester.PublicBytes())
	require.NoError(t, err)

	ssRequester, err := requester.SharedSecret(ciphertext)
	require.NoError(t, err)

	assert.Equal(t, ssResponder, ssRequester)
}

func TestRegistrySwapTakesEffectImmediately(t *testing.T) {
	sdkcrypto.Reset()
	t.Cleanup(sdkcrypto.Reset)

	sdkcrypto.RegisterHash(NewStdHashProvider())
	first, err := sdkcrypto.Hash().HashAll(protocol.HashSHA256, []byte("x"))
	require.NoError(t, err)

	sdkcrypto.RegisterHash(fixedDigestHash{digest: []byte("swapped")})
	second, err := sdkcrypto.Hash().HashAll(protocol.HashSHA256, []byte("x"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, []byte("swapped"), second)
}

type fixedDigestHash struct{ digest []byte }

func (f fixedDigestHash) HashAll(protocol.BaseHashAlgo, []byte) ([]byte, error) {
	return f.digest, nil
}
func (f fixedDigestHash) CtxInit(protocol.BaseHashAlgo) (sdkcrypto.HashContext, error) {
	return nil, nil
}
