// Package providers wires concrete cryptographic libraries into the
// crypto registry's provider interfaces. RegisterDefaults installs the
// full stdlib-plus-ecosystem stack; individual Register* functions are
// exposed for callers (tests, FIPS-only builds) that want a narrower set.
package providers

import (
	"hash"

	"github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/protocol"
)

func newHasher(algo protocol.BaseHashAlgo) (hash.Hash, error) {
	factory, err := hasherFactory(algo)
	if err != nil {
		return nil, err
	}
	return factory(), nil
}

type stdHashProvider struct{}

// NewStdHashProvider returns a HashProvider backed by crypto/sha256 and
// crypto/sha512.
func NewStdHashProvider() crypto.HashProvider { return stdHashProvider{} }

func (stdHashProvider) HashAll(algo protocol.BaseHashAlgo, data []byte) ([]byte, error) {
	h, err := newHasher(algo)
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil), nil
}

func (stdHashProvider) CtxInit(algo protocol.BaseHashAlgo) (crypto.HashContext, error) {
	h, err := newHasher(algo)
	if err != nil {
		return nil, err
	}
	return &stdHashContext{algo: algo, h: h}, nil
}

// stdHashContext wraps a hash.Hash. Clone relies on hash.Hash implementations
// in crypto/sha256 and crypto/sha512 also implementing encoding.BinaryMarshaler,
// which both do, to fork state without replaying all prior Update calls.
type stdHashContext struct {
	algo protocol.BaseHashAlgo
	h    hash.Hash
}

func (c *stdHashContext) Update(data []byte) { c.h.Write(data) }

func (c *stdHashContext) Clone() crypto.HashContext {
	state, err := c.h.(encodingBinaryMarshaler).MarshalBinary()
	if err != nil {
		panic("providers: hash state marshal failed: " + err.Error())
	}
	clone, err := newHasher(c.algo)
	if err != nil {
		panic(err)
	}
	if u, ok := clone.(encodingBinaryUnmarshaler); ok {
		if err := u.UnmarshalBinary(state); err != nil {
			panic("providers: hash state unmarshal failed: " + err.Error())
		}
	}
	return &stdHashContext{algo: c.algo, h: clone}
}

func (c *stdHashContext) Finalize() []byte {
	return c.h.Sum(nil)
}

type encodingBinaryMarshaler interface {
	MarshalBinary() ([]byte, error)
}

type encodingBinaryUnmarshaler interface {
	UnmarshalBinary([]byte) error
}
