// Package session implements the SPDM session: the state machine, the
// TH1/TH2-bound key schedule, and the fixed-capacity session table that
// holds established sessions.
package session

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
	"github.com/openspdm/spdm-go/transcript"
)

// DirectionKeys holds one direction's (requester-to-responder, or the
// reverse) AEAD key, IV, and monotonic sequence number for the secured
// message layer. Never copied by value once in use -- callers mutate
// Sequence in place and read Key/IV for AEADProvider.Encrypt/Decrypt.
type DirectionKeys struct {
	Key      []byte
	IV       []byte
	Sequence uint64
}

func (k *DirectionKeys) zeroize() {
	for i := range k.Key {
		k.Key[i] = 0
	}
	for i := range k.IV {
		k.IV[i] = 0
	}
	k.Sequence = 0
}

// Session is one entry of a Table: the negotiated algorithms, the running
// transcript accumulators, and -- once the handshake key schedule has run
// -- the per-direction secured-message keys.
type Session struct {
	mu sync.Mutex

	id    uint32
	state State
	cfg   Config

	algo    protocol.Algorithms
	algoSet bool

	transcripts *transcript.Set

	handshakeSecret []byte
	masterSecret    []byte

	requestKeys  DirectionKeys
	responseKeys DirectionKeys
}

// newSession allocates a session bound to id, with an empty transcript set
// under hashAlgo (the negotiation Store's hash, known before the session
// key schedule runs).
func newSession(id uint32, hashAlgo protocol.BaseHashAlgo, cfg Config) (*Session, error) {
	if id == protocol.SessionIDNone || id == protocol.SessionIDReserved {
		return nil, spdmerr.New(spdmerr.InvalidParameter, "reserved session id").WithDetail("id", id)
	}
	return &Session{
		id:          id,
		state:       NotStarted,
		cfg:         cfg,
		transcripts: transcript.NewSet(hashAlgo),
	}, nil
}

// ID returns the session's 32-bit wire identifier.
func (s *Session) ID() uint32 {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Config returns the session's policy configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Transcripts returns the running accumulator set for this session's
// key-exchange messages (message_k, message_f).
func (s *Session) Transcripts() *transcript.Set {
	return s.transcripts
}

// SetAlgorithms records the negotiated algorithm selection for this
// session. It may be set exactly once.
func (s *Session) SetAlgorithms(a protocol.Algorithms) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.algoSet {
		return spdmerr.New(spdmerr.InvalidStateLocal, "session algorithms already set")
	}
	s.algo = a
	s.algoSet = true
	return nil
}

// Algorithms returns the algorithms bound to this session.
func (s *Session) Algorithms() protocol.Algorithms {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.algo
}

// teardownLocked zeroizes all derived key material. Callers must hold s.mu.
func (s *Session) teardownLocked() {
	for i := range s.handshakeSecret {
		s.handshakeSecret[i] = 0
	}
	for i := range s.masterSecret {
		s.masterSecret[i] = 0
	}
	s.handshakeSecret = nil
	s.masterSecret = nil
	s.requestKeys.zeroize()
	s.responseKeys.zeroize()
	s.algoSet = false
	s.transcripts.Reset(transcript.MessageK)
	s.transcripts.Reset(transcript.MessageF)
}

// Close tears down the session unconditionally, equivalent to a fatal
// fault: all key material is zeroized and the state returns to
// NotStarted, making the slot reusable by a Table.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.state = NotStarted
	return nil
}

// DeriveHandshakeSecrets runs the handshake half of the key schedule: the
// DHE shared secret and the TH1 transcript hash (over message_k so far)
// are combined via HKDF-Extract/Expand into a handshake secret, then
// per-direction handshake keys/IVs, and the session advances to
// Handshaking. sharedSecret must be zeroized by the caller afterward.
func (s *Session) DeriveHandshakeSecrets(sharedSecret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.algoSet {
		return spdmerr.New(spdmerr.InvalidStateLocal, "algorithms not set before key schedule")
	}

	th1, err := s.transcripts.Get(transcript.MessageK).Digest(s.algo.BaseHash)
	if err != nil {
		return spdmerr.Wrap(spdmerr.CryptoError, "compute TH1", err)
	}

	secret, err := hkdfExpand(s.algo.BaseHash, sharedSecret, th1, []byte("handshake secret"), s.algo.BaseHash.Size())
	if err != nil {
		return err
	}
	s.handshakeSecret = secret

	if err := s.deriveDirectionKeysLocked(s.handshakeSecret, th1, "req handshake", "rsp handshake"); err != nil {
		return err
	}

	if !s.state.canAdvanceTo(Handshaking) {
		return spdmerr.New(spdmerr.InvalidStateLocal, "illegal session state transition").
			WithDetail("from", s.state.String()).WithDetail("to", Handshaking.String())
	}
	s.state = Handshaking
	return nil
}

// DeriveApplicationSecrets runs the second half of the key schedule: the
// handshake secret and the TH2 transcript hash (over message_k || message_f,
// i.e. message_f as it stands once FINISH has been processed) are combined
// into a master secret, then per-direction application data keys/IVs, and
// the session advances to Established.
func (s *Session) DeriveApplicationSecrets() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handshakeSecret == nil {
		return spdmerr.New(spdmerr.InvalidStateLocal, "handshake secrets not derived")
	}

	th2, err := s.transcripts.Get(transcript.MessageF).Digest(s.algo.BaseHash)
	if err != nil {
		return spdmerr.Wrap(spdmerr.CryptoError, "compute TH2", err)
	}

	secret, err := hkdfExpand(s.algo.BaseHash, s.handshakeSecret, th2, []byte("master secret"), s.algo.BaseHash.Size())
	if err != nil {
		return err
	}
	s.masterSecret = secret

	if err := s.deriveDirectionKeysLocked(s.masterSecret, th2, "req data", "rsp data"); err != nil {
		return err
	}

	if !s.state.canAdvanceTo(Established) {
		return spdmerr.New(spdmerr.InvalidStateLocal, "illegal session state transition").
			WithDetail("from", s.state.String()).WithDetail("to", Established.String())
	}
	s.state = Established
	return nil
}

// deriveDirectionKeysLocked fills s.requestKeys/s.responseKeys from secret,
// replacing any previous material (so key update and the second stage of
// the schedule both reset the sequence numbers to zero). Caller holds s.mu.
func (s *Session) deriveDirectionKeysLocked(secret, transcriptHash []byte, reqLabel, rspLabel string) error {
	keySize := s.algo.AEAD.KeySize()
	ivSize := s.algo.AEAD.IVSize()
	if keySize == 0 {
		return spdmerr.New(spdmerr.Unsupported, "no aead algorithm negotiated")
	}

	reqKey, err := hkdfExpand(s.algo.BaseHash, secret, transcriptHash, append([]byte(reqLabel), 'k'), keySize)
	if err != nil {
		return err
	}
	reqIV, err := hkdfExpand(s.algo.BaseHash, secret, transcriptHash, append([]byte(reqLabel), 'i'), ivSize)
	if err != nil {
		return err
	}
	rspKey, err := hkdfExpand(s.algo.BaseHash, secret, transcriptHash, append([]byte(rspLabel), 'k'), keySize)
	if err != nil {
		return err
	}
	rspIV, err := hkdfExpand(s.algo.BaseHash, secret, transcriptHash, append([]byte(rspLabel), 'i'), ivSize)
	if err != nil {
		return err
	}

	s.requestKeys.zeroize()
	s.responseKeys.zeroize()
	s.requestKeys = DirectionKeys{Key: reqKey, IV: reqIV}
	s.responseKeys = DirectionKeys{Key: rspKey, IV: rspIV}
	return nil
}

// RequestKeys returns the requester-to-responder direction keys. The
// returned pointer aliases the session's own storage; callers update
// Sequence in place.
func (s *Session) RequestKeys() *DirectionKeys {
	return &s.requestKeys
}

// ResponseKeys returns the responder-to-requester direction keys.
func (s *Session) ResponseKeys() *DirectionKeys {
	return &s.responseKeys
}

// UpdateKeys ratchets both directions' application keys forward per
// KEY_UPDATE, deriving each direction's next key/IV from its current one
// via HKDF-Expand and resetting both sequence numbers to zero. Unlike the
// handshake/application derivations this does not consult the transcript,
// matching KEY_UPDATE's no-payload wire form.
func (s *Session) UpdateKeys() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Established {
		return spdmerr.New(spdmerr.InvalidStateLocal, "key update requires an established session")
	}

	keySize := s.algo.AEAD.KeySize()
	ivSize := s.algo.AEAD.IVSize()

	nextReqKey, err := hkdfExpand(s.algo.BaseHash, s.requestKeys.Key, nil, []byte("key update req"), keySize)
	if err != nil {
		return err
	}
	nextReqIV, err := hkdfExpand(s.algo.BaseHash, s.requestKeys.IV, nil, []byte("key update req iv"), ivSize)
	if err != nil {
		return err
	}
	nextRspKey, err := hkdfExpand(s.algo.BaseHash, s.responseKeys.Key, nil, []byte("key update rsp"), keySize)
	if err != nil {
		return err
	}
	nextRspIV, err := hkdfExpand(s.algo.BaseHash, s.responseKeys.IV, nil, []byte("key update rsp iv"), ivSize)
	if err != nil {
		return err
	}

	s.requestKeys.zeroize()
	s.responseKeys.zeroize()
	s.requestKeys = DirectionKeys{Key: nextReqKey, IV: nextReqIV}
	s.responseKeys = DirectionKeys{Key: nextRspKey, IV: nextRspIV}
	return nil
}

// hkdfExpand runs HKDF-Extract(ikm, salt) then Expand(info, length) under
// the given base hash, mirroring the teacher's sessionSeed/deriveKeys
// idiom generalized to a caller-selected hash and label.
func hkdfExpand(algo protocol.BaseHashAlgo, ikm, salt, info []byte, length int) ([]byte, error) {
	newHash := hashNewFor(algo)
	if newHash == nil {
		return nil, spdmerr.New(spdmerr.Unsupported, "unsupported base hash algorithm")
	}
	r := hkdf.New(newHash, ikm, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "hkdf expand", err)
	}
	return out, nil
}

// hashNewFor returns the stdlib hash constructor backing algo, for HKDF.
func hashNewFor(algo protocol.BaseHashAlgo) func() hash.Hash {
	switch algo {
	case protocol.HashSHA256:
		return sha256.New
	case protocol.HashSHA384:
		return sha512.New384
	case protocol.HashSHA512:
		return sha512.New
	default:
		return nil
	}
}
