// Package securedmsg implements the SPDM secured-message record layer:
// every frame exchanged once a session is Established is AEAD-wrapped
// with a per-direction monotonic sequence number. FINISH and PSK_FINISH,
// exchanged while the session is Handshaking, are sent unwrapped.
package securedmsg

import (
	"github.com/openspdm/spdm-go/codec"
	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
	"github.com/openspdm/spdm-go/session"
)

// headerSize is session_id(4) || sequence_number(8) || length(2).
const headerSize = 4 + 8 + 2

// Wrap seals plaintext under dk using algo, producing the wire frame
// {session_id, sequence_number, length, aad, ciphertext, tag}. It
// increments dk.Sequence on success; a sequence number that would
// overflow uint64 is refused with spdmerr.ErrSequenceNumberOverflow,
// signaling the caller that the session must be torn down (spec.md §4.8).
func Wrap(algo protocol.AEADAlgo, sessionID uint32, dk *session.DirectionKeys, plaintext []byte) ([]byte, error) {
	if dk.Sequence == ^uint64(0) {
		return nil, spdmerr.ErrSequenceNumberOverflow
	}

	aad := buildAAD(sessionID, len(plaintext))
	nonce := sequenceNonce(dk.IV, dk.Sequence)

	ciphertext, err := sdkcrypto.AEAD().Encrypt(algo, dk.Key, nonce, aad, plaintext)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize+len(ciphertext))
	w := codec.NewWriter(out)
	if err := w.U32(sessionID); err != nil {
		return nil, err
	}
	if err := w.U64(dk.Sequence); err != nil {
		return nil, err
	}
	if err := w.U16(uint16(len(plaintext))); err != nil {
		return nil, err
	}
	if _, err := w.Raw(ciphertext); err != nil {
		return nil, err
	}

	dk.Sequence++
	return out, nil
}

// Unwrap opens a frame produced by Wrap. It verifies the frame's
// session_id matches sessionID and its sequence number is exactly the
// next expected value (dk.Sequence) -- strictly monotonic, no
// reordering or replay tolerance -- before attempting the AEAD open. A
// tag failure or a stale/out-of-order sequence number fails the frame
// without advancing dk.Sequence (spec.md §4.8: "any tag failure fails
// the frame and does not advance state").
func Unwrap(algo protocol.AEADAlgo, sessionID uint32, dk *session.DirectionKeys, frame []byte) ([]byte, error) {
	r := codec.NewReader(frame)
	gotSessionID, err := r.U32()
	if err != nil {
		return nil, spdmerr.Wrap(spdmerr.InvalidMsgField, "read frame session id", err)
	}
	if gotSessionID != sessionID {
		return nil, spdmerr.New(spdmerr.InvalidMsgField, "frame session id mismatch").
			WithDetail("want", sessionID).WithDetail("got", gotSessionID)
	}

	seq, err := r.U64()
	if err != nil {
		return nil, spdmerr.Wrap(spdmerr.InvalidMsgField, "read frame sequence number", err)
	}
	if seq != dk.Sequence {
		return nil, spdmerr.New(spdmerr.InvalidMsgField, "non-monotonic sequence number").
			WithDetail("want", dk.Sequence).WithDetail("got", seq)
	}
	if dk.Sequence == ^uint64(0) {
		return nil, spdmerr.ErrSequenceNumberOverflow
	}

	plaintextLen, err := r.U16()
	if err != nil {
		return nil, spdmerr.Wrap(spdmerr.InvalidMsgField, "read frame length", err)
	}

	ciphertext := r.Rest()
	aad := buildAAD(sessionID, int(plaintextLen))
	nonce := sequenceNonce(dk.IV, seq)

	plaintext, err := sdkcrypto.AEAD().Decrypt(algo, dk.Key, nonce, aad, ciphertext)
	if err != nil {
		return nil, err
	}
	if len(plaintext) != int(plaintextLen) {
		return nil, spdmerr.New(spdmerr.InvalidMsgField, "decrypted length does not match frame header")
	}

	dk.Sequence++
	return plaintext, nil
}

// buildAAD covers the plaintext length and session id, per spec.md §4.8.
func buildAAD(sessionID uint32, plaintextLen int) []byte {
	aad := make([]byte, 6)
	w := codec.NewWriter(aad)
	_ = w.U32(sessionID)
	_ = w.U16(uint16(plaintextLen))
	return aad
}

// sequenceNonce XORs the per-direction fixed IV with the big-endian
// sequence number in its low bytes, the standard AEAD nonce construction
// for a fixed IV plus a monotonic counter (as used by TLS 1.3 and QUIC).
func sequenceNonce(iv []byte, seq uint64) []byte {
	nonce := make([]byte, len(iv))
	copy(nonce, iv)
	for i := 0; i < 8 && i < len(nonce); i++ {
		nonce[len(nonce)-1-i] ^= byte(seq >> (8 * i))
	}
	return nonce
}
