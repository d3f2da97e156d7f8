package message

import (
	"github.com/openspdm/spdm-go/codec"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

// ChallengeReq is CHALLENGE: a fresh nonce the responder must sign over,
// proving possession of the slot's private key.
type ChallengeReq struct {
	Slot           uint8
	MeasurementSummaryHashType uint8
	Nonce          [protocol.NonceSize]byte
}

func (m ChallengeReq) Encode(w *codec.Writer) error {
	if m.Slot >= protocol.MaxSlots {
		return spdmerr.New(spdmerr.InvalidParameter, "slot out of range").WithDetail("slot", m.Slot)
	}
	if err := encodeHeader(w, protocol.CodeChallenge, m.Slot, m.MeasurementSummaryHashType); err != nil {
		return err
	}
	_, err := w.Raw(m.Nonce[:])
	return err
}

func DecodeChallengeReq(r *codec.Reader) (ChallengeReq, error) {
	slot, measType, err := decodeHeaderBody(r, protocol.CodeChallenge)
	if err != nil {
		return ChallengeReq{}, err
	}
	nonce, err := r.Bytes(protocol.NonceSize)
	if err != nil {
		return ChallengeReq{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read challenge nonce", err)
	}
	out := ChallengeReq{Slot: slot, MeasurementSummaryHashType: measType}
	copy(out.Nonce[:], nonce)
	return out, nil
}

// ChallengeAuthRsp is CHALLENGE_AUTH: the responder's nonce, an optional
// measurement summary hash, opaque data, and a signature over the running
// transcript -- the signature is verified by the caller against the
// transcript hash at the point this message is received, not encoded here.
type ChallengeAuthRsp struct {
	Slot                   uint8
	ResponderNonce         [protocol.NonceSize]byte
	MeasurementSummaryHash []byte // present iff the request asked for one; length is the negotiated hash size
	OpaqueData             []byte
	Signature              []byte // length is the negotiated asym algorithm's signature size
}

func (m ChallengeAuthRsp) Encode(w *codec.Writer) error {
	if err := encodeHeader(w, protocol.CodeChallengeAuth, m.Slot, 0); err != nil {
		return err
	}
	if _, err := w.Raw(m.ResponderNonce[:]); err != nil {
		return err
	}
	if _, err := w.Raw(m.MeasurementSummaryHash); err != nil {
		return err
	}
	if err := w.U16(uint16(len(m.OpaqueData))); err != nil {
		return err
	}
	if _, err := w.Raw(m.OpaqueData); err != nil {
		return err
	}
	_, err := w.Raw(m.Signature)
	return err
}

// DecodeChallengeAuthRsp reads a CHALLENGE_AUTH response. measHashSize is 0
// when the original request's MeasurementSummaryHashType asked for none;
// sigSize is the negotiated asymmetric algorithm's signature size, ground
// truth for how many trailing bytes are the signature rather than opaque
// data (spec.md §4.3: size-variable fields use negotiated algorithm sizes
// as ground truth).
func DecodeChallengeAuthRsp(r *codec.Reader, measHashSize, sigSize int) (ChallengeAuthRsp, error) {
	slot, _, err := decodeHeaderBody(r, protocol.CodeChallengeAuth)
	if err != nil {
		return ChallengeAuthRsp{}, err
	}
	nonce, err := r.Bytes(protocol.NonceSize)
	if err != nil {
		return ChallengeAuthRsp{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read responder nonce", err)
	}
	out := ChallengeAuthRsp{Slot: slot}
	copy(out.ResponderNonce[:], nonce)

	if measHashSize > 0 {
		h, err := r.Bytes(measHashSize)
		if err != nil {
			return ChallengeAuthRsp{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read measurement summary hash", err)
		}
		out.MeasurementSummaryHash = append([]byte(nil), h...)
	}

	opaqueLen, err := r.U16()
	if err != nil {
		return ChallengeAuthRsp{}, err
	}
	opaque, err := r.Bytes(int(opaqueLen))
	if err != nil {
		return ChallengeAuthRsp{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read opaque data", err)
	}
	out.OpaqueData = append([]byte(nil), opaque...)

	sig, err := r.Bytes(sigSize)
	if err != nil {
		return ChallengeAuthRsp{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read signature", err)
	}
	out.Signature = append([]byte(nil), sig...)
	return out, nil
}
