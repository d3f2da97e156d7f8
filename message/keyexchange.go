package message

import (
	"github.com/openspdm/spdm-go/codec"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

// key exchange measurement-summary-hash request types, carried in Param1.
const (
	KeyExchangeMeasSummaryNone uint8 = 0x00
	KeyExchangeMeasSummaryTCB  uint8 = 0x01
	KeyExchangeMeasSummaryAll  uint8 = 0xFF
)

// KeyExchangeReq is KEY_EXCHANGE: a fresh requester random and the
// requester's ephemeral DHE public key, starting a new session.
type KeyExchangeReq struct {
	MeasurementSummaryHashType uint8
	SlotID                     uint8
	RequesterRandom            [protocol.NonceSize]byte
	ExchangeData               []byte // requester's ephemeral DHE public key, size is DHEAlgo-dependent
	OpaqueData                 []byte
}

func (m KeyExchangeReq) Encode(w *codec.Writer) error {
	if err := encodeHeader(w, protocol.CodeKeyExchange, m.MeasurementSummaryHashType, m.SlotID); err != nil {
		return err
	}
	if _, err := w.Raw(m.RequesterRandom[:]); err != nil {
		return err
	}
	if err := w.U16(uint16(len(m.ExchangeData))); err != nil {
		return err
	}
	if _, err := w.Raw(m.ExchangeData); err != nil {
		return err
	}
	if err := w.U16(uint16(len(m.OpaqueData))); err != nil {
		return err
	}
	_, err := w.Raw(m.OpaqueData)
	return err
}

// DecodeKeyExchangeReq reads a KEY_EXCHANGE request; the exchange data is
// preceded by its u16 length on the wire.
func DecodeKeyExchangeReq(r *codec.Reader) (KeyExchangeReq, error) {
	measType, slotID, err := decodeHeaderBody(r, protocol.CodeKeyExchange)
	if err != nil {
		return KeyExchangeReq{}, err
	}
	random, err := r.Bytes(protocol.NonceSize)
	if err != nil {
		return KeyExchangeReq{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read requester random", err)
	}
	out := KeyExchangeReq{MeasurementSummaryHashType: measType, SlotID: slotID}
	copy(out.RequesterRandom[:], random)

	exLen, err := r.U16()
	if err != nil {
		return KeyExchangeReq{}, err
	}
	ex, err := r.Bytes(int(exLen))
	if err != nil {
		return KeyExchangeReq{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read exchange data", err)
	}
	out.ExchangeData = append([]byte(nil), ex...)

	opLen, err := r.U16()
	if err != nil {
		return KeyExchangeReq{}, err
	}
	op, err := r.Bytes(int(opLen))
	if err != nil {
		return KeyExchangeReq{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read opaque data", err)
	}
	out.OpaqueData = append([]byte(nil), op...)
	return out, nil
}

// KeyExchangeRspMsg is KEY_EXCHANGE_RSP: the new session id, the
// responder's random and ephemeral DHE public key, an optional
// measurement summary hash, opaque data, and a signature+HMAC pair that
// together authenticate the handshake transcript so far.
type KeyExchangeRspMsg struct {
	SessionID              uint32
	ResponderRandom        [protocol.NonceSize]byte
	ExchangeData           []byte
	MeasurementSummaryHash []byte
	OpaqueData             []byte
	Signature              []byte
	ResponderVerifyData    []byte // HMAC over the transcript under the handshake secret
}

func (m KeyExchangeRspMsg) Encode(w *codec.Writer) error {
	if err := encodeHeader(w, protocol.CodeKeyExchangeRsp, 0, 0); err != nil {
		return err
	}
	if err := w.U32(m.SessionID); err != nil {
		return err
	}
	if err := w.U8(0); err != nil { // mut_auth_requested, not negotiated by this engine
		return err
	}
	if err := w.U8(0); err != nil { // req_slot_id_param, reserved when mut auth is not requested
		return err
	}
	if _, err := w.Raw(m.ResponderRandom[:]); err != nil {
		return err
	}
	if _, err := w.Raw(m.ExchangeData); err != nil {
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
	if _, err := w.Raw(m.Signature); err != nil {
		return err
	}
	_, err := w.Raw(m.ResponderVerifyData)
	return err
}

// DecodeKeyExchangeRspMsg reads a KEY_EXCHANGE_RSP. exchangeDataSize is the
// DHE public key size, measHashSize is 0 unless a summary was requested,
// sigSize/macSize come from the negotiated asym and hash algorithms.
func DecodeKeyExchangeRspMsg(r *codec.Reader, exchangeDataSize, measHashSize, sigSize, macSize int) (KeyExchangeRspMsg, error) {
	if _, _, err := decodeHeaderBody(r, protocol.CodeKeyExchangeRsp); err != nil {
		return KeyExchangeRspMsg{}, err
	}
	sessionID, err := r.U32()
	if err != nil {
		return KeyExchangeRspMsg{}, err
	}
	if _, err := r.U8(); err != nil { // mut_auth_requested
		return KeyExchangeRspMsg{}, err
	}
	if _, err := r.U8(); err != nil { // req_slot_id_param
		return KeyExchangeRspMsg{}, err
	}

	random, err := r.Bytes(protocol.NonceSize)
	if err != nil {
		return KeyExchangeRspMsg{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read responder random", err)
	}
	out := KeyExchangeRspMsg{SessionID: sessionID}
	copy(out.ResponderRandom[:], random)

	ex, err := r.Bytes(exchangeDataSize)
	if err != nil {
		return KeyExchangeRspMsg{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read exchange data", err)
	}
	out.ExchangeData = append([]byte(nil), ex...)

	if measHashSize > 0 {
		h, err := r.Bytes(measHashSize)
		if err != nil {
			return KeyExchangeRspMsg{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read measurement summary hash", err)
		}
		out.MeasurementSummaryHash = append([]byte(nil), h...)
	}

	opLen, err := r.U16()
	if err != nil {
		return KeyExchangeRspMsg{}, err
	}
	op, err := r.Bytes(int(opLen))
	if err != nil {
		return KeyExchangeRspMsg{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read opaque data", err)
	}
	out.OpaqueData = append([]byte(nil), op...)

	sig, err := r.Bytes(sigSize)
	if err != nil {
		return KeyExchangeRspMsg{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read signature", err)
	}
	out.Signature = append([]byte(nil), sig...)

	mac, err := r.Bytes(macSize)
	if err != nil {
		return KeyExchangeRspMsg{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read responder verify data", err)
	}
	out.ResponderVerifyData = append([]byte(nil), mac...)
	return out, nil
}

// FinishReq is FINISH: the requester's HMAC over the handshake transcript,
// authenticating everything up to and including KEY_EXCHANGE_RSP.
type FinishReq struct {
	RequesterVerifyData []byte
}

func (m FinishReq) Encode(w *codec.Writer) error {
	if err := encodeHeader(w, protocol.CodeFinish, 0, 0); err != nil {
		return err
	}
	_, err := w.Raw(m.RequesterVerifyData)
	return err
}

// DecodeFinishReq reads a FINISH request; macSize is the negotiated hash
// algorithm's HMAC output size.
func DecodeFinishReq(r *codec.Reader, macSize int) (FinishReq, error) {
	if _, _, err := decodeHeaderBody(r, protocol.CodeFinish); err != nil {
		return FinishReq{}, err
	}
	mac, err := r.Bytes(macSize)
	if err != nil {
		return FinishReq{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read requester verify data", err)
	}
	return FinishReq{RequesterVerifyData: append([]byte(nil), mac...)}, nil
}

// FinishRspMsg is FINISH_RSP: the responder's own HMAC over the same
// transcript including FINISH, completing mutual confirmation. Its body is
// empty unless HandshakeInClear was negotiated, a combination this engine
// does not implement (see SPEC_FULL.md Non-goals).
type FinishRspMsg struct{}

func (m FinishRspMsg) Encode(w *codec.Writer) error {
	return encodeHeader(w, protocol.CodeFinishRsp, 0, 0)
}

func DecodeFinishRspMsg(r *codec.Reader) (FinishRspMsg, error) {
	_, _, err := decodeHeaderBody(r, protocol.CodeFinishRsp)
	return FinishRspMsg{}, err
}
