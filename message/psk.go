package message

import (
	"github.com/openspdm/spdm-go/codec"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

// PSKExchangeReq is PSK_EXCHANGE: starts a session authenticated by a
// pre-shared key identified by PSKHintID rather than a certificate chain.
type PSKExchangeReq struct {
	MeasurementSummaryHashType uint8
	PSKHintID                  []byte
	RequesterContext           []byte
	OpaqueData                 []byte
}

func (m PSKExchangeReq) Encode(w *codec.Writer) error {
	if err := encodeHeader(w, protocol.CodePSKExchange, m.MeasurementSummaryHashType, 0); err != nil {
		return err
	}
	if err := w.U16(uint16(len(m.PSKHintID))); err != nil {
		return err
	}
	if err := w.U16(uint16(len(m.RequesterContext))); err != nil {
		return err
	}
	if err := w.U16(uint16(len(m.OpaqueData))); err != nil {
		return err
	}
	if _, err := w.Raw(m.PSKHintID); err != nil {
		return err
	}
	if _, err := w.Raw(m.RequesterContext); err != nil {
		return err
	}
	_, err := w.Raw(m.OpaqueData)
	return err
}

func DecodePSKExchangeReq(r *codec.Reader) (PSKExchangeReq, error) {
	measType, _, err := decodeHeaderBody(r, protocol.CodePSKExchange)
	if err != nil {
		return PSKExchangeReq{}, err
	}
	hintLen, err := r.U16()
	if err != nil {
		return PSKExchangeReq{}, err
	}
	ctxLen, err := r.U16()
	if err != nil {
		return PSKExchangeReq{}, err
	}
	opLen, err := r.U16()
	if err != nil {
		return PSKExchangeReq{}, err
	}

	hint, err := r.Bytes(int(hintLen))
	if err != nil {
		return PSKExchangeReq{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read psk hint", err)
	}
	ctx, err := r.Bytes(int(ctxLen))
	if err != nil {
		return PSKExchangeReq{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read requester context", err)
	}
	op, err := r.Bytes(int(opLen))
	if err != nil {
		return PSKExchangeReq{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read opaque data", err)
	}
	return PSKExchangeReq{
		MeasurementSummaryHashType: measType,
		PSKHintID:                  append([]byte(nil), hint...),
		RequesterContext:           append([]byte(nil), ctx...),
		OpaqueData:                 append([]byte(nil), op...),
	}, nil
}

// PSKExchangeRspMsg is PSK_EXCHANGE_RSP: the new session id, the
// responder's context, an optional measurement summary hash, opaque data,
// and the responder's verify-data HMAC.
type PSKExchangeRspMsg struct {
	SessionID              uint32
	ResponderContext       []byte
	MeasurementSummaryHash []byte
	OpaqueData             []byte
	ResponderVerifyData    []byte
}

func (m PSKExchangeRspMsg) Encode(w *codec.Writer) error {
	if err := encodeHeader(w, protocol.CodePSKExchangeRsp, 0, 0); err != nil {
		return err
	}
	if err := w.U32(m.SessionID); err != nil {
		return err
	}
	if err := w.U16(uint16(len(m.ResponderContext))); err != nil {
		return err
	}
	if err := w.U16(uint16(len(m.OpaqueData))); err != nil {
		return err
	}
	if _, err := w.Raw(m.ResponderContext); err != nil {
		return err
	}
	if _, err := w.Raw(m.MeasurementSummaryHash); err != nil {
		return err
	}
	if _, err := w.Raw(m.OpaqueData); err != nil {
		return err
	}
	_, err := w.Raw(m.ResponderVerifyData)
	return err
}

func DecodePSKExchangeRspMsg(r *codec.Reader, measHashSize, macSize int) (PSKExchangeRspMsg, error) {
	if _, _, err := decodeHeaderBody(r, protocol.CodePSKExchangeRsp); err != nil {
		return PSKExchangeRspMsg{}, err
	}
	sessionID, err := r.U32()
	if err != nil {
		return PSKExchangeRspMsg{}, err
	}
	ctxLen, err := r.U16()
	if err != nil {
		return PSKExchangeRspMsg{}, err
	}
	opLen, err := r.U16()
	if err != nil {
		return PSKExchangeRspMsg{}, err
	}
	ctx, err := r.Bytes(int(ctxLen))
	if err != nil {
		return PSKExchangeRspMsg{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read responder context", err)
	}
	out := PSKExchangeRspMsg{SessionID: sessionID, ResponderContext: append([]byte(nil), ctx...)}

	if measHashSize > 0 {
		h, err := r.Bytes(measHashSize)
		if err != nil {
			return PSKExchangeRspMsg{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read measurement summary hash", err)
		}
		out.MeasurementSummaryHash = append([]byte(nil), h...)
	}

	op, err := r.Bytes(int(opLen))
	if err != nil {
		return PSKExchangeRspMsg{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read opaque data", err)
	}
	out.OpaqueData = append([]byte(nil), op...)

	mac, err := r.Bytes(macSize)
	if err != nil {
		return PSKExchangeRspMsg{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read responder verify data", err)
	}
	out.ResponderVerifyData = append([]byte(nil), mac...)
	return out, nil
}

// PSKFinishReq is PSK_FINISH: the requester's verify-data HMAC, completing
// the PSK handshake's mutual confirmation.
type PSKFinishReq struct {
	RequesterVerifyData []byte
}

func (m PSKFinishReq) Encode(w *codec.Writer) error {
	if err := encodeHeader(w, protocol.CodePSKFinish, 0, 0); err != nil {
		return err
	}
	_, err := w.Raw(m.RequesterVerifyData)
	return err
}

func DecodePSKFinishReq(r *codec.Reader, macSize int) (PSKFinishReq, error) {
	if _, _, err := decodeHeaderBody(r, protocol.CodePSKFinish); err != nil {
		return PSKFinishReq{}, err
	}
	mac, err := r.Bytes(macSize)
	if err != nil {
		return PSKFinishReq{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read requester verify data", err)
	}
	return PSKFinishReq{RequesterVerifyData: append([]byte(nil), mac...)}, nil
}

// PSKFinishRspMsg is PSK_FINISH_RSP: header only, no body.
type PSKFinishRspMsg struct{}

func (m PSKFinishRspMsg) Encode(w *codec.Writer) error {
	return encodeHeader(w, protocol.CodePSKFinishRsp, 0, 0)
}

func DecodePSKFinishRspMsg(r *codec.Reader) (PSKFinishRspMsg, error) {
	_, _, err := decodeHeaderBody(r, protocol.CodePSKFinishRsp)
	return PSKFinishRspMsg{}, err
}
