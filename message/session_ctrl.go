package message

import (
	"github.com/openspdm/spdm-go/codec"
	"github.com/openspdm/spdm-go/protocol"
)

// HeartbeatReq is HEARTBEAT: a secured no-op that the responder answers
// with HEARTBEAT_ACK; sessions keep no idle timer (spec.md §5).
type HeartbeatReq struct{}

func (m HeartbeatReq) Encode(w *codec.Writer) error {
	return encodeHeader(w, protocol.CodeHeartbeat, 0, 0)
}

func DecodeHeartbeatReq(r *codec.Reader) (HeartbeatReq, error) {
	_, _, err := decodeHeaderBody(r, protocol.CodeHeartbeat)
	return HeartbeatReq{}, err
}

// HeartbeatAckMsg is HEARTBEAT_ACK: header only.
type HeartbeatAckMsg struct{}

func (m HeartbeatAckMsg) Encode(w *codec.Writer) error {
	return encodeHeader(w, protocol.CodeHeartbeatAck, 0, 0)
}

func DecodeHeartbeatAckMsg(r *codec.Reader) (HeartbeatAckMsg, error) {
	_, _, err := decodeHeaderBody(r, protocol.CodeHeartbeatAck)
	return HeartbeatAckMsg{}, err
}

// key update operations, carried in Param1.
const (
	KeyUpdateOperationUpdate       uint8 = 0x01
	KeyUpdateOperationVerifyAck    uint8 = 0x02
)

// KeyUpdateReq is KEY_UPDATE: triggers a fresh direction-key derivation
// (session.UpdateKeys derives each direction's next key/IV from its
// current one via HKDF and resets both sequence numbers to zero) without
// renegotiating the session.
type KeyUpdateReq struct {
	Operation uint8
	Tag       uint8 // echoed by the peer's ack to disambiguate overlapping updates
}

func (m KeyUpdateReq) Encode(w *codec.Writer) error {
	return encodeHeader(w, protocol.CodeKeyUpdate, m.Operation, m.Tag)
}

func DecodeKeyUpdateReq(r *codec.Reader) (KeyUpdateReq, error) {
	op, tag, err := decodeHeaderBody(r, protocol.CodeKeyUpdate)
	return KeyUpdateReq{Operation: op, Tag: tag}, err
}

// KeyUpdateAckMsg is KEY_UPDATE_ACK: echoes the operation and tag.
type KeyUpdateAckMsg struct {
	Operation uint8
	Tag       uint8
}

func (m KeyUpdateAckMsg) Encode(w *codec.Writer) error {
	return encodeHeader(w, protocol.CodeKeyUpdateAck, m.Operation, m.Tag)
}

func DecodeKeyUpdateAckMsg(r *codec.Reader) (KeyUpdateAckMsg, error) {
	op, tag, err := decodeHeaderBody(r, protocol.CodeKeyUpdateAck)
	return KeyUpdateAckMsg{Operation: op, Tag: tag}, err
}

// EndSessionReq is END_SESSION: requests an orderly session teardown.
type EndSessionReq struct {
	PreserveNegotiatedState bool
}

func (m EndSessionReq) Encode(w *codec.Writer) error {
	param1 := uint8(0)
	if m.PreserveNegotiatedState {
		param1 = 1
	}
	return encodeHeader(w, protocol.CodeEndSession, param1, 0)
}

func DecodeEndSessionReq(r *codec.Reader) (EndSessionReq, error) {
	param1, _, err := decodeHeaderBody(r, protocol.CodeEndSession)
	return EndSessionReq{PreserveNegotiatedState: param1&1 != 0}, err
}

// EndSessionAckMsg is END_SESSION_ACK: header only.
type EndSessionAckMsg struct{}

func (m EndSessionAckMsg) Encode(w *codec.Writer) error {
	return encodeHeader(w, protocol.CodeEndSessionAck, 0, 0)
}

func DecodeEndSessionAckMsg(r *codec.Reader) (EndSessionAckMsg, error) {
	_, _, err := decodeHeaderBody(r, protocol.CodeEndSessionAck)
	return EndSessionAckMsg{}, err
}

// RespondIfReadyReq re-polls a response the peer previously deferred with
// ERROR/ResponseNotReady, echoing the original request's code and a token
// the responder issued.
type RespondIfReadyReq struct {
	OriginalRequestCode protocol.Code
	Token               uint8
}

func (m RespondIfReadyReq) Encode(w *codec.Writer) error {
	return encodeHeader(w, protocol.CodeRespondIfReady, uint8(m.OriginalRequestCode), m.Token)
}

func DecodeRespondIfReadyReq(r *codec.Reader) (RespondIfReadyReq, error) {
	code, token, err := decodeHeaderBody(r, protocol.CodeRespondIfReady)
	return RespondIfReadyReq{OriginalRequestCode: protocol.Code(code), Token: token}, err
}

// ErrorRsp is ERROR: reports a failure without advancing either side's
// transcript (spec.md §4.6, §7). ExtendedData's meaning depends on Code --
// ResponseNotReady carries a {RDTExponent, RequestCode, Token, RDTM}
// retry descriptor, other codes carry nothing or a free-form diagnostic.
type ErrorRsp struct {
	Code         protocol.ErrorCode
	ExtendedData []byte
}

func (m ErrorRsp) Encode(w *codec.Writer) error {
	if err := encodeHeader(w, protocol.CodeError, uint8(m.Code), 0); err != nil {
		return err
	}
	_, err := w.Raw(m.ExtendedData)
	return err
}

func DecodeErrorRsp(r *codec.Reader) (ErrorRsp, error) {
	code, _, err := decodeHeaderBody(r, protocol.CodeError)
	if err != nil {
		return ErrorRsp{}, err
	}
	return ErrorRsp{Code: protocol.ErrorCode(code), ExtendedData: append([]byte(nil), r.Rest()...)}, nil
}

// ResponseNotReadyData is the ExtendedData layout carried by an ERROR
// response whose Code is ErrorResponseNotReady.
type ResponseNotReadyData struct {
	RDTExponent uint8 // retry delay time, 2^RDTExponent microseconds
	RequestCode uint8 // the request code the responder is still processing
	Token       uint8 // echoed back in the eventual RESPOND_IF_READY
	RDTM        uint8 // retry delay time multiplier
}

func EncodeResponseNotReadyData(d ResponseNotReadyData) []byte {
	return []byte{d.RDTExponent, d.RequestCode, d.Token, d.RDTM}
}

func DecodeResponseNotReadyData(extended []byte) (ResponseNotReadyData, error) {
	r := codec.NewReader(extended)
	exp, err := r.U8()
	if err != nil {
		return ResponseNotReadyData{}, err
	}
	code, err := r.U8()
	if err != nil {
		return ResponseNotReadyData{}, err
	}
	token, err := r.U8()
	if err != nil {
		return ResponseNotReadyData{}, err
	}
	rdtm, err := r.U8()
	if err != nil {
		return ResponseNotReadyData{}, err
	}
	return ResponseNotReadyData{RDTExponent: exp, RequestCode: code, Token: token, RDTM: rdtm}, nil
}
