package message

import (
	"github.com/openspdm/spdm-go/codec"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

// measurement operation codes, carried in GetMeasurementsReq.Operation.
const (
	MeasurementOpTotalCount    uint8 = 0x00
	MeasurementOpAllRecords    uint8 = 0xFF
)

// GetMeasurementsReq is GET_MEASUREMENTS: either a request for the total
// measurement block count, a specific indexed block, or all blocks, with
// an optional fresh nonce when a signature is requested (SigRequired).
type GetMeasurementsReq struct {
	SigRequired bool
	Operation   uint8
	Nonce       [protocol.NonceSize]byte // only meaningful when SigRequired
	SlotID      uint8
}

func (m GetMeasurementsReq) Encode(w *codec.Writer) error {
	param1 := uint8(0)
	if m.SigRequired {
		param1 = 1
	}
	if err := encodeHeader(w, protocol.CodeGetMeasurements, param1, m.Operation); err != nil {
		return err
	}
	if !m.SigRequired {
		return nil
	}
	if _, err := w.Raw(m.Nonce[:]); err != nil {
		return err
	}
	return w.U8(m.SlotID)
}

func DecodeGetMeasurementsReq(r *codec.Reader) (GetMeasurementsReq, error) {
	param1, op, err := decodeHeaderBody(r, protocol.CodeGetMeasurements)
	if err != nil {
		return GetMeasurementsReq{}, err
	}
	out := GetMeasurementsReq{SigRequired: param1&1 != 0, Operation: op}
	if !out.SigRequired {
		return out, nil
	}
	nonce, err := r.Bytes(protocol.NonceSize)
	if err != nil {
		return GetMeasurementsReq{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read measurement nonce", err)
	}
	copy(out.Nonce[:], nonce)
	slotID, err := r.U8()
	if err != nil {
		return GetMeasurementsReq{}, err
	}
	out.SlotID = slotID
	return out, nil
}

// MeasurementsRsp is MEASUREMENTS: the measurement record (format depends
// on the negotiated MeasurementSpec), a responder nonce, and -- iff the
// request set SigRequired -- a signature over the transcript.
type MeasurementsRsp struct {
	NumberOfBlocks uint8
	Record         []byte // raw measurement-block bytes, bounded by protocol.MaxMeasurementRecordSize
	ResponderNonce [protocol.NonceSize]byte
	OpaqueData     []byte
	Signature      []byte // empty unless the request set SigRequired
}

func (m MeasurementsRsp) Encode(w *codec.Writer) error {
	if len(m.Record) > protocol.MaxMeasurementRecordSize {
		return spdmerr.New(spdmerr.InvalidParameter, "measurement record exceeds buffer capacity").
			WithDetail("len", len(m.Record))
	}
	if err := encodeHeader(w, protocol.CodeMeasurements, m.NumberOfBlocks, 0); err != nil {
		return err
	}
	if err := w.U32(uint32(len(m.Record))); err != nil {
		return err
	}
	if _, err := w.Raw(m.Record); err != nil {
		return err
	}
	if _, err := w.Raw(m.ResponderNonce[:]); err != nil {
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

// DecodeMeasurementsRsp reads a MEASUREMENTS response. sigSize is the
// negotiated asymmetric signature size when the original request set
// SigRequired, else 0.
func DecodeMeasurementsRsp(r *codec.Reader, sigSize int) (MeasurementsRsp, error) {
	numBlocks, _, err := decodeHeaderBody(r, protocol.CodeMeasurements)
	if err != nil {
		return MeasurementsRsp{}, err
	}
	recordLen, err := r.U32()
	if err != nil {
		return MeasurementsRsp{}, err
	}
	if recordLen > protocol.MaxMeasurementRecordSize {
		return MeasurementsRsp{}, spdmerr.New(spdmerr.InvalidMsgField, "measurement record exceeds buffer capacity").
			WithDetail("len", recordLen)
	}
	record, err := r.Bytes(int(recordLen))
	if err != nil {
		return MeasurementsRsp{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read measurement record", err)
	}
	out := MeasurementsRsp{NumberOfBlocks: numBlocks, Record: append([]byte(nil), record...)}

	nonce, err := r.Bytes(protocol.NonceSize)
	if err != nil {
		return MeasurementsRsp{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read responder nonce", err)
	}
	copy(out.ResponderNonce[:], nonce)

	opaqueLen, err := r.U16()
	if err != nil {
		return MeasurementsRsp{}, err
	}
	opaque, err := r.Bytes(int(opaqueLen))
	if err != nil {
		return MeasurementsRsp{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read opaque data", err)
	}
	out.OpaqueData = append([]byte(nil), opaque...)

	if sigSize > 0 {
		sig, err := r.Bytes(sigSize)
		if err != nil {
			return MeasurementsRsp{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read signature", err)
		}
		out.Signature = append([]byte(nil), sig...)
	}
	return out, nil
}
