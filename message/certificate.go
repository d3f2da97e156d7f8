package message

import (
	"github.com/openspdm/spdm-go/codec"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

// GetDigestsReq is GET_DIGESTS: header only.
type GetDigestsReq struct{}

func (m GetDigestsReq) Encode(w *codec.Writer) error {
	return encodeHeader(w, protocol.CodeGetDigests, 0, 0)
}

func DecodeGetDigestsReq(r *codec.Reader) (GetDigestsReq, error) {
	_, _, err := decodeHeaderBody(r, protocol.CodeGetDigests)
	return GetDigestsReq{}, err
}

// DigestsRsp is DIGESTS: one root-hash digest per populated slot, and a
// bitmask of which slots were populated at the time of response.
type DigestsRsp struct {
	SlotMask uint8
	Digests  [][]byte // one entry per set bit in SlotMask, in ascending slot order
}

func (m DigestsRsp) Encode(w *codec.Writer) error {
	if err := encodeHeader(w, protocol.CodeDigests, 0, m.SlotMask); err != nil {
		return err
	}
	for _, d := range m.Digests {
		if _, err := w.Raw(d); err != nil {
			return err
		}
	}
	return nil
}

// DecodeDigestsRsp reads a DIGESTS response, given the negotiated hash size
// as ground truth for each digest's length (spec.md §4.3).
func DecodeDigestsRsp(r *codec.Reader, hashSize int) (DigestsRsp, error) {
	_, slotMask, err := decodeHeaderBody(r, protocol.CodeDigests)
	if err != nil {
		return DigestsRsp{}, err
	}
	out := DigestsRsp{SlotMask: slotMask}
	for slot := 0; slot < protocol.MaxSlots; slot++ {
		if slotMask&(1<<uint(slot)) == 0 {
			continue
		}
		d, err := r.Bytes(hashSize)
		if err != nil {
			return DigestsRsp{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read slot digest", err)
		}
		out.Digests = append(out.Digests, append([]byte(nil), d...))
	}
	return out, nil
}

// GetCertificateReq is GET_CERTIFICATE: requests a byte-range portion of
// one slot's chain, chunked by the requester across repeated calls.
type GetCertificateReq struct {
	Slot   uint8
	Offset uint16
	Length uint16
}

func (m GetCertificateReq) Encode(w *codec.Writer) error {
	if m.Slot >= protocol.MaxSlots {
		return spdmerr.New(spdmerr.InvalidParameter, "slot out of range").WithDetail("slot", m.Slot)
	}
	if m.Length > protocol.MaxCertPortionLen {
		return spdmerr.New(spdmerr.InvalidParameter, "requested portion exceeds the per-request cap").
			WithDetail("length", m.Length).WithDetail("max", protocol.MaxCertPortionLen)
	}
	if err := encodeHeader(w, protocol.CodeGetCertificate, m.Slot, 0); err != nil {
		return err
	}
	if err := w.U16(m.Offset); err != nil {
		return err
	}
	return w.U16(m.Length)
}

func DecodeGetCertificateReq(r *codec.Reader) (GetCertificateReq, error) {
	slot, _, err := decodeHeaderBody(r, protocol.CodeGetCertificate)
	if err != nil {
		return GetCertificateReq{}, err
	}
	offset, err := r.U16()
	if err != nil {
		return GetCertificateReq{}, err
	}
	length, err := r.U16()
	if err != nil {
		return GetCertificateReq{}, err
	}
	return GetCertificateReq{Slot: slot, Offset: offset, Length: length}, nil
}

// CertificateRsp is CERTIFICATE: one portion of a chain, plus the number
// of chain bytes remaining after it so the requester knows when chunking
// is complete.
type CertificateRsp struct {
	Slot            uint8
	PortionLen      uint16
	RemainderLen    uint16
	CertChain       []byte
}

func (m CertificateRsp) Encode(w *codec.Writer) error {
	if err := encodeHeader(w, protocol.CodeCertificate, m.Slot, 0); err != nil {
		return err
	}
	if err := w.U16(uint16(len(m.CertChain))); err != nil {
		return err
	}
	if err := w.U16(m.RemainderLen); err != nil {
		return err
	}
	_, err := w.Raw(m.CertChain)
	return err
}

func DecodeCertificateRsp(r *codec.Reader) (CertificateRsp, error) {
	slot, _, err := decodeHeaderBody(r, protocol.CodeCertificate)
	if err != nil {
		return CertificateRsp{}, err
	}
	portionLen, err := r.U16()
	if err != nil {
		return CertificateRsp{}, err
	}
	remainderLen, err := r.U16()
	if err != nil {
		return CertificateRsp{}, err
	}
	data, err := r.Bytes(int(portionLen))
	if err != nil {
		return CertificateRsp{}, spdmerr.Wrap(spdmerr.InvalidMsgField, "read certificate portion", err)
	}
	return CertificateRsp{
		Slot:         slot,
		PortionLen:   portionLen,
		RemainderLen: remainderLen,
		CertChain:    append([]byte(nil), data...),
	}, nil
}
