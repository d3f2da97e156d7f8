// Package message defines the typed request/response payloads for every
// SPDM exchange: a struct per message plus Encode/Decode parameterized
// over the negotiated version, algorithms, and capabilities (spec.md
// §4.3). Every Encode writes into a codec.Writer over a bounded scratch
// buffer; every Decode reads from a codec.Reader over the received bytes.
package message

import (
	"github.com/openspdm/spdm-go/codec"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

// GetVersionReq is GET_VERSION: header only, no body.
type GetVersionReq struct {
	Param1, Param2 uint8
}

func (m GetVersionReq) Encode(w *codec.Writer) error {
	return encodeHeader(w, protocol.CodeGetVersion, m.Param1, m.Param2)
}

func DecodeGetVersionReq(r *codec.Reader) (GetVersionReq, error) {
	p1, p2, err := decodeHeaderBody(r, protocol.CodeGetVersion)
	return GetVersionReq{Param1: p1, Param2: p2}, err
}

// VersionRsp is VERSION: a list of versions the responder supports, the
// requester selects the highest mutually understood one.
type VersionRsp struct {
	Versions []protocol.Version
}

func (m VersionRsp) Encode(w *codec.Writer) error {
	if err := encodeHeader(w, protocol.CodeVersion, 0, 0); err != nil {
		return err
	}
	if err := w.U8(0); err != nil { // reserved
		return err
	}
	if len(m.Versions) > 0xFF {
		return spdmerr.New(spdmerr.InvalidMsgField, "too many versions")
	}
	if err := w.U8(uint8(len(m.Versions))); err != nil {
		return err
	}
	for _, v := range m.Versions {
		if err := w.U16(uint16(v)); err != nil { // version_entry: version_number_and_entry_bit_alpha, low byte carries the major/minor nibbles
			return err
		}
	}
	return nil
}

func DecodeVersionRsp(r *codec.Reader) (VersionRsp, error) {
	if _, _, err := decodeHeaderBody(r, protocol.CodeVersion); err != nil {
		return VersionRsp{}, err
	}
	if _, err := r.U8(); err != nil { // reserved
		return VersionRsp{}, err
	}
	count, err := r.U8()
	if err != nil {
		return VersionRsp{}, err
	}
	out := make([]protocol.Version, 0, count)
	for i := uint8(0); i < count; i++ {
		entry, err := r.U16()
		if err != nil {
			return VersionRsp{}, err
		}
		out = append(out, protocol.Version(entry&0xFF))
	}
	return VersionRsp{Versions: out}, nil
}

// GetCapabilitiesReq is GET_CAPABILITIES: the requester's advertised
// capability bitfield.
type GetCapabilitiesReq struct {
	Capabilities protocol.Capabilities
}

func (m GetCapabilitiesReq) Encode(w *codec.Writer) error {
	if err := encodeHeader(w, protocol.CodeGetCapabilities, 0, 0); err != nil {
		return err
	}
	return w.U32(uint32(m.Capabilities))
}

func DecodeGetCapabilitiesReq(r *codec.Reader) (GetCapabilitiesReq, error) {
	if _, _, err := decodeHeaderBody(r, protocol.CodeGetCapabilities); err != nil {
		return GetCapabilitiesReq{}, err
	}
	v, err := r.U32()
	return GetCapabilitiesReq{Capabilities: protocol.Capabilities(v)}, err
}

// CapabilitiesRsp is CAPABILITIES: the responder's own bitfield, echoed
// back so the requester can intersect both sides.
type CapabilitiesRsp struct {
	Capabilities protocol.Capabilities
}

func (m CapabilitiesRsp) Encode(w *codec.Writer) error {
	if err := encodeHeader(w, protocol.CodeCapabilities, 0, 0); err != nil {
		return err
	}
	return w.U32(uint32(m.Capabilities))
}

func DecodeCapabilitiesRsp(r *codec.Reader) (CapabilitiesRsp, error) {
	if _, _, err := decodeHeaderBody(r, protocol.CodeCapabilities); err != nil {
		return CapabilitiesRsp{}, err
	}
	v, err := r.U32()
	return CapabilitiesRsp{Capabilities: protocol.Capabilities(v)}, err
}

// NegotiateAlgorithmsReq is NEGOTIATE_ALGORITHMS: the requester's
// proposed algorithm set, one value per negotiable field.
type NegotiateAlgorithmsReq struct {
	MeasurementSpec protocol.MeasurementSpec
	BaseAsym        protocol.BaseAsymAlgo
	BaseHash        protocol.BaseHashAlgo
	DHE             protocol.DHEAlgo
	AEAD            protocol.AEADAlgo
	KeySchedule     protocol.KeyScheduleAlgo
}

func (m NegotiateAlgorithmsReq) Encode(w *codec.Writer) error {
	if err := encodeHeader(w, protocol.CodeNegotiateAlgorithms, 0, 0); err != nil {
		return err
	}
	if err := w.U8(uint8(m.MeasurementSpec)); err != nil {
		return err
	}
	if err := w.U32(uint32(m.BaseAsym)); err != nil {
		return err
	}
	if err := w.U32(uint32(m.BaseHash)); err != nil {
		return err
	}
	if err := w.U16(uint16(m.DHE)); err != nil {
		return err
	}
	if err := w.U16(uint16(m.AEAD)); err != nil {
		return err
	}
	return w.U16(uint16(m.KeySchedule))
}

func DecodeNegotiateAlgorithmsReq(r *codec.Reader) (NegotiateAlgorithmsReq, error) {
	if _, _, err := decodeHeaderBody(r, protocol.CodeNegotiateAlgorithms); err != nil {
		return NegotiateAlgorithmsReq{}, err
	}
	spec, err := r.U8()
	if err != nil {
		return NegotiateAlgorithmsReq{}, err
	}
	asym, err := r.U32()
	if err != nil {
		return NegotiateAlgorithmsReq{}, err
	}
	hashAlgo, err := r.U32()
	if err != nil {
		return NegotiateAlgorithmsReq{}, err
	}
	dhe, err := r.U16()
	if err != nil {
		return NegotiateAlgorithmsReq{}, err
	}
	aead, err := r.U16()
	if err != nil {
		return NegotiateAlgorithmsReq{}, err
	}
	ks, err := r.U16()
	if err != nil {
		return NegotiateAlgorithmsReq{}, err
	}
	return NegotiateAlgorithmsReq{
		MeasurementSpec: protocol.MeasurementSpec(spec),
		BaseAsym:        protocol.BaseAsymAlgo(asym),
		BaseHash:        protocol.BaseHashAlgo(hashAlgo),
		DHE:             protocol.DHEAlgo(dhe),
		AEAD:            protocol.AEADAlgo(aead),
		KeySchedule:     protocol.KeyScheduleAlgo(ks),
	}, nil
}

// AlgorithmsRsp is ALGORITHMS: the responder's selection, one value per
// negotiable field, each a subset of what the requester proposed.
type AlgorithmsRsp struct {
	Selected protocol.Algorithms
}

func (m AlgorithmsRsp) Encode(w *codec.Writer) error {
	if err := encodeHeader(w, protocol.CodeAlgorithms, 0, 0); err != nil {
		return err
	}
	if err := w.U8(uint8(m.Selected.MeasurementSpec)); err != nil {
		return err
	}
	if err := w.U32(uint32(m.Selected.BaseAsym)); err != nil {
		return err
	}
	if err := w.U32(uint32(m.Selected.BaseHash)); err != nil {
		return err
	}
	if err := w.U32(uint32(m.Selected.MeasurementHash)); err != nil {
		return err
	}
	if err := w.U16(uint16(m.Selected.DHE)); err != nil {
		return err
	}
	if err := w.U16(uint16(m.Selected.AEAD)); err != nil {
		return err
	}
	return w.U16(uint16(m.Selected.KeySchedule))
}

func DecodeAlgorithmsRsp(r *codec.Reader) (AlgorithmsRsp, error) {
	if _, _, err := decodeHeaderBody(r, protocol.CodeAlgorithms); err != nil {
		return AlgorithmsRsp{}, err
	}
	spec, err := r.U8()
	if err != nil {
		return AlgorithmsRsp{}, err
	}
	asym, err := r.U32()
	if err != nil {
		return AlgorithmsRsp{}, err
	}
	baseHash, err := r.U32()
	if err != nil {
		return AlgorithmsRsp{}, err
	}
	measHash, err := r.U32()
	if err != nil {
		return AlgorithmsRsp{}, err
	}
	dhe, err := r.U16()
	if err != nil {
		return AlgorithmsRsp{}, err
	}
	aead, err := r.U16()
	if err != nil {
		return AlgorithmsRsp{}, err
	}
	ks, err := r.U16()
	if err != nil {
		return AlgorithmsRsp{}, err
	}
	return AlgorithmsRsp{Selected: protocol.Algorithms{
		MeasurementSpec: protocol.MeasurementSpec(spec),
		BaseAsym:        protocol.BaseAsymAlgo(asym),
		BaseHash:        protocol.BaseHashAlgo(baseHash),
		MeasurementHash: protocol.MeasurementHashAlgo(measHash),
		DHE:             protocol.DHEAlgo(dhe),
		AEAD:            protocol.AEADAlgo(aead),
		KeySchedule:     protocol.KeyScheduleAlgo(ks),
	}}, nil
}

// encodeHeader writes the four-byte {version, code, param1, param2}
// prefix every SPDM message starts with.
func encodeHeader(w *codec.Writer, code protocol.Code, p1, p2 uint8) error {
	if err := w.U8(uint8(protocol.Version11)); err != nil {
		return err
	}
	if err := w.U8(uint8(code)); err != nil {
		return err
	}
	if err := w.U8(p1); err != nil {
		return err
	}
	return w.U8(p2)
}

// decodeHeaderBody reads the four-byte header and validates the code
// matches want, returning param1/param2.
func decodeHeaderBody(r *codec.Reader, want protocol.Code) (p1, p2 uint8, err error) {
	if _, err = r.U8(); err != nil { // version, validated by the caller against negotiation.Store
		return 0, 0, err
	}
	gotCode, err := r.U8()
	if err != nil {
		return 0, 0, err
	}
	if protocol.Code(gotCode) != want {
		return 0, 0, spdmerr.New(spdmerr.InvalidMsgField, "unexpected response code").
			WithDetail("want", want.String()).WithDetail("got", protocol.Code(gotCode).String())
	}
	if p1, err = r.U8(); err != nil {
		return 0, 0, err
	}
	p2, err = r.U8()
	return p1, p2, err
}
