package codec

// Bitfield32 decodes/encodes a fixed-width bitfield with a validity mask.
// Strict payloads (algorithm selections) reject unknown bits; opaque
// payloads (capability bitmaps) preserve them for the caller to mask later.
type Bitfield32 struct {
	Value uint32
	Mask  uint32
}

// DecodeBitfield32 reads a u32 bitfield. When strict is true, any bit set
// outside mask fails decode with ok=false.
func DecodeBitfield32(r *Reader, mask uint32, strict bool) (uint32, bool, error) {
	v, err := r.U32()
	if err != nil {
		return 0, false, err
	}
	if strict && v & ^mask != 0 {
		return v, false, nil
	}
	return v, true, nil
}

// EncodeBitfield32 writes a u32 bitfield verbatim (callers are expected to
// have already validated it against their mask at the point of selection).
func EncodeBitfield32(w *Writer, v uint32) error {
	return w.U32(v)
}
