package codec

import "testing"

func TestWriterReaderRoundTrip(t *testing.T) {
	buf := make([]byte, 32)
	w := NewWriter(buf)
	if err := w.U8(0x12); err != nil {
		t.Fatal(err)
	}
	if err := w.U16(0x3456); err != nil {
		t.Fatal(err)
	}
	if err := w.U32(0x789abcde); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Raw([]byte("hi")); err != nil {
		t.Fatal(err)
	}

	r := NewReader(w.Bytes())
	if v, err := r.U8(); err != nil || v != 0x12 {
		t.Fatalf("U8 = %v, %v", v, err)
	}
	if v, err := r.U16(); err != nil || v != 0x3456 {
		t.Fatalf("U16 = %v, %v", v, err)
	}
	if v, err := r.U32(); err != nil || v != 0x789abcde {
		t.Fatalf("U32 = %v, %v", v, err)
	}
	if b, err := r.Bytes(2); err != nil || string(b) != "hi" {
		t.Fatalf("Bytes = %v, %v", b, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", r.Remaining())
	}
}

func TestWriterOverflow(t *testing.T) {
	buf := make([]byte, 1)
	w := NewWriter(buf)
	if err := w.U16(1); err == nil {
		t.Fatal("expected overflow error")
	}
	if w.Used() != 0 {
		t.Fatalf("overflow must not partially advance, used=%d", w.Used())
	}
}

func TestReaderShortBuffer(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.U32(); err == nil {
		t.Fatal("expected short buffer error")
	}
	if r.Used() != 0 {
		t.Fatalf("short read must not advance cursor, used=%d", r.Used())
	}
}
