package session

import (
	"testing"

	"github.com/openspdm/spdm-go/crypto/providers"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/transcript"
)

func init() {
	providers.RegisterDefaults()
}

// FuzzTableCreate fuzzes session-id allocation: id 0 and 0xFFFFFFFF must
// always be rejected, any other id must round-trip through Create/Get/Remove
// without the table ever exceeding its fixed capacity.
func FuzzTableCreate(f *testing.F) {
	f.Add(uint32(0))
	f.Add(uint32(1))
	f.Add(uint32(0xFFFFFFFF))
	f.Add(uint32(0x1234))

	f.Fuzz(func(t *testing.T, id uint32) {
		tbl := NewTable(protocol.HashSHA256, DefaultConfig())
		defer tbl.Close()

		sess, err := tbl.Create(id)
		if id == protocol.SessionIDNone || id == protocol.SessionIDReserved {
			if err == nil {
				t.Fatalf("reserved id %d must be rejected", id)
			}
			return
		}
		if err != nil {
			t.Fatalf("unexpected error creating id %d: %v", id, err)
		}
		if sess.ID() != id {
			t.Fatalf("session id mismatch: got %d want %d", sess.ID(), id)
		}

		got, ok := tbl.Get(id)
		if !ok || got.ID() != id {
			t.Fatalf("Get did not return the created session for id %d", id)
		}

		tbl.Remove(id)
		if _, ok := tbl.Get(id); ok {
			t.Fatalf("session for id %d still present after Remove", id)
		}
	})
}

// FuzzKeySchedule fuzzes the handshake/application key derivation with
// arbitrary shared-secret and transcript bytes: it must never panic, and
// when it succeeds the two derived directions must never share key bytes.
func FuzzKeySchedule(f *testing.F) {
	f.Add([]byte{}, []byte("get_version||version"))
	f.Add(make([]byte, 32), []byte(""))
	f.Add([]byte{0x01, 0x02, 0x03}, []byte("key_exchange||key_exchange_rsp"))

	f.Fuzz(func(t *testing.T, sharedSecret, transcriptBytes []byte) {
		s, err := newSession(1, protocol.HashSHA256, DefaultConfig())
		if err != nil {
			t.Fatalf("newSession: %v", err)
		}
		if err := s.SetAlgorithms(testAlgorithms()); err != nil {
			t.Fatalf("SetAlgorithms: %v", err)
		}
		if err := s.Transcripts().Append(transcript.MessageK, transcriptBytes); err != nil {
			// MaxMessageBufferSize overflow is a legitimate rejection.
			return
		}

		if err := s.DeriveHandshakeSecrets(sharedSecret); err != nil {
			return
		}
		if string(s.RequestKeys().Key) == string(s.ResponseKeys().Key) {
			t.Fatal("request and response handshake keys must differ")
		}
	})
}
