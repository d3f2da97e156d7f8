package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openspdm/spdm-go/codec"
	"github.com/openspdm/spdm-go/protocol"
)

func roundTrip(t *testing.T, size int, encode func(*codec.Writer) error) []byte {
	t.Helper()
	buf := make([]byte, size)
	w := codec.NewWriter(buf)
	require.NoError(t, encode(w))
	return w.Bytes()
}

func TestVersionRoundTrip(t *testing.T) {
	out := roundTrip(t, protocol.MaxMessageBufferSize, VersionRsp{
		Versions: []protocol.Version{protocol.Version10, protocol.Version11, protocol.Version12},
	}.Encode)

	got, err := DecodeVersionRsp(codec.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, []protocol.Version{protocol.Version10, protocol.Version11, protocol.Version12}, got.Versions)
}

func TestCapabilitiesRoundTrip(t *testing.T) {
	want := protocol.CapCert | protocol.CapChal | protocol.CapKeyEx
	out := roundTrip(t, protocol.MaxMessageBufferSize, GetCapabilitiesReq{Capabilities: want}.Encode)

	got, err := DecodeGetCapabilitiesReq(codec.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, want, got.Capabilities)
}

func TestNegotiateAlgorithmsRoundTrip(t *testing.T) {
	req := NegotiateAlgorithmsReq{
		MeasurementSpec: protocol.MeasurementSpecDMTF,
		BaseAsym:        protocol.AsymECDSAP256,
		BaseHash:        protocol.HashSHA256,
		DHE:             protocol.DHESECP256R1,
		AEAD:            protocol.AEADChaCha20Poly1305,
		KeySchedule:     protocol.KeyScheduleSPDM,
	}
	out := roundTrip(t, protocol.MaxMessageBufferSize, req.Encode)

	got, err := DecodeNegotiateAlgorithmsReq(codec.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestAlgorithmsRspRoundTrip(t *testing.T) {
	rsp := AlgorithmsRsp{Selected: protocol.Algorithms{
		MeasurementSpec: protocol.MeasurementSpecDMTF,
		BaseAsym:        protocol.AsymECDSAP256,
		BaseHash:        protocol.HashSHA256,
		MeasurementHash: protocol.HashSHA256,
		DHE:             protocol.DHESECP256R1,
		AEAD:            protocol.AEADChaCha20Poly1305,
		KeySchedule:     protocol.KeyScheduleSPDM,
	}}
	out := roundTrip(t, protocol.MaxMessageBufferSize, rsp.Encode)

	got, err := DecodeAlgorithmsRsp(codec.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, rsp, got)
}

func TestGetCertificateRejectsOversizedPortion(t *testing.T) {
	req := GetCertificateReq{Slot: 0, Offset: 0, Length: protocol.MaxCertPortionLen + 1}
	buf := make([]byte, protocol.MaxMessageBufferSize)
	err := req.Encode(codec.NewWriter(buf))
	require.Error(t, err)
}

func TestCertificateRoundTrip(t *testing.T) {
	rsp := CertificateRsp{Slot: 2, RemainderLen: 100, CertChain: []byte("der-bytes-stand-in")}
	out := roundTrip(t, protocol.MaxMessageBufferSize, rsp.Encode)

	got, err := DecodeCertificateRsp(codec.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, rsp.Slot, got.Slot)
	assert.Equal(t, rsp.RemainderLen, got.RemainderLen)
	assert.Equal(t, rsp.CertChain, got.CertChain)
}

func TestDigestsRoundTrip(t *testing.T) {
	d1 := make([]byte, protocol.HashSHA256.Size())
	d2 := make([]byte, protocol.HashSHA256.Size())
	d1[0], d2[0] = 0xAA, 0xBB
	rsp := DigestsRsp{SlotMask: 0b0000_0101, Digests: [][]byte{d1, d2}}
	out := roundTrip(t, protocol.MaxMessageBufferSize, rsp.Encode)

	got, err := DecodeDigestsRsp(codec.NewReader(out), protocol.HashSHA256.Size())
	require.NoError(t, err)
	assert.Equal(t, rsp.Digests, got.Digests)
}

func TestChallengeRoundTrip(t *testing.T) {
	req := ChallengeReq{Slot: 1, MeasurementSummaryHashType: 0}
	req.Nonce[0] = 0x42
	out := roundTrip(t, protocol.MaxMessageBufferSize, req.Encode)

	got, err := DecodeChallengeReq(codec.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestChallengeAuthRoundTrip(t *testing.T) {
	rsp := ChallengeAuthRsp{
		Slot:       0,
		OpaqueData: []byte("opaque"),
		Signature:  make([]byte, protocol.AsymECDSAP256.Size()),
	}
	rsp.ResponderNonce[0] = 0x7
	out := roundTrip(t, protocol.MaxMessageBufferSize, rsp.Encode)

	got, err := DecodeChallengeAuthRsp(codec.NewReader(out), 0, protocol.AsymECDSAP256.Size())
	require.NoError(t, err)
	assert.Equal(t, rsp.ResponderNonce, got.ResponderNonce)
	assert.Equal(t, rsp.OpaqueData, got.OpaqueData)
	assert.Equal(t, rsp.Signature, got.Signature)
}

func TestMeasurementsRoundTrip(t *testing.T) {
	rsp := MeasurementsRsp{
		NumberOfBlocks: 3,
		Record:         []byte("measurement-block-bytes"),
		Signature:      make([]byte, protocol.AsymECDSAP256.Size()),
	}
	rsp.ResponderNonce[0] = 0x9
	out := roundTrip(t, protocol.MaxMessageBufferSize, rsp.Encode)

	got, err := DecodeMeasurementsRsp(codec.NewReader(out), protocol.AsymECDSAP256.Size())
	require.NoError(t, err)
	assert.Equal(t, rsp.Record, got.Record)
	assert.Equal(t, rsp.ResponderNonce, got.ResponderNonce)
	assert.Equal(t, rsp.Signature, got.Signature)
}

func TestKeyExchangeRoundTrip(t *testing.T) {
	req := KeyExchangeReq{
		MeasurementSummaryHashType: KeyExchangeMeasSummaryAll,
		SlotID:                     1,
		ExchangeData:               make([]byte, 32),
		OpaqueData:                 []byte("opaque"),
	}
	req.RequesterRandom[0] = 0x11
	out := roundTrip(t, protocol.MaxMessageBufferSize, req.Encode)

	got, err := DecodeKeyExchangeReq(codec.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestKeyExchangeRspRoundTrip(t *testing.T) {
	rsp := KeyExchangeRspMsg{
		SessionID:           0x01020304,
		ExchangeData:        make([]byte, 32),
		OpaqueData:          []byte("op"),
		Signature:           make([]byte, protocol.AsymECDSAP256.Size()),
		ResponderVerifyData: make([]byte, protocol.HashSHA256.Size()),
	}
	rsp.ResponderRandom[0] = 0x22
	out := roundTrip(t, protocol.MaxMessageBufferSize, rsp.Encode)

	got, err := DecodeKeyExchangeRspMsg(codec.NewReader(out), 32, 0, protocol.AsymECDSAP256.Size(), protocol.HashSHA256.Size())
	require.NoError(t, err)
	assert.Equal(t, rsp.SessionID, got.SessionID)
	assert.Equal(t, rsp.ExchangeData, got.ExchangeData)
	assert.Equal(t, rsp.ResponderVerifyData, got.ResponderVerifyData)
}

func TestFinishRoundTrip(t *testing.T) {
	req := FinishReq{RequesterVerifyData: make([]byte, protocol.HashSHA256.Size())}
	req.RequesterVerifyData[0] = 0x55
	out := roundTrip(t, protocol.MaxMessageBufferSize, req.Encode)

	got, err := DecodeFinishReq(codec.NewReader(out), protocol.HashSHA256.Size())
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestPSKExchangeRoundTrip(t *testing.T) {
	req := PSKExchangeReq{
		PSKHintID:        []byte("hint"),
		RequesterContext: []byte("ctx"),
		OpaqueData:       []byte("op"),
	}
	out := roundTrip(t, protocol.MaxMessageBufferSize, req.Encode)

	got, err := DecodePSKExchangeReq(codec.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestPSKFinishRoundTrip(t *testing.T) {
	req := PSKFinishReq{RequesterVerifyData: make([]byte, protocol.HashSHA384.Size())}
	out := roundTrip(t, protocol.MaxMessageBufferSize, req.Encode)

	got, err := DecodePSKFinishReq(codec.NewReader(out), protocol.HashSHA384.Size())
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestHeartbeatRoundTrip(t *testing.T) {
	out := roundTrip(t, protocol.MaxMessageBufferSize, HeartbeatReq{}.Encode)
	_, err := DecodeHeartbeatReq(codec.NewReader(out))
	require.NoError(t, err)
}

func TestKeyUpdateRoundTrip(t *testing.T) {
	req := KeyUpdateReq{Operation: KeyUpdateOperationUpdate, Tag: 7}
	out := roundTrip(t, protocol.MaxMessageBufferSize, req.Encode)
	got, err := DecodeKeyUpdateReq(codec.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestEndSessionRoundTrip(t *testing.T) {
	req := EndSessionReq{PreserveNegotiatedState: true}
	out := roundTrip(t, protocol.MaxMessageBufferSize, req.Encode)
	got, err := DecodeEndSessionReq(codec.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestRespondIfReadyRoundTrip(t *testing.T) {
	req := RespondIfReadyReq{OriginalRequestCode: protocol.CodeGetMeasurements, Token: 3}
	out := roundTrip(t, protocol.MaxMessageBufferSize, req.Encode)
	got, err := DecodeRespondIfReadyReq(codec.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestErrorResponseNotReadyRoundTrip(t *testing.T) {
	data := ResponseNotReadyData{RDTExponent: 5, RequestCode: uint8(protocol.CodeGetMeasurements), Token: 9, RDTM: 2}
	rsp := ErrorRsp{Code: protocol.ErrorResponseNotReady, ExtendedData: EncodeResponseNotReadyData(data)}
	out := roundTrip(t, protocol.MaxMessageBufferSize, rsp.Encode)

	got, err := DecodeErrorRsp(codec.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, protocol.ErrorResponseNotReady, got.Code)

	gotData, err := DecodeResponseNotReadyData(got.ExtendedData)
	require.NoError(t, err)
	assert.Equal(t, data, gotData)
}

func TestDecodeRejectsWrongCode(t *testing.T) {
	out := roundTrip(t, protocol.MaxMessageBufferSize, GetVersionReq{}.Encode)
	_, err := DecodeGetCapabilitiesReq(codec.NewReader(out))
	require.Error(t, err)
}
