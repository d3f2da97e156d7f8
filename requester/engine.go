// Package requester implements the SPDM requester engine: one method per
// exchange, each driving a single request/response round trip (or, for
// GET_CERTIFICATE, a chunking loop) over a transport.Transport and
// recording every message into the connection's running transcripts
// (spec.md §4.5).
package requester

import (
	"context"
	"time"

	"github.com/openspdm/spdm-go/codec"
	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/internal/logger"
	"github.com/openspdm/spdm-go/internal/metrics"
	"github.com/openspdm/spdm-go/message"
	"github.com/openspdm/spdm-go/negotiation"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
	"github.com/openspdm/spdm-go/session"
	"github.com/openspdm/spdm-go/transcript"
	"github.com/openspdm/spdm-go/transport"
)

// Engine drives an SPDM connection from the requester side. It owns the
// negotiation outcome, the connection-level transcripts (message_a/b/c/m),
// and the session table for any sessions it establishes.
type Engine struct {
	tr       transport.Transport
	Store    *negotiation.Store
	Transcripts *transcript.Set
	Sessions *session.Table

	certs [protocol.MaxSlots]protocol.Slot

	tx [protocol.MaxMessageBufferSize]byte
	rx [protocol.MaxMessageBufferSize]byte

	log logger.Logger
}

// New builds an Engine bound to tr. The connection-level transcript set
// and the session table are created with SHA-256, and NegotiateAlgorithms
// does not change that hash; it is only used under the hashed_transcript
// build.
func New(tr transport.Transport) *Engine {
	return &Engine{
		tr:          tr,
		Store:       negotiation.New(),
		Transcripts: transcript.NewSet(protocol.HashSHA256),
		Sessions:    session.NewTable(protocol.HashSHA256, session.DefaultConfig()),
		log:         logger.GetDefaultLogger().WithFields(logger.String("role", "requester")),
	}
}

// recordCrypto records a cryptographic operation's outcome and latency into
// the process-wide crypto metrics.
func recordCrypto(op, algorithm string, start time.Time, err error) {
	if err != nil {
		metrics.CryptoErrors.WithLabelValues(op).Inc()
	}
	metrics.CryptoOperations.WithLabelValues(op, algorithm).Inc()
	metrics.CryptoOperationDuration.WithLabelValues(op, algorithm).Observe(time.Since(start).Seconds())
}

// exchange sends req (already encoded into e.tx) and returns the decoded
// response bytes, transparently retrying a bounded number of times when
// the responder replies with ERROR/ResponseNotReady (spec.md §7/§9).
func (e *Engine) exchange(ctx context.Context, reqCode protocol.Code, encode func(w *codec.Writer) error) (out []byte, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
			e.log.Warn("exchange failed", logger.String("request_code", reqCode.String()), logger.Error(err))
		}
		metrics.MessagesProcessed.WithLabelValues(reqCode.String(), status).Inc()
		metrics.MessageProcessingDuration.Observe(time.Since(start).Seconds())
		metrics.MessageSize.Observe(float64(len(out)))
	}()

	w := codec.NewWriter(e.tx[:])
	if err := encode(w); err != nil {
		return nil, err
	}
	reqBytes := append([]byte(nil), w.Bytes()...)

	if err := e.tr.Send(reqBytes); err != nil {
		return nil, spdmerr.Wrap(spdmerr.EncapFail, "send request", err)
	}
	n, err := e.tr.Receive(e.rx[:])
	if err != nil {
		return nil, spdmerr.Wrap(spdmerr.DecapFail, "receive response", err)
	}
	if n < 2 {
		return nil, spdmerr.New(spdmerr.DecapFail, "response too short")
	}
	resp := e.rx[:n]

	for attempt := 0; attempt < protocol.MaxErrorRetries; attempt++ {
		if protocol.Code(resp[1]) != protocol.CodeError {
			return append([]byte(nil), resp...), nil
		}
		errRsp, err := message.DecodeErrorRsp(codec.NewReader(resp))
		if err != nil {
			return nil, err
		}
		if errRsp.Code != protocol.ErrorResponseNotReady {
			return nil, spdmerr.New(spdmerr.ErrorPeer, "peer returned an error").WithDetail("code", errRsp.Code)
		}
		rnr, err := message.DecodeResponseNotReadyData(errRsp.ExtendedData)
		if err != nil {
			return nil, err
		}

		retry := message.RespondIfReadyReq{OriginalRequestCode: reqCode, Token: rnr.Token}
		rw := codec.NewWriter(e.tx[:])
		if err := retry.Encode(rw); err != nil {
			return nil, err
		}
		if err := e.tr.Send(rw.Bytes()); err != nil {
			return nil, spdmerr.Wrap(spdmerr.EncapFail, "send respond-if-ready", err)
		}
		n, err = e.tr.Receive(e.rx[:])
		if err != nil {
			return nil, spdmerr.Wrap(spdmerr.DecapFail, "receive response", err)
		}
		resp = e.rx[:n]
	}
	return nil, spdmerr.New(spdmerr.NotReadyPeer, "peer never became ready").WithDetail("retries", protocol.MaxErrorRetries)
}

// GetVersion runs GET_VERSION/VERSION and records the highest mutually
// understood version into Store.
func (e *Engine) GetVersion(ctx context.Context) (protocol.Version, error) {
	resp, err := e.exchange(ctx, protocol.CodeGetVersion, message.GetVersionReq{}.Encode)
	if err != nil {
		return 0, err
	}
	if err := e.Transcripts.Append(transcript.MessageA, resp); err != nil {
		return 0, err
	}
	vrsp, err := message.DecodeVersionRsp(codec.NewReader(resp))
	if err != nil {
		return 0, err
	}

	var best protocol.Version
	for _, v := range vrsp.Versions {
		if v.Valid() && v.AtLeast(best) {
			best = v
		}
	}
	if best == 0 {
		return 0, spdmerr.New(spdmerr.InvalidMsgField, "no mutually supported version")
	}
	if err := e.Store.SetVersion(best); err != nil {
		return 0, err
	}
	return best, nil
}

// GetCapabilities runs GET_CAPABILITIES/CAPABILITIES, recording both the
// requester's own and the responder's advertised capability sets.
func (e *Engine) GetCapabilities(ctx context.Context, local protocol.Capabilities) (protocol.Capabilities, error) {
	reqBytes, err := e.encodeOnly(message.GetCapabilitiesReq{Capabilities: local}.Encode)
	if err != nil {
		return 0, err
	}
	if err := e.Transcripts.Append(transcript.MessageB, reqBytes); err != nil {
		return 0, err
	}

	resp, err := e.exchange(ctx, protocol.CodeGetCapabilities, message.GetCapabilitiesReq{Capabilities: local}.Encode)
	if err != nil {
		return 0, err
	}
	if err := e.Transcripts.Append(transcript.MessageB, resp); err != nil {
		return 0, err
	}
	crsp, err := message.DecodeCapabilitiesRsp(codec.NewReader(resp))
	if err != nil {
		return 0, err
	}
	if err := e.Store.SetCapabilities(local, crsp.Capabilities); err != nil {
		return 0, err
	}
	return crsp.Capabilities, nil
}

// NegotiateAlgorithms runs NEGOTIATE_ALGORITHMS/ALGORITHMS and records the
// selected set into Store.
func (e *Engine) NegotiateAlgorithms(ctx context.Context, proposal message.NegotiateAlgorithmsReq) (protocol.Algorithms, error) {
	reqBytes, err := e.encodeOnly(proposal.Encode)
	if err != nil {
		return protocol.Algorithms{}, err
	}
	if err := e.Transcripts.Append(transcript.MessageB, reqBytes); err != nil {
		return protocol.Algorithms{}, err
	}

	resp, err := e.exchange(ctx, protocol.CodeNegotiateAlgorithms, proposal.Encode)
	if err != nil {
		return protocol.Algorithms{}, err
	}
	if err := e.Transcripts.Append(transcript.MessageB, resp); err != nil {
		return protocol.Algorithms{}, err
	}
	arsp, err := message.DecodeAlgorithmsRsp(codec.NewReader(resp))
	if err != nil {
		return protocol.Algorithms{}, err
	}
	if err := e.Store.SetAlgorithms(arsp.Selected); err != nil {
		return protocol.Algorithms{}, err
	}
	return arsp.Selected, nil
}

// encodeOnly encodes a request into the shared scratch buffer without
// sending it, used for requests the caller records into a transcript
// itself (GET_CAPABILITIES/NEGOTIATE_ALGORITHMS append both sides under
// the same accumulator).
func (e *Engine) encodeOnly(encode func(w *codec.Writer) error) ([]byte, error) {
	w := codec.NewWriter(e.tx[:])
	if err := encode(w); err != nil {
		return nil, err
	}
	return append([]byte(nil), w.Bytes()...), nil
}

// GetDigests runs GET_DIGESTS/DIGESTS.
func (e *Engine) GetDigests(ctx context.Context) (message.DigestsRsp, error) {
	algo, ok := e.Store.Algorithms()
	if !ok {
		return message.DigestsRsp{}, spdmerr.New(spdmerr.InvalidStateLocal, "algorithms not negotiated")
	}
	resp, err := e.exchange(ctx, protocol.CodeGetDigests, message.GetDigestsReq{}.Encode)
	if err != nil {
		return message.DigestsRsp{}, err
	}
	if err := e.Transcripts.Append(transcript.MessageB, resp); err != nil {
		return message.DigestsRsp{}, err
	}
	return message.DecodeDigestsRsp(codec.NewReader(resp), algo.HashSize())
}

// GetCertificateChain retrieves slot's full chain by repeated
// GET_CERTIFICATE calls, each bounded by protocol.MaxCertPortionLen, until
// the responder reports no remainder (grounded on the teacher's chunked
// certificate retrieval idiom).
func (e *Engine) GetCertificateChain(ctx context.Context, slot uint8) ([]byte, error) {
	var out []byte
	offset := uint16(0)
	for {
		req := message.GetCertificateReq{Slot: slot, Offset: offset, Length: protocol.MaxCertPortionLen}
		resp, err := e.exchange(ctx, protocol.CodeGetCertificate, req.Encode)
		if err != nil {
			return nil, err
		}
		if err := e.Transcripts.Append(transcript.MessageB, resp); err != nil {
			return nil, err
		}
		crsp, err := message.DecodeCertificateRsp(codec.NewReader(resp))
		if err != nil {
			return nil, err
		}
		if crsp.Slot != slot {
			return nil, spdmerr.New(spdmerr.InvalidMsgField, "certificate response slot mismatch").
				WithDetail("requested", slot).WithDetail("got", crsp.Slot)
		}
		if crsp.PortionLen > req.Length {
			return nil, spdmerr.New(spdmerr.InvalidMsgField, "certificate portion exceeds requested length").
				WithDetail("portion_len", crsp.PortionLen).WithDetail("requested", req.Length)
		}
		if uint32(offset)+uint32(crsp.PortionLen) > protocol.MaxCertChainDataSize {
			return nil, spdmerr.New(spdmerr.InvalidMsgField, "certificate chain exceeds maximum buffer size").
				WithDetail("offset", offset).WithDetail("portion_len", crsp.PortionLen)
		}
		out = append(out, crsp.CertChain...)
		if crsp.RemainderLen == 0 {
			break
		}
		offset += uint16(len(crsp.CertChain))
	}
	if len(out) > protocol.MaxCertChainDataSize {
		return nil, spdmerr.New(spdmerr.InvalidMsgField, "assembled certificate chain exceeds maximum buffer size").
			WithDetail("size", len(out))
	}
	e.certs[slot] = protocol.Slot{Populated: true}
	copy(e.certs[slot].Chain.Data[:], out)
	e.certs[slot].Chain.DataSize = uint32(len(out))
	return out, nil
}

// Challenge runs CHALLENGE/CHALLENGE_AUTH, verifying the responder's
// signature over message_c (CHALLENGE||CHALLENGE_AUTH-minus-signature;
// message_a and message_b are not included) against the leaf certificate
// from slot.
func (e *Engine) Challenge(ctx context.Context, slot uint8, measSummaryType uint8) (message.ChallengeAuthRsp, error) {
	algo, ok := e.Store.Algorithms()
	if !ok {
		return message.ChallengeAuthRsp{}, spdmerr.New(spdmerr.InvalidStateLocal, "algorithms not negotiated")
	}
	if !e.certs[slot].Populated {
		return message.ChallengeAuthRsp{}, spdmerr.New(spdmerr.InvalidStateLocal, "certificate chain not retrieved for slot").WithDetail("slot", slot)
	}

	req := message.ChallengeReq{Slot: slot, MeasurementSummaryHashType: measSummaryType}
	if err := sdkcrypto.Rand().GetRandom(req.Nonce[:]); err != nil {
		return message.ChallengeAuthRsp{}, spdmerr.Wrap(spdmerr.CryptoError, "generate challenge nonce", err)
	}

	reqBytes, err := e.encodeOnly(req.Encode)
	if err != nil {
		return message.ChallengeAuthRsp{}, err
	}

	resp, err := e.exchange(ctx, protocol.CodeChallenge, req.Encode)
	if err != nil {
		return message.ChallengeAuthRsp{}, err
	}

	measHashSize := 0
	if measSummaryType != 0 {
		measHashSize = algo.HashSize()
	}
	carsp, err := message.DecodeChallengeAuthRsp(codec.NewReader(resp), measHashSize, algo.AsymSize())
	if err != nil {
		return message.ChallengeAuthRsp{}, err
	}

	sigOffset := len(resp) - len(carsp.Signature)
	if err := e.Transcripts.Append(transcript.MessageC, reqBytes); err != nil {
		return message.ChallengeAuthRsp{}, err
	}
	if err := e.Transcripts.Append(transcript.MessageC, resp[:sigOffset]); err != nil {
		return message.ChallengeAuthRsp{}, err
	}

	signed, ok := e.Transcripts.RawBytes(transcript.MessageC)
	if !ok {
		return message.ChallengeAuthRsp{}, spdmerr.New(spdmerr.Unsupported, "challenge signature verification requires a buffer-backed transcript")
	}
	verifyStart := time.Now()
	verifyErr := sdkcrypto.Asym().Verify(algo.BaseAsym, algo.BaseHash, e.certs[slot].Chain.CertsAfterPrefix(algo.HashSize()), signed, carsp.Signature)
	recordCrypto("verify", algo.BaseAsym.String(), verifyStart, verifyErr)
	if verifyErr != nil {
		return message.ChallengeAuthRsp{}, spdmerr.Wrap(spdmerr.InvalidCert, "challenge signature verification failed", verifyErr)
	}
	return carsp, nil
}

// GetMeasurements runs GET_MEASUREMENTS/MEASUREMENTS, verifying a
// signature when the request set SigRequired.
func (e *Engine) GetMeasurements(ctx context.Context, slot uint8, req message.GetMeasurementsReq) (message.MeasurementsRsp, error) {
	algo, ok := e.Store.Algorithms()
	if !ok {
		return message.MeasurementsRsp{}, spdmerr.New(spdmerr.InvalidStateLocal, "algorithms not negotiated")
	}
	if req.SigRequired {
		if err := sdkcrypto.Rand().GetRandom(req.Nonce[:]); err != nil {
			return message.MeasurementsRsp{}, spdmerr.Wrap(spdmerr.CryptoError, "generate measurements nonce", err)
		}
		req.SlotID = slot
	}

	reqBytes, err := e.encodeOnly(req.Encode)
	if err != nil {
		return message.MeasurementsRsp{}, err
	}

	resp, err := e.exchange(ctx, protocol.CodeGetMeasurements, req.Encode)
	if err != nil {
		return message.MeasurementsRsp{}, err
	}

	sigSize := 0
	if req.SigRequired {
		sigSize = algo.AsymSize()
	}
	mrsp, err := message.DecodeMeasurementsRsp(codec.NewReader(resp), sigSize)
	if err != nil {
		return message.MeasurementsRsp{}, err
	}

	if err := e.Transcripts.Append(transcript.MessageM, reqBytes); err != nil {
		return message.MeasurementsRsp{}, err
	}
	sigOffset := len(resp) - len(mrsp.Signature)
	if err := e.Transcripts.Append(transcript.MessageM, resp[:sigOffset]); err != nil {
		return message.MeasurementsRsp{}, err
	}

	if req.SigRequired {
		if !e.certs[slot].Populated {
			return message.MeasurementsRsp{}, spdmerr.New(spdmerr.InvalidStateLocal, "certificate chain not retrieved for slot").WithDetail("slot", slot)
		}
		signed, ok := e.Transcripts.RawBytes(transcript.MessageM)
		if !ok {
			return message.MeasurementsRsp{}, spdmerr.New(spdmerr.Unsupported, "measurements signature verification requires a buffer-backed transcript")
		}
		verifyStart := time.Now()
		verifyErr := sdkcrypto.Asym().Verify(algo.BaseAsym, algo.BaseHash, e.certs[slot].Chain.CertsAfterPrefix(algo.HashSize()), signed, mrsp.Signature)
		recordCrypto("verify", algo.BaseAsym.String(), verifyStart, verifyErr)
		if verifyErr != nil {
			return message.MeasurementsRsp{}, spdmerr.Wrap(spdmerr.InvalidCert, "measurements signature verification failed", verifyErr)
		}
		e.Transcripts.Reset(transcript.MessageM)
	}
	return mrsp, nil
}
