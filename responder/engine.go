// Package responder implements the SPDM responder engine: a single
// Dispatch entry point that decodes a request's header, validates it
// against negotiated state, routes it to the matching handler, and
// returns the encoded response -- or a structured ERROR response if
// validation or processing fails, without advancing any transcript
// (spec.md §4.6). Dispatch-by-code follows the teacher's
// core/handshake/server.go SendMessage phase-switch.
package responder

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/openspdm/spdm-go/audit"
	"github.com/openspdm/spdm-go/codec"
	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/internal/logger"
	"github.com/openspdm/spdm-go/internal/metrics"
	"github.com/openspdm/spdm-go/message"
	"github.com/openspdm/spdm-go/negotiation"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
	"github.com/openspdm/spdm-go/securedmsg"
	"github.com/openspdm/spdm-go/session"
	"github.com/openspdm/spdm-go/transcript"
)

// SlotConfig is one provisioned certificate-chain slot: the chain itself
// and a handle for AsymProvider.Sign (e.g. *ecdsa.PrivateKey).
type SlotConfig struct {
	PrivateKey any
	Chain      protocol.CertChainData
}

// Config is the engine's read-only provisioned state (spec.md §6:
// "Provisioned state ... is read-only after engine creation").
type Config struct {
	Versions            []protocol.Version
	Capabilities         protocol.Capabilities
	SupportedAlgorithms  protocol.Algorithms // bitmask per field; a proposal bit not set here is rejected
	Slots                [protocol.MaxSlots]*SlotConfig
	PSKs                 map[string][]byte // PSKHintID (as a string key) -> pre-shared key
	Measurements         []byte            // pre-encoded DMTF measurement record, all blocks concatenated
	MeasurementBlockCount uint8
	SessionConfig        session.Config
}

// Engine drives one SPDM connection from the responder side. One Engine
// serves exactly one connection; concurrent connections each own their
// own Engine instance sharing no mutable state but the process-wide
// crypto registry (spec.md §5).
type Engine struct {
	cfg Config

	Store       *negotiation.Store
	Transcripts *transcript.Set
	Sessions    *session.Table

	sessionCounter uint32
	handshaking    *session.Session // the session mid-KEY_EXCHANGE/PSK_EXCHANGE awaiting FINISH/PSK_FINISH
	postWrap       func()           // runs once the in-flight secured response has been wrapped under the pre-update keys

	log   logger.Logger
	Audit audit.Sink // best-effort session lifecycle / measurement record; never blocks Dispatch

	tx [protocol.MaxMessageBufferSize]byte
}

// New builds an Engine from its provisioned configuration. The audit sink
// defaults to audit.NoopSink{}; set Engine.Audit after New to enable
// persistence.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:         cfg,
		Store:       negotiation.New(),
		Transcripts: transcript.NewSet(protocol.HashSHA256),
		Sessions:    session.NewTable(protocol.HashSHA256, cfg.SessionConfig),
		log:         logger.GetDefaultLogger().WithFields(logger.String("role", "responder")),
		Audit:       audit.NoopSink{},
	}
}

// Dispatch processes one inbound frame and returns the bytes to send back.
// It never returns an error itself: any failure is reported to the peer as
// an encoded ERROR response.
func (e *Engine) Dispatch(req []byte) []byte {
	start := time.Now()
	secured := isSecuredFrame(req)

	var resp []byte
	var err error
	if secured {
		resp = e.dispatchSecured(req)
	} else {
		resp, err = e.dispatchPlain(req)
		if err != nil {
			resp = e.buildErrorRsp(err)
		}
	}

	status := "success"
	if err != nil || (len(resp) > 1 && !secured && protocol.Code(resp[1]) == protocol.CodeError) {
		status = "failure"
	}
	codeName := "secured"
	if !secured && len(req) > 1 {
		codeName = protocol.Code(req[1]).String()
	}
	metrics.MessagesProcessed.WithLabelValues(codeName, status).Inc()
	metrics.MessageProcessingDuration.Observe(time.Since(start).Seconds())
	metrics.MessageSize.Observe(float64(len(req)))
	return resp
}

// isSecuredFrame distinguishes a plaintext SPDM header from a secured-
// message frame. Every plaintext request begins {valid version, request
// code}; a secured frame's leading four bytes are a session id with no
// such structure, so a header that doesn't parse as a plaintext request is
// treated as secured (spec.md §4.8 frames are only exchanged once a
// session exists, so this never collides with a genuine pre-session
// request).
func isSecuredFrame(req []byte) bool {
	if len(req) < 2 {
		return true
	}
	return !(protocol.Version(req[0]).Valid() && protocol.Code(req[1]).IsRequest())
}

// ensureVersion learns the negotiated version from the first request that
// follows GET_VERSION/VERSION (no message explicitly re-announces it) and
// enforces it on every request after that (spec.md §4.6 validation 1).
func (e *Engine) ensureVersion(v protocol.Version) error {
	if !v.Valid() {
		return spdmerr.New(spdmerr.InvalidParameter, "unknown spdm version").WithDetail("version", v)
	}
	if negotiated, ok := e.Store.Version(); ok {
		if v != negotiated {
			return spdmerr.New(spdmerr.InvalidMsgField, "version does not match negotiated version").
				WithDetail("want", negotiated.String()).WithDetail("got", v.String())
		}
		return nil
	}
	return e.Store.SetVersion(v)
}

func (e *Engine) dispatchPlain(req []byte) ([]byte, error) {
	if len(req) < 2 {
		return nil, spdmerr.New(spdmerr.InvalidMsgField, "request too short")
	}
	switch protocol.Code(req[1]) {
	case protocol.CodeGetVersion:
		return e.handleGetVersion(req)
	case protocol.CodeGetCapabilities:
		return e.handleGetCapabilities(req)
	case protocol.CodeNegotiateAlgorithms:
		return e.handleNegotiateAlgorithms(req)
	case protocol.CodeGetDigests:
		return e.handleGetDigests(req)
	case protocol.CodeGetCertificate:
		return e.handleGetCertificate(req)
	case protocol.CodeChallenge:
		return e.handleChallenge(req)
	case protocol.CodeGetMeasurements:
		return e.handleGetMeasurements(req)
	case protocol.CodeKeyExchange:
		return e.handleKeyExchange(req)
	case protocol.CodeFinish:
		return e.handleFinish(req)
	case protocol.CodePSKExchange:
		return e.handlePSKExchange(req)
	case protocol.CodePSKFinish:
		return e.handlePSKFinish(req)
	case protocol.CodeRespondIfReady:
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "no deferred response is pending")
	default:
		return nil, spdmerr.New(spdmerr.InvalidMsgField, "unsupported request code").WithDetail("code", protocol.Code(req[1]).String())
	}
}

// dispatchSecured unwraps a secured frame, dispatches the plaintext body,
// and wraps whatever comes back -- a real response or an ERROR -- under
// the same session's response-direction keys, so the peer always sees a
// consistently secured reply once its session is established.
func (e *Engine) dispatchSecured(frame []byte) []byte {
	if len(frame) < 4 {
		return e.buildErrorRsp(spdmerr.New(spdmerr.InvalidMsgField, "secured frame too short"))
	}
	sessionID := binary.LittleEndian.Uint32(frame[:4])
	sess, ok := e.Sessions.Get(sessionID)
	if !ok {
		return e.buildErrorRsp(spdmerr.New(spdmerr.InvalidParameter, "unknown session id").WithDetail("id", sessionID))
	}
	algo := sess.Algorithms()

	plaintext, err := securedmsg.Unwrap(algo.AEAD, sessionID, sess.RequestKeys(), frame)
	if err != nil {
		return e.buildErrorRsp(err)
	}

	respPlain, err := e.dispatchSecuredPlain(sess, plaintext)
	if err != nil {
		respPlain = e.buildErrorRsp(err)
	}

	frameOut, err := securedmsg.Wrap(algo.AEAD, sessionID, sess.ResponseKeys(), respPlain)
	if err != nil {
		return e.buildErrorRsp(err)
	}
	if e.postWrap != nil {
		e.postWrap()
		e.postWrap = nil
	}
	return frameOut
}

func (e *Engine) dispatchSecuredPlain(sess *session.Session, req []byte) ([]byte, error) {
	if len(req) < 2 {
		return nil, spdmerr.New(spdmerr.InvalidMsgField, "secured request too short")
	}
	switch protocol.Code(req[1]) {
	case protocol.CodeHeartbeat:
		return e.handleHeartbeat(sess, req)
	case protocol.CodeKeyUpdate:
		return e.handleKeyUpdate(sess, req)
	case protocol.CodeEndSession:
		return e.handleEndSession(sess, req)
	default:
		return nil, spdmerr.New(spdmerr.InvalidMsgField, "unexpected secured request code").WithDetail("code", protocol.Code(req[1]).String())
	}
}

// buildErrorRsp maps a spdmerr.Error onto the closest ERROR response code
// (spec.md §4.6: "Validation failures emit a structured ResponseError").
func (e *Engine) buildErrorRsp(err error) []byte {
	e.log.Warn("request failed", logger.Error(err))
	code := protocol.ErrorUnexpectedRequest
	if se, ok := err.(*spdmerr.Error); ok {
		switch se.Code {
		case spdmerr.InvalidMsgField, spdmerr.InvalidParameter, spdmerr.InvalidCert:
			code = protocol.ErrorInvalidRequest
		case spdmerr.CryptoError:
			code = protocol.ErrorDecryptError
		case spdmerr.Unsupported:
			code = protocol.ErrorUnsupportedRequest
		case spdmerr.InvalidStateLocal:
			code = protocol.ErrorUnexpectedRequest
		}
	}
	w := codec.NewWriter(e.tx[:])
	if encErr := (message.ErrorRsp{Code: code}).Encode(w); encErr != nil {
		return []byte{uint8(protocol.Version11), uint8(protocol.CodeError), uint8(protocol.ErrorUnexpectedRequest), 0}
	}
	return append([]byte(nil), w.Bytes()...)
}

// encode runs encodeFn against the engine's scratch buffer and returns a
// detached copy of the written bytes.
func (e *Engine) encode(encodeFn func(w *codec.Writer) error) ([]byte, error) {
	w := codec.NewWriter(e.tx[:])
	if err := encodeFn(w); err != nil {
		return nil, err
	}
	return append([]byte(nil), w.Bytes()...), nil
}

// recordCrypto updates the crypto operation counters and latency histogram
// for one call to a sdkcrypto provider.
func recordCrypto(op, algorithm string, start time.Time, err error) {
	if err != nil {
		metrics.CryptoErrors.WithLabelValues(op).Inc()
	}
	metrics.CryptoOperations.WithLabelValues(op, algorithm).Inc()
	metrics.CryptoOperationDuration.WithLabelValues(op, algorithm).Observe(time.Since(start).Seconds())
}

// nextSessionID hands out responder-assigned session identifiers,
// skipping the reserved sentinels (spec.md §4.7).
func (e *Engine) nextSessionID() uint32 {
	for {
		e.sessionCounter++
		id := e.sessionCounter
		if id != protocol.SessionIDNone && id != protocol.SessionIDReserved {
			return id
		}
	}
}

func (e *Engine) handleGetVersion(req []byte) ([]byte, error) {
	if _, err := message.DecodeGetVersionReq(codec.NewReader(req)); err != nil {
		return nil, err
	}
	resp, err := e.encode(message.VersionRsp{Versions: e.cfg.Versions}.Encode)
	if err != nil {
		return nil, err
	}
	if err := e.Transcripts.Append(transcript.MessageA, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) handleGetCapabilities(req []byte) ([]byte, error) {
	if err := e.ensureVersion(protocol.Version(req[0])); err != nil {
		return nil, err
	}
	greq, err := message.DecodeGetCapabilitiesReq(codec.NewReader(req))
	if err != nil {
		return nil, err
	}
	if err := e.Transcripts.Append(transcript.MessageB, req); err != nil {
		return nil, err
	}

	resp, err := e.encode(message.CapabilitiesRsp{Capabilities: e.cfg.Capabilities}.Encode)
	if err != nil {
		return nil, err
	}
	if err := e.Transcripts.Append(transcript.MessageB, resp); err != nil {
		return nil, err
	}
	if err := e.Store.SetCapabilities(greq.Capabilities, e.cfg.Capabilities); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) handleNegotiateAlgorithms(req []byte) ([]byte, error) {
	if err := e.ensureVersion(protocol.Version(req[0])); err != nil {
		return nil, err
	}
	if _, _, ok := e.Store.Capabilities(); !ok {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "capabilities not negotiated")
	}
	proposal, err := message.DecodeNegotiateAlgorithmsReq(codec.NewReader(req))
	if err != nil {
		return nil, err
	}

	supported := e.cfg.SupportedAlgorithms
	selected := protocol.Algorithms{
		MeasurementSpec: proposal.MeasurementSpec,
		BaseAsym:        proposal.BaseAsym & supported.BaseAsym,
		BaseHash:        proposal.BaseHash & supported.BaseHash,
		DHE:             proposal.DHE & supported.DHE,
		AEAD:            proposal.AEAD & supported.AEAD,
		KeySchedule:     proposal.KeySchedule & supported.KeySchedule,
		MeasurementHash: supported.MeasurementHash,
	}
	if selected.BaseAsym == 0 || selected.BaseHash == 0 || selected.DHE == 0 || selected.AEAD == 0 || selected.KeySchedule == 0 {
		return nil, spdmerr.New(spdmerr.InvalidMsgField, "no mutually supported algorithm in proposal")
	}

	resp, err := e.encode(message.AlgorithmsRsp{Selected: selected}.Encode)
	if err != nil {
		return nil, err
	}
	if err := e.Store.SetAlgorithms(selected); err != nil {
		return nil, err
	}
	if err := e.Transcripts.Append(transcript.MessageB, req); err != nil {
		return nil, err
	}
	if err := e.Transcripts.Append(transcript.MessageB, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) handleGetDigests(req []byte) ([]byte, error) {
	if err := e.ensureVersion(protocol.Version(req[0])); err != nil {
		return nil, err
	}
	algo, ok := e.Store.Algorithms()
	if !ok {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "algorithms not negotiated")
	}
	if !e.cfg.Capabilities.Has(protocol.CapCert) {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "certificate capability not advertised")
	}
	if _, err := message.DecodeGetDigestsReq(codec.NewReader(req)); err != nil {
		return nil, err
	}

	var slotMask uint8
	var digests [][]byte
	for slot := 0; slot < protocol.MaxSlots; slot++ {
		sc := e.cfg.Slots[slot]
		if sc == nil {
			continue
		}
		slotMask |= 1 << uint(slot)
		start := time.Now()
		digest, err := sdkcrypto.Hash().HashAll(algo.BaseHash, sc.Chain.CertsAfterPrefix(algo.HashSize()))
		recordCrypto("hash", algo.BaseHash.String(), start, err)
		if err != nil {
			return nil, spdmerr.Wrap(spdmerr.CryptoError, "hash slot chain", err)
		}
		digests = append(digests, digest)
	}

	resp, err := e.encode(message.DigestsRsp{SlotMask: slotMask, Digests: digests}.Encode)
	if err != nil {
		return nil, err
	}
	if err := e.Transcripts.Append(transcript.MessageB, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) handleGetCertificate(req []byte) ([]byte, error) {
	if err := e.ensureVersion(protocol.Version(req[0])); err != nil {
		return nil, err
	}
	if _, ok := e.Store.Algorithms(); !ok {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "algorithms not negotiated")
	}
	greq, err := message.DecodeGetCertificateReq(codec.NewReader(req))
	if err != nil {
		return nil, err
	}
	if greq.Slot >= protocol.MaxSlots || e.cfg.Slots[greq.Slot] == nil {
		return nil, spdmerr.New(spdmerr.InvalidParameter, "certificate slot not provisioned").WithDetail("slot", greq.Slot)
	}

	chain := e.cfg.Slots[greq.Slot].Chain.Bytes()
	if int(greq.Offset) > len(chain) {
		return nil, spdmerr.New(spdmerr.InvalidParameter, "offset beyond chain length").WithDetail("offset", greq.Offset)
	}
	end := int(greq.Offset) + int(greq.Length)
	if end > len(chain) {
		end = len(chain)
	}
	portion := chain[greq.Offset:end]

	resp, err := e.encode(message.CertificateRsp{
		Slot:         greq.Slot,
		RemainderLen: uint16(len(chain) - int(greq.Offset) - len(portion)),
		CertChain:    portion,
	}.Encode)
	if err != nil {
		return nil, err
	}
	if err := e.Transcripts.Append(transcript.MessageB, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) handleChallenge(req []byte) ([]byte, error) {
	if err := e.ensureVersion(protocol.Version(req[0])); err != nil {
		return nil, err
	}
	algo, ok := e.Store.Algorithms()
	if !ok {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "algorithms not negotiated")
	}
	if !e.cfg.Capabilities.Has(protocol.CapChal) {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "challenge capability not advertised")
	}
	creq, err := message.DecodeChallengeReq(codec.NewReader(req))
	if err != nil {
		return nil, err
	}
	if creq.Slot >= protocol.MaxSlots || e.cfg.Slots[creq.Slot] == nil {
		return nil, spdmerr.New(spdmerr.InvalidParameter, "certificate slot not provisioned").WithDetail("slot", creq.Slot)
	}
	sc := e.cfg.Slots[creq.Slot]

	rspNoSig := message.ChallengeAuthRsp{Slot: creq.Slot}
	if err := sdkcrypto.Rand().GetRandom(rspNoSig.ResponderNonce[:]); err != nil {
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "generate responder nonce", err)
	}
	if creq.MeasurementSummaryHashType != 0 {
		h, err := sdkcrypto.Hash().HashAll(algo.BaseHash, e.cfg.Measurements)
		if err != nil {
			return nil, spdmerr.Wrap(spdmerr.CryptoError, "hash measurement summary", err)
		}
		rspNoSig.MeasurementSummaryHash = h
	}

	rspNoSigBytes, err := e.encode(rspNoSig.Encode)
	if err != nil {
		return nil, err
	}
	signed := append(append([]byte(nil), req...), rspNoSigBytes...)
	signStart := time.Now()
	sig, err := sdkcrypto.Asym().Sign(algo.BaseAsym, algo.BaseHash, sc.PrivateKey, signed)
	recordCrypto("sign", algo.BaseAsym.String(), signStart, err)
	if err != nil {
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "sign challenge transcript", err)
	}

	rspNoSig.Signature = sig
	resp, err := e.encode(rspNoSig.Encode)
	if err != nil {
		return nil, err
	}
	if err := e.Transcripts.Append(transcript.MessageC, req); err != nil {
		return nil, err
	}
	if err := e.Transcripts.Append(transcript.MessageC, rspNoSigBytes); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) handleGetMeasurements(req []byte) ([]byte, error) {
	if err := e.ensureVersion(protocol.Version(req[0])); err != nil {
		return nil, err
	}
	algo, ok := e.Store.Algorithms()
	if !ok {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "algorithms not negotiated")
	}
	if !e.cfg.Capabilities.Has(protocol.CapMeasRaw) && !e.cfg.Capabilities.Has(protocol.CapMeasSig) {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "measurement capability not advertised")
	}
	mreq, err := message.DecodeGetMeasurementsReq(codec.NewReader(req))
	if err != nil {
		return nil, err
	}
	if mreq.SigRequired && !e.cfg.Capabilities.Has(protocol.CapMeasSig) {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "signed measurement capability not advertised")
	}

	rsp := message.MeasurementsRsp{NumberOfBlocks: e.cfg.MeasurementBlockCount}
	if mreq.Operation != message.MeasurementOpTotalCount {
		rsp.Record = e.cfg.Measurements
	}
	if err := sdkcrypto.Rand().GetRandom(rsp.ResponderNonce[:]); err != nil {
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "generate responder nonce", err)
	}

	rspNoSigBytes, err := e.encode(rsp.Encode)
	if err != nil {
		return nil, err
	}

	if mreq.SigRequired {
		if mreq.SlotID >= protocol.MaxSlots || e.cfg.Slots[mreq.SlotID] == nil {
			return nil, spdmerr.New(spdmerr.InvalidParameter, "certificate slot not provisioned").WithDetail("slot", mreq.SlotID)
		}
		signed := append(append([]byte(nil), req...), rspNoSigBytes...)
		signStart := time.Now()
		sig, err := sdkcrypto.Asym().Sign(algo.BaseAsym, algo.BaseHash, e.cfg.Slots[mreq.SlotID].PrivateKey, signed)
		recordCrypto("sign", algo.BaseAsym.String(), signStart, err)
		if err != nil {
			return nil, spdmerr.Wrap(spdmerr.CryptoError, "sign measurements transcript", err)
		}
		rsp.Signature = sig
	}

	resp, err := e.encode(rsp.Encode)
	if err != nil {
		return nil, err
	}
	if err := e.Transcripts.Append(transcript.MessageM, req); err != nil {
		return nil, err
	}
	if err := e.Transcripts.Append(transcript.MessageM, rspNoSigBytes); err != nil {
		return nil, err
	}
	if mreq.SigRequired {
		e.Transcripts.Reset(transcript.MessageM)
	}
	e.Audit.Record(context.Background(), audit.Event{
		Type: audit.MeasurementRetrieved,
		Role: "responder",
	})
	return resp, nil
}
