package responder

import (
	"context"
	"errors"
	"time"

	"github.com/openspdm/spdm-go/audit"
	"github.com/openspdm/spdm-go/codec"
	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/internal/logger"
	"github.com/openspdm/spdm-go/internal/metrics"
	"github.com/openspdm/spdm-go/message"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
	"github.com/openspdm/spdm-go/session"
	"github.com/openspdm/spdm-go/transcript"
)

// handshakeErrorType classifies a handshake failure for the
// spdm_handshakes_failed_total error_type label.
func handshakeErrorType(err error) string {
	var se *spdmerr.Error
	if errors.As(err, &se) {
		switch se.Code {
		case spdmerr.CryptoError:
			return "crypto_error"
		case spdmerr.InvalidMsgField, spdmerr.InvalidParameter:
			return "invalid_cert"
		case spdmerr.ErrorPeer:
			return "peer_error"
		}
	}
	return "invalid_cert"
}

// handleKeyExchange answers KEY_EXCHANGE: generates an ephemeral DHE key
// pair, signs the handshake transcript with the requested slot's key, and
// derives the session's handshake secrets. The new session is tracked as
// e.handshaking until FINISH completes it. Mutual authentication is never
// requested back (SPEC_FULL.md Non-goals).
func (e *Engine) handleKeyExchange(reqRaw []byte) (resp []byte, err error) {
	metrics.HandshakesInitiated.WithLabelValues("responder").Inc()
	start := time.Now()
	defer func() {
		metrics.HandshakeDuration.WithLabelValues("key_exchange").Observe(time.Since(start).Seconds())
		if err != nil {
			e.log.Warn("key exchange failed", logger.Error(err))
			metrics.HandshakesFailed.WithLabelValues(handshakeErrorType(err)).Inc()
		}
	}()

	algo, ok := e.Store.Algorithms()
	if !ok {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "algorithms not negotiated")
	}
	if !e.cfg.Capabilities.Has(protocol.CapKeyEx) {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "key exchange capability not advertised")
	}
	req, err := message.DecodeKeyExchangeReq(codec.NewReader(reqRaw))
	if err != nil {
		return nil, err
	}
	if req.SlotID >= protocol.MaxSlots || e.cfg.Slots[req.SlotID] == nil {
		return nil, spdmerr.New(spdmerr.InvalidParameter, "certificate slot not provisioned").WithDetail("slot", req.SlotID)
	}
	sc := e.cfg.Slots[req.SlotID]

	sess, err := e.Sessions.Create(e.nextSessionID())
	if err != nil {
		return nil, err
	}
	if err := sess.SetAlgorithms(algo); err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, err
	}

	kp, err := sdkcrypto.DHE().Generate(algo.DHE)
	if err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "generate ephemeral key pair", err)
	}

	rsp := message.KeyExchangeRspMsg{SessionID: sess.ID(), ExchangeData: kp.PublicBytes()}
	if err := sdkcrypto.Rand().GetRandom(rsp.ResponderRandom[:]); err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "generate responder random", err)
	}
	if req.MeasurementSummaryHashType != 0 {
		h, err := sdkcrypto.Hash().HashAll(algo.BaseHash, e.cfg.Measurements)
		if err != nil {
			e.Sessions.Remove(sess.ID())
			return nil, spdmerr.Wrap(spdmerr.CryptoError, "hash measurement summary", err)
		}
		rsp.MeasurementSummaryHash = h
	}

	rspNoSigNoMac, err := e.encode(rsp.Encode)
	if err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, err
	}
	signed := append(append([]byte(nil), reqRaw...), rspNoSigNoMac...)
	sig, err := sdkcrypto.Asym().Sign(algo.BaseAsym, algo.BaseHash, sc.PrivateKey, signed)
	if err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "sign key exchange transcript", err)
	}
	rsp.Signature = sig

	rspWithSig, err := e.encode(rsp.Encode)
	if err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, err
	}
	if err := sess.Transcripts().Append(transcript.MessageK, reqRaw); err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, err
	}
	if err := sess.Transcripts().Append(transcript.MessageK, rspWithSig); err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, err
	}

	sharedSecret, err := kp.SharedSecret(req.ExchangeData)
	if err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "compute shared secret", err)
	}
	if err := sess.DeriveHandshakeSecrets(sharedSecret); err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, err
	}
	for i := range sharedSecret {
		sharedSecret[i] = 0
	}

	seed, ok := sess.Transcripts().RawBytes(transcript.MessageK)
	if !ok {
		e.Sessions.Remove(sess.ID())
		return nil, spdmerr.New(spdmerr.Unsupported, "key exchange verify-data requires a buffer-backed transcript")
	}
	mac, err := sdkcrypto.HMAC().HMAC(algo.BaseHash, sess.ResponseKeys().Key, seed)
	if err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "compute responder verify data", err)
	}
	rsp.ResponderVerifyData = mac

	resp, err = e.encode(rsp.Encode)
	if err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, err
	}
	e.handshaking = sess
	return resp, nil
}

// handleFinish answers FINISH: checks the requester's verify-data HMAC over
// the handshake transcript and derives the session's application secrets.
func (e *Engine) handleFinish(reqRaw []byte) (resp []byte, err error) {
	defer func() {
		if err != nil {
			e.log.Warn("finish failed", logger.Error(err))
			metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
			return
		}
		metrics.HandshakesCompleted.WithLabelValues("success").Inc()
		metrics.SessionsCreated.WithLabelValues("success").Inc()
		metrics.SessionsActive.Inc()
	}()

	sess := e.handshaking
	if sess == nil {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "no key exchange in progress")
	}
	algo := sess.Algorithms()

	req, err := message.DecodeFinishReq(codec.NewReader(reqRaw), algo.HashSize())
	if err != nil {
		return nil, err
	}
	seed, ok := sess.Transcripts().RawBytes(transcript.MessageK)
	if !ok {
		return nil, spdmerr.New(spdmerr.Unsupported, "finish requires a buffer-backed transcript")
	}
	if err := sdkcrypto.HMAC().Verify(algo.BaseHash, sess.RequestKeys().Key, seed, req.RequesterVerifyData); err != nil {
		e.Sessions.Remove(sess.ID())
		e.handshaking = nil
		return nil, spdmerr.Wrap(spdmerr.InvalidMsgField, "requester verify-data check failed", err)
	}

	if err := sess.Transcripts().Append(transcript.MessageF, seed); err != nil {
		return nil, err
	}
	if err := sess.Transcripts().Append(transcript.MessageF, reqRaw); err != nil {
		return nil, err
	}

	resp, err = e.encode(message.FinishRspMsg{}.Encode)
	if err != nil {
		return nil, err
	}
	if err := sess.Transcripts().Append(transcript.MessageF, resp); err != nil {
		return nil, err
	}
	if err := sess.DeriveApplicationSecrets(); err != nil {
		return nil, err
	}
	e.handshaking = nil
	e.Audit.Record(context.Background(), audit.Event{
		Type: audit.SessionEstablished, SessionID: sess.ID(), Role: "responder",
	})
	return resp, nil
}

// handlePSKExchange answers PSK_EXCHANGE: looks the hint up against the
// provisioned PSK table and derives handshake secrets from it directly,
// skipping certificates and signatures entirely.
func (e *Engine) handlePSKExchange(reqRaw []byte) (resp []byte, err error) {
	metrics.HandshakesInitiated.WithLabelValues("responder").Inc()
	start := time.Now()
	defer func() {
		metrics.HandshakeDuration.WithLabelValues("psk_exchange").Observe(time.Since(start).Seconds())
		if err != nil {
			e.log.Warn("psk exchange failed", logger.Error(err))
			metrics.HandshakesFailed.WithLabelValues(handshakeErrorType(err)).Inc()
		}
	}()

	algo, ok := e.Store.Algorithms()
	if !ok {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "algorithms not negotiated")
	}
	if !e.cfg.Capabilities.Has(protocol.CapPSK) {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "psk capability not advertised")
	}
	req, err := message.DecodePSKExchangeReq(codec.NewReader(reqRaw))
	if err != nil {
		return nil, err
	}
	psk, ok := e.cfg.PSKs[string(req.PSKHintID)]
	if !ok {
		return nil, spdmerr.New(spdmerr.InvalidParameter, "unknown psk hint")
	}

	sess, err := e.Sessions.Create(e.nextSessionID())
	if err != nil {
		return nil, err
	}
	if err := sess.SetAlgorithms(algo); err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, err
	}

	rsp := message.PSKExchangeRspMsg{SessionID: sess.ID()}
	rsp.ResponderContext = make([]byte, protocol.NonceSize)
	if err := sdkcrypto.Rand().GetRandom(rsp.ResponderContext); err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "generate responder context", err)
	}
	if req.MeasurementSummaryHashType != 0 {
		h, err := sdkcrypto.Hash().HashAll(algo.BaseHash, e.cfg.Measurements)
		if err != nil {
			e.Sessions.Remove(sess.ID())
			return nil, spdmerr.Wrap(spdmerr.CryptoError, "hash measurement summary", err)
		}
		rsp.MeasurementSummaryHash = h
	}

	rspNoMac, err := e.encode(rsp.Encode)
	if err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, err
	}
	if err := sess.Transcripts().Append(transcript.MessageK, reqRaw); err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, err
	}
	if err := sess.Transcripts().Append(transcript.MessageK, rspNoMac); err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, err
	}

	pskCopy := append([]byte(nil), psk...)
	if err := sess.DeriveHandshakeSecrets(pskCopy); err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, err
	}
	for i := range pskCopy {
		pskCopy[i] = 0
	}

	seed, ok := sess.Transcripts().RawBytes(transcript.MessageK)
	if !ok {
		e.Sessions.Remove(sess.ID())
		return nil, spdmerr.New(spdmerr.Unsupported, "psk exchange verify-data requires a buffer-backed transcript")
	}
	mac, err := sdkcrypto.HMAC().HMAC(algo.BaseHash, sess.ResponseKeys().Key, seed)
	if err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "compute responder verify data", err)
	}
	rsp.ResponderVerifyData = mac

	resp, err = e.encode(rsp.Encode)
	if err != nil {
		e.Sessions.Remove(sess.ID())
		return nil, err
	}
	e.handshaking = sess
	return resp, nil
}

// handlePSKFinish answers PSK_FINISH, mirroring handleFinish for a
// PSK-keyed session.
func (e *Engine) handlePSKFinish(reqRaw []byte) (resp []byte, err error) {
	defer func() {
		if err != nil {
			e.log.Warn("psk finish failed", logger.Error(err))
			metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
			return
		}
		metrics.HandshakesCompleted.WithLabelValues("success").Inc()
		metrics.SessionsCreated.WithLabelValues("success").Inc()
		metrics.SessionsActive.Inc()
	}()

	sess := e.handshaking
	if sess == nil {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "no psk exchange in progress")
	}
	algo := sess.Algorithms()

	req, err := message.DecodePSKFinishReq(codec.NewReader(reqRaw), algo.HashSize())
	if err != nil {
		return nil, err
	}
	seed, ok := sess.Transcripts().RawBytes(transcript.MessageK)
	if !ok {
		return nil, spdmerr.New(spdmerr.Unsupported, "psk finish requires a buffer-backed transcript")
	}
	if err := sdkcrypto.HMAC().Verify(algo.BaseHash, sess.RequestKeys().Key, seed, req.RequesterVerifyData); err != nil {
		e.Sessions.Remove(sess.ID())
		e.handshaking = nil
		return nil, spdmerr.Wrap(spdmerr.InvalidMsgField, "requester verify-data check failed", err)
	}

	if err := sess.Transcripts().Append(transcript.MessageF, seed); err != nil {
		return nil, err
	}
	if err := sess.Transcripts().Append(transcript.MessageF, reqRaw); err != nil {
		return nil, err
	}

	resp, err = e.encode(message.PSKFinishRspMsg{}.Encode)
	if err != nil {
		return nil, err
	}
	if err := sess.Transcripts().Append(transcript.MessageF, resp); err != nil {
		return nil, err
	}
	if err := sess.DeriveApplicationSecrets(); err != nil {
		return nil, err
	}
	e.handshaking = nil
	e.Audit.Record(context.Background(), audit.Event{
		Type: audit.SessionEstablished, SessionID: sess.ID(), Role: "responder", Detail: "psk",
	})
	return resp, nil
}

// handleHeartbeat answers a secured HEARTBEAT with HEARTBEAT_ACK.
func (e *Engine) handleHeartbeat(sess *session.Session, reqRaw []byte) ([]byte, error) {
	if _, err := message.DecodeHeartbeatReq(codec.NewReader(reqRaw)); err != nil {
		return nil, err
	}
	e.log.Debug("heartbeat", logger.Int("session_id", int(sess.ID())))
	return e.encode(message.HeartbeatAckMsg{}.Encode)
}

// handleKeyUpdate answers a secured KEY_UPDATE. The ack must travel under
// the pre-update response key, so the actual ratchet (session.UpdateKeys)
// is deferred until after dispatchSecured wraps this response.
func (e *Engine) handleKeyUpdate(sess *session.Session, reqRaw []byte) ([]byte, error) {
	req, err := message.DecodeKeyUpdateReq(codec.NewReader(reqRaw))
	if err != nil {
		return nil, err
	}
	resp, err := e.encode(message.KeyUpdateAckMsg{Operation: req.Operation, Tag: req.Tag}.Encode)
	if err != nil {
		return nil, err
	}
	e.log.Debug("key update", logger.Int("session_id", int(sess.ID())))
	e.postWrap = func() {
		_ = sess.UpdateKeys()
		e.Audit.Record(context.Background(), audit.Event{
			Type: audit.SessionRenegotiated, SessionID: sess.ID(), Role: "responder",
		})
	}
	return resp, nil
}

// handleEndSession answers a secured END_SESSION. The session is only
// removed once its ack has been wrapped, since removal zeroizes the keys
// the ack itself needs.
func (e *Engine) handleEndSession(sess *session.Session, reqRaw []byte) ([]byte, error) {
	if _, err := message.DecodeEndSessionReq(codec.NewReader(reqRaw)); err != nil {
		return nil, err
	}
	resp, err := e.encode(message.EndSessionAckMsg{}.Encode)
	if err != nil {
		return nil, err
	}
	e.log.Debug("end session", logger.Int("session_id", int(sess.ID())))
	sessID := sess.ID()
	e.postWrap = func() {
		e.Sessions.Remove(sessID)
		metrics.SessionsClosed.Inc()
		metrics.SessionsActive.Dec()
		e.Audit.Record(context.Background(), audit.Event{
			Type: audit.SessionTornDown, SessionID: sessID, Role: "responder",
		})
	}
	return resp, nil
}
