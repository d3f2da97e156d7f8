package requester

import (
	"context"
	"time"

	"github.com/openspdm/spdm-go/codec"
	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/internal/logger"
	"github.com/openspdm/spdm-go/internal/metrics"
	"github.com/openspdm/spdm-go/message"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
	"github.com/openspdm/spdm-go/securedmsg"
	"github.com/openspdm/spdm-go/session"
	"github.com/openspdm/spdm-go/transcript"
)

// KeyExchange runs KEY_EXCHANGE/KEY_EXCHANGE_RSP: generates an ephemeral
// DHE key pair, verifies the responder's signature over the handshake
// transcript against slot's certificate chain, derives the session's
// handshake secrets, and returns the new (not yet Established) session.
// Mutual authentication is not requested (spec.md Non-goals).
func (e *Engine) KeyExchange(ctx context.Context, slot uint8, measSummaryType uint8) (sess *session.Session, err error) {
	metrics.HandshakesInitiated.WithLabelValues("requester").Inc()
	start := time.Now()
	defer func() {
		metrics.HandshakeDuration.WithLabelValues("key_exchange").Observe(time.Since(start).Seconds())
		if err != nil {
			e.log.Warn("key exchange failed", logger.Error(err))
			metrics.HandshakesFailed.WithLabelValues("invalid_cert").Inc()
		}
	}()

	algo, ok := e.Store.Algorithms()
	if !ok {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "algorithms not negotiated")
	}
	if !e.certs[slot].Populated {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "certificate chain not retrieved for slot").WithDetail("slot", slot)
	}

	kp, err := sdkcrypto.DHE().Generate(algo.DHE)
	if err != nil {
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "generate ephemeral key pair", err)
	}

	req := message.KeyExchangeReq{MeasurementSummaryHashType: measSummaryType, SlotID: slot, ExchangeData: kp.PublicBytes()}
	if err := sdkcrypto.Rand().GetRandom(req.RequesterRandom[:]); err != nil {
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "generate requester random", err)
	}

	reqBytes, err := e.encodeOnly(req.Encode)
	if err != nil {
		return nil, err
	}
	resp, err := e.exchange(ctx, protocol.CodeKeyExchange, req.Encode)
	if err != nil {
		return nil, err
	}

	measHashSize := 0
	if measSummaryType != 0 {
		measHashSize = algo.HashSize()
	}
	rsp, err := message.DecodeKeyExchangeRspMsg(codec.NewReader(resp), len(kp.PublicBytes()), measHashSize, algo.AsymSize(), algo.HashSize())
	if err != nil {
		return nil, err
	}

	sess, err = e.Sessions.Create(rsp.SessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.SetAlgorithms(algo); err != nil {
		return nil, err
	}

	sigLen, macLen := len(rsp.Signature), len(rsp.ResponderVerifyData)
	rspWithoutSigAndMac := resp[:len(resp)-sigLen-macLen]
	rspWithoutMac := resp[:len(resp)-macLen]

	signedMessage := append(append([]byte(nil), reqBytes...), rspWithoutSigAndMac...)
	verifyStart := time.Now()
	verifyErr := sdkcrypto.Asym().Verify(algo.BaseAsym, algo.BaseHash, e.certs[slot].Chain.CertsAfterPrefix(algo.HashSize()), signedMessage, rsp.Signature)
	recordCrypto("verify", algo.BaseAsym.String(), verifyStart, verifyErr)
	if verifyErr != nil {
		e.Sessions.Remove(rsp.SessionID)
		return nil, spdmerr.Wrap(spdmerr.InvalidCert, "key exchange signature verification failed", verifyErr)
	}

	if err := sess.Transcripts().Append(transcript.MessageK, reqBytes); err != nil {
		e.Sessions.Remove(rsp.SessionID)
		return nil, err
	}
	if err := sess.Transcripts().Append(transcript.MessageK, rspWithoutMac); err != nil {
		e.Sessions.Remove(rsp.SessionID)
		return nil, err
	}

	sharedSecret, err := kp.SharedSecret(rsp.ExchangeData)
	if err != nil {
		e.Sessions.Remove(rsp.SessionID)
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "compute shared secret", err)
	}
	if err := sess.DeriveHandshakeSecrets(sharedSecret); err != nil {
		e.Sessions.Remove(rsp.SessionID)
		return nil, err
	}
	for i := range sharedSecret {
		sharedSecret[i] = 0
	}

	verifyData, ok := sess.Transcripts().RawBytes(transcript.MessageK)
	if !ok {
		e.Sessions.Remove(rsp.SessionID)
		return nil, spdmerr.New(spdmerr.Unsupported, "key exchange verify-data check requires a buffer-backed transcript")
	}
	if err := sdkcrypto.HMAC().Verify(algo.BaseHash, sess.ResponseKeys().Key, verifyData, rsp.ResponderVerifyData); err != nil {
		e.Sessions.Remove(rsp.SessionID)
		return nil, spdmerr.Wrap(spdmerr.InvalidMsgField, "responder verify-data check failed", err)
	}
	return sess, nil
}

// Finish runs FINISH/FINISH_RSP, authenticating the handshake transcript
// with the requester's own HMAC and deriving application data secrets.
// After Finish returns successfully, sess.State() is Established and its
// DirectionKeys are ready for securedmsg.Wrap/Unwrap.
func (e *Engine) Finish(ctx context.Context, sess *session.Session) (err error) {
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

	algo := sess.Algorithms()

	seed, ok := sess.Transcripts().RawBytes(transcript.MessageK)
	if !ok {
		return spdmerr.New(spdmerr.Unsupported, "finish requires a buffer-backed transcript")
	}
	if err := sess.Transcripts().Append(transcript.MessageF, seed); err != nil {
		return err
	}

	verifyData, err := sdkcrypto.HMAC().HMAC(algo.BaseHash, sess.RequestKeys().Key, seed)
	if err != nil {
		return spdmerr.Wrap(spdmerr.CryptoError, "compute requester verify data", err)
	}
	req := message.FinishReq{RequesterVerifyData: verifyData}

	reqBytes, err := e.encodeOnly(req.Encode)
	if err != nil {
		return err
	}
	resp, err := e.exchange(ctx, protocol.CodeFinish, req.Encode)
	if err != nil {
		return err
	}
	if _, err := message.DecodeFinishRspMsg(codec.NewReader(resp)); err != nil {
		return err
	}

	if err := sess.Transcripts().Append(transcript.MessageF, reqBytes); err != nil {
		return err
	}
	if err := sess.Transcripts().Append(transcript.MessageF, resp); err != nil {
		return err
	}
	return sess.DeriveApplicationSecrets()
}

// PSKExchange runs PSK_EXCHANGE/PSK_EXCHANGE_RSP, establishing a session
// keyed from psk instead of a DHE shared secret and certificate signature.
func (e *Engine) PSKExchange(ctx context.Context, hintID, psk []byte, measSummaryType uint8) (sess *session.Session, err error) {
	metrics.HandshakesInitiated.WithLabelValues("requester").Inc()
	start := time.Now()
	defer func() {
		metrics.HandshakeDuration.WithLabelValues("psk_exchange").Observe(time.Since(start).Seconds())
		if err != nil {
			e.log.Warn("psk exchange failed", logger.Error(err))
			metrics.HandshakesFailed.WithLabelValues("invalid_cert").Inc()
		}
	}()

	algo, ok := e.Store.Algorithms()
	if !ok {
		return nil, spdmerr.New(spdmerr.InvalidStateLocal, "algorithms not negotiated")
	}

	reqCtx := make([]byte, protocol.NonceSize)
	if err := sdkcrypto.Rand().GetRandom(reqCtx); err != nil {
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "generate requester context", err)
	}
	req := message.PSKExchangeReq{MeasurementSummaryHashType: measSummaryType, PSKHintID: hintID, RequesterContext: reqCtx}

	reqBytes, err := e.encodeOnly(req.Encode)
	if err != nil {
		return nil, err
	}
	resp, err := e.exchange(ctx, protocol.CodePSKExchange, req.Encode)
	if err != nil {
		return nil, err
	}

	measHashSize := 0
	if measSummaryType != 0 {
		measHashSize = algo.HashSize()
	}
	rsp, err := message.DecodePSKExchangeRspMsg(codec.NewReader(resp), measHashSize, algo.HashSize())
	if err != nil {
		return nil, err
	}

	sess, err = e.Sessions.Create(rsp.SessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.SetAlgorithms(algo); err != nil {
		return nil, err
	}

	macLen := len(rsp.ResponderVerifyData)
	rspWithoutMac := resp[:len(resp)-macLen]
	if err := sess.Transcripts().Append(transcript.MessageK, reqBytes); err != nil {
		e.Sessions.Remove(rsp.SessionID)
		return nil, err
	}
	if err := sess.Transcripts().Append(transcript.MessageK, rspWithoutMac); err != nil {
		e.Sessions.Remove(rsp.SessionID)
		return nil, err
	}

	pskCopy := append([]byte(nil), psk...)
	if err := sess.DeriveHandshakeSecrets(pskCopy); err != nil {
		e.Sessions.Remove(rsp.SessionID)
		return nil, err
	}
	for i := range pskCopy {
		pskCopy[i] = 0
	}

	verifyData, ok := sess.Transcripts().RawBytes(transcript.MessageK)
	if !ok {
		e.Sessions.Remove(rsp.SessionID)
		return nil, spdmerr.New(spdmerr.Unsupported, "psk exchange verify-data check requires a buffer-backed transcript")
	}
	if err := sdkcrypto.HMAC().Verify(algo.BaseHash, sess.ResponseKeys().Key, verifyData, rsp.ResponderVerifyData); err != nil {
		e.Sessions.Remove(rsp.SessionID)
		return nil, spdmerr.Wrap(spdmerr.InvalidMsgField, "responder verify-data check failed", err)
	}
	return sess, nil
}

// PSKFinish runs PSK_FINISH/PSK_FINISH_RSP, completing a PSK-keyed session.
func (e *Engine) PSKFinish(ctx context.Context, sess *session.Session) (err error) {
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

	algo := sess.Algorithms()

	seed, ok := sess.Transcripts().RawBytes(transcript.MessageK)
	if !ok {
		return spdmerr.New(spdmerr.Unsupported, "psk finish requires a buffer-backed transcript")
	}
	if err := sess.Transcripts().Append(transcript.MessageF, seed); err != nil {
		return err
	}

	verifyData, err := sdkcrypto.HMAC().HMAC(algo.BaseHash, sess.RequestKeys().Key, seed)
	if err != nil {
		return spdmerr.Wrap(spdmerr.CryptoError, "compute requester verify data", err)
	}
	req := message.PSKFinishReq{RequesterVerifyData: verifyData}

	reqBytes, err := e.encodeOnly(req.Encode)
	if err != nil {
		return err
	}
	resp, err := e.exchange(ctx, protocol.CodePSKFinish, req.Encode)
	if err != nil {
		return err
	}
	if _, err := message.DecodePSKFinishRspMsg(codec.NewReader(resp)); err != nil {
		return err
	}

	if err := sess.Transcripts().Append(transcript.MessageF, reqBytes); err != nil {
		return err
	}
	if err := sess.Transcripts().Append(transcript.MessageF, resp); err != nil {
		return err
	}
	return sess.DeriveApplicationSecrets()
}

// Heartbeat runs HEARTBEAT/HEARTBEAT_ACK over the secured channel.
func (e *Engine) Heartbeat(sess *session.Session) error {
	e.log.Debug("heartbeat", logger.Int("session_id", int(sess.ID())))
	resp, err := e.securedRoundTrip(sess, message.HeartbeatReq{}.Encode)
	if err != nil {
		return err
	}
	_, err = message.DecodeHeartbeatAckMsg(codec.NewReader(resp))
	return err
}

// KeyUpdate runs KEY_UPDATE/KEY_UPDATE_ACK, ratcheting both directions'
// application keys forward once the peer acknowledges.
func (e *Engine) KeyUpdate(sess *session.Session, tag uint8) error {
	e.log.Debug("key update", logger.Int("session_id", int(sess.ID())))
	req := message.KeyUpdateReq{Operation: message.KeyUpdateOperationUpdate, Tag: tag}
	resp, err := e.securedRoundTrip(sess, req.Encode)
	if err != nil {
		return err
	}
	ack, err := message.DecodeKeyUpdateAckMsg(codec.NewReader(resp))
	if err != nil {
		return err
	}
	if ack.Tag != tag {
		return spdmerr.New(spdmerr.InvalidMsgField, "key update ack tag mismatch").WithDetail("want", tag).WithDetail("got", ack.Tag)
	}
	return sess.UpdateKeys()
}

// EndSession runs END_SESSION/END_SESSION_ACK and removes sess from the
// engine's session table.
func (e *Engine) EndSession(sess *session.Session, preserveNegotiatedState bool) error {
	e.log.Debug("end session", logger.Int("session_id", int(sess.ID())))
	req := message.EndSessionReq{PreserveNegotiatedState: preserveNegotiatedState}
	resp, err := e.securedRoundTrip(sess, req.Encode)
	if err == nil {
		_, err = message.DecodeEndSessionAckMsg(codec.NewReader(resp))
	}
	e.Sessions.Remove(sess.ID())
	metrics.SessionsClosed.Inc()
	metrics.SessionsActive.Dec()
	return err
}

// securedRoundTrip encrypts a request built by encode under sess's request
// direction keys, sends it, and returns the decrypted response plaintext.
func (e *Engine) securedRoundTrip(sess *session.Session, encode func(w *codec.Writer) error) ([]byte, error) {
	algo := sess.Algorithms()
	w := codec.NewWriter(e.tx[:])
	if err := encode(w); err != nil {
		return nil, err
	}

	frame, err := securedmsg.Wrap(algo.AEAD, sess.ID(), sess.RequestKeys(), w.Bytes())
	if err != nil {
		return nil, spdmerr.Wrap(spdmerr.EncapFail, "wrap secured request", err)
	}
	if err := e.tr.Send(frame); err != nil {
		return nil, spdmerr.Wrap(spdmerr.EncapFail, "send secured request", err)
	}

	n, err := e.tr.Receive(e.rx[:])
	if err != nil {
		return nil, spdmerr.Wrap(spdmerr.DecapFail, "receive secured response", err)
	}
	return securedmsg.Unwrap(algo.AEAD, sess.ID(), sess.ResponseKeys(), e.rx[:n])
}
