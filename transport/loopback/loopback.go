// Package loopback implements an in-process Transport pair for driving a
// requester and responder engine against each other without a network,
// used by package tests across the engine layers.
package loopback

import (
	"errors"
)

// Pair returns two connected Transports: messages sent on one are
// received on the other, independently in each direction.
func Pair() (a, b *Endpoint) {
	ab := make(chan []byte, 8)
	ba := make(chan []byte, 8)
	a = &Endpoint{send: ab, recv: ba}
	b = &Endpoint{send: ba, recv: ab}
	return a, b
}

// Endpoint is one side of an in-process loopback pipe.
type Endpoint struct {
	send chan []byte
	recv chan []byte
	closed bool
}

// Send copies msg onto the channel so the caller's buffer can be reused
// immediately after Send returns.
func (e *Endpoint) Send(msg []byte) error {
	if e.closed {
		return errors.New("loopback: endpoint closed")
	}
	cp := append([]byte(nil), msg...)
	e.send <- cp
	return nil
}

// Receive blocks until a message is available and copies it into buf.
func (e *Endpoint) Receive(buf []byte) (int, error) {
	msg, ok := <-e.recv
	if !ok {
		return 0, errors.New("loopback: endpoint closed")
	}
	if len(msg) > len(buf) {
		return 0, errors.New("loopback: message larger than receive buffer")
	}
	n := copy(buf, msg)
	return n, nil
}

// Close marks the endpoint closed; further Sends fail and a pending or
// future Receive on the peer unblocks once its channel is drained and closed.
func (e *Endpoint) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.send)
	return nil
}
