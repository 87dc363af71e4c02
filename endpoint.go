// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zrouter

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of an Endpoint.
type State int32

const (
	Unbound State = iota
	Bound
	AwaitingMessage
	Replying
	Closed
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	case AwaitingMessage:
		return "awaiting-message"
	case Replying:
		return "replying"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// ReplyFunc computes the reply payload for a request.
type ReplyFunc func(id Identity, p Payload) Payload

// FixedReply answers every request with the same frames.
func FixedReply(frames ...[]byte) ReplyFunc {
	return func(Identity, Payload) Payload {
		return Payload(frames)
	}
}

// EchoReply answers every request with its own payload.
func EchoReply(_ Identity, p Payload) Payload {
	return p
}

// Endpoint receives identity-framed requests and sends identity-framed
// replies over a Transport, normally a Router.
//
// ReceiveOne and ReplyTo must not be called concurrently; Stop and State
// may be called from any goroutine.
type Endpoint struct {
	t     Transport
	log   *slog.Logger
	state atomic.Int32
	once  sync.Once
}

// Start binds a Router on bindAddress and returns an Endpoint serving it.
// The returned error is a *BindError.
func Start(bindAddress string, opts ...Option) (*Endpoint, error) {
	r, err := Bind(bindAddress, opts...)
	if err != nil {
		return nil, err
	}
	return newEndpoint(r, newOptions(opts).logger), nil
}

// NewEndpoint wraps an already bound transport.
func NewEndpoint(t Transport, opts ...Option) *Endpoint {
	return newEndpoint(t, newOptions(opts).logger)
}

func newEndpoint(t Transport, log *slog.Logger) *Endpoint {
	e := &Endpoint{t: t, log: log}
	e.state.Store(int32(Bound))
	return e
}

func (e *Endpoint) State() State {
	return State(e.state.Load())
}

// Addr returns the transport's bound address.
func (e *Endpoint) Addr() net.Addr {
	return e.t.Addr()
}

// Transport returns the underlying transport.
func (e *Endpoint) Transport() Transport {
	return e.t
}

// move switches to state to, unless the endpoint is closed.
func (e *Endpoint) move(to State) bool {
	for {
		cur := e.state.Load()
		if State(cur) == Closed {
			return false
		}
		if e.state.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

// ReceiveOne blocks until a request arrives and returns the sender's
// identity and the frames following it.
//
// It fails with a *ReceiveError when the endpoint is stopped (even from
// another goroutine), ctx is done or the transport fails, and with a
// *MalformedMessageError when the frame-set has no identity or no
// payload; the endpoint stays usable after the latter.
func (e *Endpoint) ReceiveOne(ctx context.Context) (Identity, Payload, error) {
	if !e.move(AwaitingMessage) {
		return nil, nil, &ReceiveError{Err: ErrEndpointClosed}
	}

	m, err := e.t.RecvMultipart(ctx)
	if err != nil {
		e.move(Bound)
		return nil, nil, &ReceiveError{Err: err}
	}

	if len(m) < 2 || len(m[0]) == 0 {
		e.move(Bound)
		return nil, nil, &MalformedMessageError{Frames: len(m)}
	}

	e.move(Replying)
	return Identity(m[0]), Payload(m[1:]), nil
}

// ReplyTo sends p to the peer identified by id, p may be reused once it
// returns. It fails with a *SendError when the endpoint is stopped or the
// peer is gone.
func (e *Endpoint) ReplyTo(id Identity, p Payload) error {
	if e.State() == Closed {
		return &SendError{Identity: id, Err: ErrEndpointClosed}
	}

	m := make(Message, 0, len(p)+1)
	m = append(m, id)
	m = append(m, p...)

	err := e.t.SendMultipart(m)
	e.move(Bound)
	if err != nil {
		return &SendError{Identity: id, Err: err}
	}
	return nil
}

// Stop releases the transport, a blocked ReceiveOne returns promptly.
// Calling Stop again is a no-op.
func (e *Endpoint) Stop() {
	e.once.Do(func() {
		e.state.Store(int32(Closed))
		if err := e.t.Close(); err != nil {
			e.log.Debug("endpoint close", "err", err)
		}
	})
}

// ServeOne runs one receive/reply cycle.
func (e *Endpoint) ServeOne(ctx context.Context, f ReplyFunc) error {
	id, p, err := e.ReceiveOne(ctx)
	if err != nil {
		return err
	}
	return e.ReplyTo(id, f(id, p))
}

// Serve runs receive/reply cycles until the endpoint is stopped or ctx is
// done. Malformed requests and replies to vanished peers are logged and
// skipped; it returns nil when stopped and ctx.Err() when ctx ends.
func (e *Endpoint) Serve(ctx context.Context, f ReplyFunc) error {
	for {
		err := e.ServeOne(ctx, f)
		if err == nil {
			continue
		}

		var (
			merr *MalformedMessageError
			serr *SendError
		)
		switch {
		case errors.As(err, &merr):
			e.log.Warn("malformed request skipped", "frames", merr.Frames)
		case errors.As(err, &serr) && !errors.Is(err, ErrEndpointClosed):
			e.log.Warn("reply dropped", "identity", serr.Identity.String(), "err", serr.Err)
		case errors.Is(err, ErrEndpointClosed):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return err
		}
	}
}
