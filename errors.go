// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zrouter

import (
	"errors"
	"fmt"
)

var (
	// ErrEndpointClosed is returned by operations on a stopped endpoint or
	// a closed router.
	ErrEndpointClosed = errors.New("zrouter: endpoint closed")

	// ErrUnknownIdentity is returned when a reply targets a peer that is
	// not connected (or has already gone away).
	ErrUnknownIdentity = errors.New("zrouter: unknown identity")

	// ErrMalformedMessage is returned when a routed message has no
	// identity frame or no payload.
	ErrMalformedMessage = errors.New("zrouter: malformed message")

	// ErrBadAddress is returned for endpoints not in the form
	// <proto>://<host>:<port>.
	ErrBadAddress = errors.New("zrouter: bad endpoint address")
)

// ErrBadProto is returned for endpoint schemes other than tcp.
type ErrBadProto string

func (e ErrBadProto) Error() string {
	return fmt.Sprintf("zrouter: protocol %q not supported", string(e))
}

// BindError reports a failure to bind the listening address.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("zrouter: bind %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ReceiveError reports that no message could be received, because the
// endpoint was closed, the wait was cancelled or the transport failed.
type ReceiveError struct {
	Err error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("zrouter: receive: %v", e.Err)
}

func (e *ReceiveError) Unwrap() error { return e.Err }

// MalformedMessageError reports a received frame-set that does not start
// with a non-empty identity frame followed by at least one payload frame.
type MalformedMessageError struct {
	Frames int
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("zrouter: malformed message with %d frame(s)", e.Frames)
}

func (e *MalformedMessageError) Unwrap() error { return ErrMalformedMessage }

// SendError reports a reply that could not be handed to the transport.
type SendError struct {
	Identity Identity
	Err      error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("zrouter: send to %q: %v", e.Identity.String(), e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
