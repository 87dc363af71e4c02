// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zrouter

import (
	"bytes"
	"context"
	"encoding/hex"
	"net"
)

// Message is a multipart message, an ordered sequence of frames.
type Message [][]byte

// Clone returns a deep copy of m, the frames share one allocation.
func (m Message) Clone() Message {
	buf := make([]byte, 0, m.Size())
	c := make(Message, len(m))
	for i, f := range m {
		buf = append(buf, f...)
		c[i] = buf[len(buf)-len(f) : len(buf) : len(buf)]
	}
	return c
}

// Identity is the opaque address of a peer connected to a Router.
type Identity []byte

// String returns id as text, or in hex for generated identities, which
// start with a zero byte.
func (id Identity) String() string {
	if len(id) > 0 && id[0] == 0 {
		return "0x" + hex.EncodeToString(id)
	}
	return string(id)
}

// Equal reports whether id and o are the same identity.
func (id Identity) Equal(o Identity) bool {
	return bytes.Equal(id, o)
}

// Payload is the part of a routed message that follows the identity frame.
type Payload [][]byte

// Size returns the total number of bytes in all frames.
func (m Message) Size() int {
	n := 0
	for _, f := range m {
		n += len(f)
	}
	return n
}

// Strings converts frames to strings, handy for logs and tests.
func (m Message) Strings() []string {
	ss := make([]string, len(m))
	for i, f := range m {
		ss[i] = string(f)
	}
	return ss
}

type MessageReader interface {
	ReadMessage() (m Message, err error)
}

type MessageWriter interface {
	WriteMessage(m Message) error
}

type MessageReadWriter interface {
	MessageReader
	MessageWriter
}

type StopNotifier interface {
	OnStop()
}

type StopNotifierFunc func()

func (f StopNotifierFunc) OnStop() {
	f()
}

// Transport is the collaborator an Endpoint runs on: a bound socket that
// delivers and accepts identity-prefixed messages.
type Transport interface {
	RecvMultipart(ctx context.Context) (Message, error)
	// SendMultipart must not retain m after it returns.
	SendMultipart(m Message) error
	Close() error
	Addr() net.Addr
}
