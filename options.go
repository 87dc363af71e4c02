// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zrouter

import (
	"io"
	"log/slog"
	"time"
)

const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultWriteQueueSize   = 1000
	DefaultRecvQueueSize    = 1000
	DefaultLinger           = time.Second
	DefaultRetryInterval    = 250 * time.Millisecond
)

type options struct {
	logger           *slog.Logger
	handshakeTimeout time.Duration
	writeQueueSize   int
	recvQueueSize    int
	linger           time.Duration
	maxFrameSize     int
	maxMessageSize   int
	handover         bool
	dump             io.Writer
	identity         Identity
	metadata         map[string]string
	retryInterval    time.Duration
}

func newOptions(opts []Option) options {
	o := options{
		logger:           slog.Default(),
		handshakeTimeout: DefaultHandshakeTimeout,
		writeQueueSize:   DefaultWriteQueueSize,
		recvQueueSize:    DefaultRecvQueueSize,
		linger:           DefaultLinger,
		maxFrameSize:     DefaultMaxFrameSize,
		maxMessageSize:   DefaultMaxMessageSize,
		retryInterval:    DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Router, an Endpoint or a Dealer.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) { o.handshakeTimeout = d }
}

// WithWriteQueueSize sets the per-peer queue of outgoing messages. A send
// to a peer whose queue is full fails with ErrSendQueueFull.
func WithWriteQueueSize(n int) Option {
	return func(o *options) { o.writeQueueSize = n }
}

// WithRecvQueueSize sets the queue of received messages shared by all
// peers of a Router.
func WithRecvQueueSize(n int) Option {
	return func(o *options) { o.recvQueueSize = n }
}

// WithLinger bounds how long closing keeps flushing queued messages.
func WithLinger(d time.Duration) Option {
	return func(o *options) { o.linger = d }
}

// WithMaxFrameSize limits inbound frames, zero means no limit and a
// negative value keeps the default.
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxFrameSize = n
		}
	}
}

// WithMaxMessageSize limits the sum of the frames of an inbound message,
// zero means no limit and a negative value keeps the default.
func WithMaxMessageSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxMessageSize = n
		}
	}
}

// WithHandover makes a Router replace a connected peer by a newer
// connection announcing the same identity, instead of rejecting the
// newer one.
func WithHandover(on bool) Option {
	return func(o *options) { o.handover = on }
}

// WithDump writes every message read and written to w, see MessageDump.
func WithDump(w io.Writer) Option {
	return func(o *options) { o.dump = w }
}

// WithIdentity sets the identity announced in the handshake.
func WithIdentity(id Identity) Option {
	return func(o *options) { o.identity = id }
}

// WithMetadata sets application metadata sent as X- properties.
func WithMetadata(md map[string]string) Option {
	return func(o *options) { o.metadata = md }
}

// WithRetryInterval sets the delay between two Dial attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(o *options) { o.retryInterval = d }
}
