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
	"time"
)

// Dealer is a ZMQ_DEALER socket connected to one Router. It plays the
// client role in tests and in the command line tool.
//
// Send and Recv support concurrently access, Do serializes its callers.
type Dealer struct {
	*Pump

	conn *ZMTPConn
	log  *slog.Logger
	inQ  chan Message

	doMu sync.Mutex
}

// Dial connects to endpoint, in the format "tcp://<host>:<port>", and
// performs the handshake. A refused connection is retried every retry
// interval until ctx is done.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Dealer, error) {
	network, address, err := parseEndpoint(endpoint, false)
	if err != nil {
		return nil, err
	}

	o := newOptions(opts)
	log := o.logger.With("endpoint", endpoint)

	var d net.Dialer
	var conn net.Conn
	for {
		conn, err = d.DialContext(ctx, network, address)
		if err == nil {
			break
		}
		log.Debug("dial failed, retrying", "err", err)

		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), err)
		case <-time.After(o.retryInterval):
		}
	}

	z := NewZMTPConn(conn)
	z.MaxFrameSize = o.maxFrameSize
	z.MaxMessageSize = o.maxMessageSize

	timeout := o.handshakeTimeout
	if deadline, ok := ctx.Deadline(); ok && (timeout <= 0 || time.Until(deadline) < timeout) {
		timeout = time.Until(deadline)
	}
	// cancelling ctx interrupts the handshake.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	err = z.Handshake(Handshake{
		SocketType: DealerSocket,
		Identity:   o.identity,
		Metadata:   o.metadata,
		Timeout:    timeout,
	})
	if !stop() {
		conn.Close()
		return nil, errors.Join(ctx.Err(), err)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}

	var rw MessageReadWriter = z
	if o.dump != nil {
		rw = &MessageDump{RW: z, Dump: o.dump}
	}

	dl := &Dealer{
		conn: z,
		log:  log,
		inQ:  make(chan Message, o.recvQueueSize),
	}
	dl.Pump = NewPump(rw, HandlerFunc(dl.deliver), o.writeQueueSize)
	dl.Pump.SetLinger(o.linger)
	dl.Pump.Start(nil)

	log.Debug("dealer connected", "peer-type", string(z.PeerSocketType()))
	return dl, nil
}

func (d *Dealer) deliver(ctx context.Context, m Message) {
	select {
	case d.inQ <- m:
	case <-ctx.Done():
	}
}

// Metadata returns the application metadata announced by the router.
func (d *Dealer) Metadata() map[string]string {
	return d.conn.PeerMetadata()
}

// Send queues a copy of one multipart message made of frames.
func (d *Dealer) Send(ctx context.Context, frames ...[]byte) error {
	if len(frames) == 0 {
		return ErrMalformedMessage
	}
	return d.Pump.Output(ctx, Message(frames).Clone())
}

// Recv waits for the next message from the router.
func (d *Dealer) Recv(ctx context.Context) (Message, error) {
	select {
	case m := <-d.inQ:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.Pump.StopD():
	}

	// messages read before the pump stopped are still delivered.
	select {
	case m := <-d.inQ:
		return m, nil
	default:
	}
	if err := d.Pump.Error(); err != nil {
		return nil, err
	}
	return nil, ErrPumpStopped
}

// Do sends a request and waits for the next reply.
func (d *Dealer) Do(ctx context.Context, frames ...[]byte) (Message, error) {
	d.doMu.Lock()
	defer d.doMu.Unlock()

	if err := d.Send(ctx, frames...); err != nil {
		return nil, err
	}
	return d.Recv(ctx)
}

// Close stops the pump, flushing queued messages for at most the linger
// time, and closes the connection.
func (d *Dealer) Close() error {
	d.Pump.Stop()
	<-d.Pump.StopD()
	return nil
}
