// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zrouter

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"
)

const (
	// DefaultMaxFrameSize is the largest message frame a ZMTPConn accepts
	// by default.
	DefaultMaxFrameSize = 32 * 1024 * 1024

	// DefaultMaxMessageSize bounds the sum of the frames of one message.
	DefaultMaxMessageSize = 64 * 1024 * 1024

	// commands are bounded independently of MaxFrameSize.
	maxCommandSize = 1024 * 1024

	maxMessageFrames = 1 << 16
)

type netbufconn struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

func newNetbufConn(conn net.Conn) netbufconn {
	return netbufconn{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}
}

// Handshake describes the local side of a ZMTP connection.
type Handshake struct {
	SocketType SocketType
	Identity   Identity
	Metadata   map[string]string
	AsServer   bool
	// Timeout bounds the whole handshake, zero means no bound.
	Timeout time.Duration
}

// ZMTPConn converts a net.Conn to a MessageReadWriter speaking ZMTP 3.0
// with the NULL security mechanism.
//
// In the transport layer, each frame's layout is:
//
//	Flags(1) Size(1 or 8-bytes, big-endian) Body
//
// ReadMessage and WriteMessage may be used from two different goroutines.
type ZMTPConn struct {
	c netbufconn

	wmu sync.Mutex

	// MaxFrameSize limits inbound message frames and MaxMessageSize whole
	// messages. Zero means no limit, a negative value the default.
	MaxFrameSize   int
	MaxMessageSize int

	local        SocketType
	peerType     SocketType
	peerIdentity Identity
	peerMeta     map[string]string
	peerServer   bool
}

// NewZMTPConn wraps conn, Handshake must succeed before any message is
// exchanged.
func NewZMTPConn(conn net.Conn) *ZMTPConn {
	return &ZMTPConn{
		c:              newNetbufConn(conn),
		MaxFrameSize:   DefaultMaxFrameSize,
		MaxMessageSize: DefaultMaxMessageSize,
	}
}

// Handshake exchanges greetings and READY commands with the peer.
func (z *ZMTPConn) Handshake(h Handshake) error {
	if h.Timeout > 0 {
		z.c.conn.SetDeadline(time.Now().Add(h.Timeout))
		defer z.c.conn.SetDeadline(time.Time{})
	}

	props, err := readyProperties(h.SocketType, h.Identity, h.Metadata)
	if err != nil {
		return err
	}
	z.local = h.SocketType

	g := greeting{
		major:     zmtpMajorVersion,
		minor:     zmtpMinorVersion,
		mechanism: nullMechanism,
		asServer:  h.AsServer,
	}
	if err := z.writeAndFlush(g.marshal()); err != nil {
		return fmt.Errorf("zmtp: send greeting: %w", err)
	}

	buf := make([]byte, greetingSize)
	if _, err := io.ReadFull(z.c.r, buf); err != nil {
		return fmt.Errorf("zmtp: receive greeting: %w", err)
	}
	pg, err := parseGreeting(buf)
	if err != nil {
		return err
	}
	if pg.major < zmtpMajorVersion {
		return fmt.Errorf("%w: %d.%d", ErrBadVersion, pg.major, pg.minor)
	}
	if pg.mechanism != nullMechanism {
		return fmt.Errorf("%w: %q", ErrBadMechanism, pg.mechanism)
	}
	z.peerServer = pg.asServer

	body, err := encodeMetadata(props)
	if err != nil {
		return err
	}
	if err := z.writeCommand("READY", body); err != nil {
		return fmt.Errorf("zmtp: send ready: %w", err)
	}

	return z.recvReady()
}

func (z *ZMTPConn) recvReady() error {
	flags, body, err := z.readFrame(0)
	if err != nil {
		return fmt.Errorf("zmtp: receive ready: %w", err)
	}
	if flags&flagCommand == 0 {
		return fmt.Errorf("%w: expected READY, got a message frame", ErrBadCommand)
	}

	name, data, err := parseCommand(body)
	if err != nil {
		return err
	}
	if name != "READY" {
		return fmt.Errorf("%w: expected READY, got %s", ErrBadCommand, name)
	}

	props, err := decodeMetadata(data)
	if err != nil {
		return err
	}

	z.peerType = SocketType(props["socket-type"])
	if !z.local.Compatible(z.peerType) {
		return fmt.Errorf("%w: %s with %q", ErrIncompatibleSocket, z.local, z.peerType)
	}

	if id := props["identity"]; id != "" {
		z.peerIdentity = Identity(id)
	}

	z.peerMeta = make(map[string]string)
	for k, v := range props {
		if len(k) > 2 && k[:2] == "x-" {
			z.peerMeta[k[2:]] = v
		}
	}
	return nil
}

// PeerIdentity returns the identity the peer announced, nil if none.
func (z *ZMTPConn) PeerIdentity() Identity { return z.peerIdentity }

// PeerSocketType returns the socket type the peer announced.
func (z *ZMTPConn) PeerSocketType() SocketType { return z.peerType }

// PeerMetadata returns the peer's application metadata (X- properties),
// keyed by lower-cased name without the prefix.
func (z *ZMTPConn) PeerMetadata() map[string]string { return z.peerMeta }

// PeerAsServer reports the as-server flag of the peer's greeting.
func (z *ZMTPConn) PeerAsServer() bool { return z.peerServer }

func (z *ZMTPConn) RemoteAddr() net.Addr { return z.c.conn.RemoteAddr() }

func (z *ZMTPConn) SetWriteDeadline(t time.Time) error {
	return z.c.conn.SetWriteDeadline(t)
}

func (z *ZMTPConn) OnStop() {
	z.c.conn.Close()
}

func (z *ZMTPConn) Close() error {
	return z.c.conn.Close()
}

// ReadMessage returns the next multipart message. PING commands are
// answered in place and other commands are skipped; an ERROR command
// ends the connection.
func (z *ZMTPConn) ReadMessage() (m Message, err error) {
	var total uint64
	for {
		flags, body, err := z.readFrame(total)
		if err != nil {
			return nil, err
		}

		if flags&flagCommand != 0 {
			if len(m) > 0 {
				return nil, fmt.Errorf("%w: command inside a multipart message", ErrBadCommand)
			}
			if err := z.handleCommand(body); err != nil {
				return nil, err
			}
			continue
		}

		m = append(m, body)
		total += uint64(len(body))
		if flags&flagMore == 0 {
			return m, nil
		}
		if len(m) >= maxMessageFrames {
			return nil, fmt.Errorf("%w: more than %d frames", ErrMessageTooLarge, maxMessageFrames)
		}
	}
}

func (z *ZMTPConn) handleCommand(body []byte) error {
	name, data, err := parseCommand(body)
	if err != nil {
		return err
	}

	switch name {
	case "PING":
		// TTL(2) then up to 16 bytes of context echoed in the PONG.
		if len(data) < 2 {
			return fmt.Errorf("%w: short PING", ErrBadCommand)
		}
		return z.writeCommand("PONG", data[2:])
	case "ERROR":
		reason := ""
		if len(data) > 0 && int(data[0]) <= len(data)-1 {
			reason = string(data[1 : 1+int(data[0])])
		}
		return fmt.Errorf("%w: %s", ErrPeerError, reason)
	}
	return nil
}

// WriteMessage sends m as one multipart message.
func (z *ZMTPConn) WriteMessage(m Message) error {
	if len(m) == 0 {
		return ErrMalformedMessage
	}

	z.wmu.Lock()
	defer z.wmu.Unlock()

	for i, f := range m {
		var flags byte
		if i < len(m)-1 {
			flags |= flagMore
		}
		if err := z.writeFrame(flags, f); err != nil {
			return err
		}
	}
	return z.c.w.Flush()
}

// Ping sends a PING command with the given context, the peer's PONG is
// consumed by ReadMessage.
func (z *ZMTPConn) Ping(ttl time.Duration, context []byte) error {
	data := binary.BigEndian.AppendUint16(nil, uint16(ttl/(100*time.Millisecond)))
	return z.writeCommand("PING", append(data, context...))
}

func (z *ZMTPConn) writeCommand(name string, data []byte) error {
	body, err := encodeCommand(name, data)
	if err != nil {
		return err
	}

	z.wmu.Lock()
	defer z.wmu.Unlock()

	if err := z.writeFrame(flagCommand, body); err != nil {
		return err
	}
	return z.c.w.Flush()
}

func (z *ZMTPConn) writeAndFlush(p []byte) error {
	z.wmu.Lock()
	defer z.wmu.Unlock()

	if _, err := z.c.w.Write(p); err != nil {
		return err
	}
	return z.c.w.Flush()
}

func (z *ZMTPConn) writeFrame(flags byte, body []byte) error {
	var hdr [9]byte
	n := 2
	if len(body) > 255 {
		flags |= flagLong
		binary.BigEndian.PutUint64(hdr[1:], uint64(len(body)))
		n = 9
	} else {
		hdr[1] = byte(len(body))
	}
	hdr[0] = flags

	if _, err := z.c.w.Write(hdr[:n]); err != nil {
		return err
	}
	_, err := z.c.w.Write(body)
	return err
}

// readFrame reads the next frame, total is the size of the frames of the
// message read so far.
func (z *ZMTPConn) readFrame(total uint64) (flags byte, body []byte, err error) {
	flags, err = z.c.r.ReadByte()
	if err != nil {
		return
	}

	var size uint64
	if flags&flagLong != 0 {
		var l [8]byte
		if _, err = io.ReadFull(z.c.r, l[:]); err != nil {
			return
		}
		size = binary.BigEndian.Uint64(l[:])
	} else {
		var s byte
		if s, err = z.c.r.ReadByte(); err != nil {
			return
		}
		size = uint64(s)
	}

	if err = z.checkSize(flags, size, total); err != nil {
		return
	}

	body = make([]byte, size)
	_, err = io.ReadFull(z.c.r, body)
	return
}

func (z *ZMTPConn) checkSize(flags byte, size, total uint64) error {
	if size > math.MaxInt {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	if flags&flagCommand != 0 {
		if size > maxCommandSize {
			return fmt.Errorf("%w: command of %d bytes", ErrFrameTooLarge, size)
		}
		return nil
	}

	if limit := sizeLimit(z.MaxFrameSize, DefaultMaxFrameSize); limit > 0 && size > limit {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	if limit := sizeLimit(z.MaxMessageSize, DefaultMaxMessageSize); limit > 0 && total+size > limit {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, total+size)
	}
	return nil
}

func sizeLimit(n, def int) uint64 {
	if n < 0 {
		return uint64(def)
	}
	return uint64(n)
}
