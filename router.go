// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zrouter

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/someonegg/gox/syncx"
)

// ErrSendQueueFull is returned when a peer's write queue has no room.
var ErrSendQueueFull = errors.New("zrouter: send queue full")

// RouterStatistics aggregates the pumps of current and departed peers.
type RouterStatistics struct {
	Statistics

	Accepted int64
	Rejected int64
	Peers    int64
	Dropped  int64
}

type routerPeer struct {
	id   Identity
	conn *ZMTPConn
	pump *Pump
}

// Router is a ZMQ_ROUTER socket bound to one tcp address.
//
// Every message received from a peer is delivered with the peer's
// identity as first frame, and every message sent is routed to the peer
// whose identity is its first frame.
//
// Router supports concurrently access.
type Router struct {
	opts options
	log  *slog.Logger

	ln    net.Listener
	ctx   context.Context
	quitF context.CancelFunc
	stopD syncx.DoneChan
	once  sync.Once
	wg    sync.WaitGroup

	inQ chan Message

	mu       sync.Mutex
	closed   bool
	peers    map[string]*routerPeer
	pending  map[net.Conn]struct{}
	departed Statistics

	accepted int64
	rejected int64
	dropped  int64
}

// Bind listens on endpoint, in the format "tcp://<host>:<port>", and
// starts accepting peers. Host "*" means all interfaces and port "*"
// an ephemeral port.
func Bind(endpoint string, opts ...Option) (*Router, error) {
	network, address, err := parseEndpoint(endpoint, true)
	if err != nil {
		return nil, &BindError{Address: endpoint, Err: err}
	}

	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, &BindError{Address: endpoint, Err: err}
	}

	o := newOptions(opts)
	if o.dump != nil {
		o.dump = &SyncWriter{W: o.dump}
	}
	r := &Router{
		opts:    o,
		log:     o.logger.With("endpoint", endpoint),
		ln:      ln,
		stopD:   syncx.NewDoneChan(),
		inQ:     make(chan Message, o.recvQueueSize),
		peers:   make(map[string]*routerPeer),
		pending: make(map[net.Conn]struct{}),
	}
	r.ctx, r.quitF = context.WithCancel(context.Background())

	r.wg.Add(1)
	go r.accepting()

	r.log.Debug("router bound", "addr", ln.Addr().String())
	return r, nil
}

// parseEndpoint splits "tcp://host:port" into net.Listen/net.Dial arguments.
func parseEndpoint(endpoint string, bind bool) (network, address string, err error) {
	proto, hostport, ok := strings.Cut(endpoint, "://")
	if !ok {
		err = ErrBadAddress
		return
	}
	if proto != "tcp" {
		err = ErrBadProto(proto)
		return
	}

	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		err = errors.Join(ErrBadAddress, err)
		return
	}
	if bind && host == "*" {
		host = ""
	}
	if bind && port == "*" {
		port = "0"
	}
	if n, perr := strconv.Atoi(port); perr != nil || n < 0 || n > 65535 || (!bind && n == 0) {
		err = ErrBadAddress
		return
	}
	return proto, net.JoinHostPort(host, port), nil
}

// Addr returns the bound address, with the actual port when an ephemeral
// one was asked for.
func (r *Router) Addr() net.Addr {
	return r.ln.Addr()
}

// Endpoint returns the bound address as "tcp://host:port".
func (r *Router) Endpoint() string {
	return "tcp://" + r.ln.Addr().String()
}

func (r *Router) accepting() {
	defer r.wg.Done()

	for {
		conn, err := r.ln.Accept()
		if err != nil {
			if r.stopD.R().Done() || errors.Is(err, net.ErrClosed) {
				return
			}
			r.log.Warn("accept failed", "err", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if !r.track(conn) {
			conn.Close()
			return
		}
		r.wg.Add(1)
		go r.serveConn(conn)
	}
}

func (r *Router) track(conn net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.pending[conn] = struct{}{}
	return true
}

func (r *Router) untrack(conn net.Conn) {
	r.mu.Lock()
	delete(r.pending, conn)
	r.mu.Unlock()
}

func (r *Router) serveConn(conn net.Conn) {
	defer r.wg.Done()

	log := r.log.With("peer", conn.RemoteAddr().String())

	z := NewZMTPConn(conn)
	z.MaxFrameSize = r.opts.maxFrameSize
	z.MaxMessageSize = r.opts.maxMessageSize
	err := z.Handshake(Handshake{
		SocketType: RouterSocket,
		Identity:   r.opts.identity,
		Metadata:   r.opts.metadata,
		AsServer:   true,
		Timeout:    r.opts.handshakeTimeout,
	})
	r.untrack(conn)
	if err != nil {
		log.Warn("handshake failed", "err", err)
		atomic.AddInt64(&r.rejected, 1)
		conn.Close()
		return
	}

	id := z.PeerIdentity()
	if len(id) == 0 {
		id = newIdentity()
	}

	var rw MessageReadWriter = z
	if r.opts.dump != nil {
		rw = &MessageDump{RW: z, Dump: r.opts.dump}
	}

	p := &routerPeer{id: id, conn: z}
	p.pump = NewPump(rw, HandlerFunc(func(ctx context.Context, m Message) {
		r.deliver(ctx, p, m)
	}), r.opts.writeQueueSize)
	p.pump.SetLinger(r.opts.linger)

	if !r.addPeer(p) {
		log.Warn("peer rejected", "identity", id.String())
		atomic.AddInt64(&r.rejected, 1)
		conn.Close()
		return
	}
	atomic.AddInt64(&r.accepted, 1)
	log.Debug("peer connected", "identity", id.String(), "socket-type", string(z.PeerSocketType()))

	<-p.pump.StopD()

	r.removePeer(p)
	log.Debug("peer disconnected", "identity", id.String(), "err", p.pump.Error())
}

// newIdentity generates an identity for a peer that announced none. It
// starts with a zero byte, like the ones libzmq generates.
func newIdentity() Identity {
	u := uuid.New()
	return append(Identity{0}, u[:]...)
}

// addPeer registers and starts p, the pump runs until the router closes.
func (r *Router) addPeer(p *routerPeer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	key := string(p.id)
	if old, ok := r.peers[key]; ok {
		if !r.opts.handover {
			return false
		}
		r.log.Debug("peer handover", "identity", p.id.String())
		old.pump.Stop()
	}

	r.peers[key] = p
	p.pump.Start(r.ctx)
	return true
}

func (r *Router) removePeer(p *routerPeer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := string(p.id)
	if cur, ok := r.peers[key]; ok && cur == p {
		delete(r.peers, key)
	}
	r.departed.add(p.pump.Statistics())
}

func (r *Router) deliver(ctx context.Context, p *routerPeer, m Message) {
	msg := make(Message, 0, len(m)+1)
	msg = append(msg, p.id)
	msg = append(msg, m...)

	select {
	case r.inQ <- msg:
	case <-ctx.Done():
	}
}

// RecvMultipart waits for the next message, its first frame is the
// sender's identity.
func (r *Router) RecvMultipart(ctx context.Context) (Message, error) {
	if r.stopD.R().Done() {
		return nil, ErrEndpointClosed
	}

	select {
	case m := <-r.inQ:
		return m, nil
	case <-r.stopD:
		return nil, ErrEndpointClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendMultipart queues a copy of m[1:] for the peer identified by m[0],
// m may be reused once it returns.
func (r *Router) SendMultipart(m Message) error {
	if len(m) < 2 {
		return ErrMalformedMessage
	}

	r.mu.Lock()
	closed := r.closed
	p := r.peers[string(m[0])]
	r.mu.Unlock()

	if closed {
		return ErrEndpointClosed
	}
	if p == nil || p.pump.Stopped() {
		atomic.AddInt64(&r.dropped, 1)
		return ErrUnknownIdentity
	}

	if !p.pump.TryOutput(m[1:].Clone()) {
		atomic.AddInt64(&r.dropped, 1)
		return ErrSendQueueFull
	}
	return nil
}

// Peers returns the identities of the connected peers.
func (r *Router) Peers() []Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]Identity, 0, len(r.peers))
	for _, p := range r.peers {
		ids = append(ids, p.id)
	}
	return ids
}

func (r *Router) Statistics() RouterStatistics {
	r.mu.Lock()
	stat := RouterStatistics{
		Statistics: r.departed,
		Peers:      int64(len(r.peers)),
	}
	for _, p := range r.peers {
		stat.add(p.pump.Statistics())
	}
	r.mu.Unlock()

	stat.Accepted = atomic.LoadInt64(&r.accepted)
	stat.Rejected = atomic.LoadInt64(&r.rejected)
	stat.Dropped = atomic.LoadInt64(&r.dropped)
	return stat
}

// StopD returns a done channel, it will be signaled when Close is called.
func (r *Router) StopD() syncx.DoneChanR {
	return r.stopD.R()
}

// Close stops accepting, flushes queued replies for at most the linger
// time and closes every peer. Calling Close again is a no-op.
func (r *Router) Close() error {
	var err error
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		for conn := range r.pending {
			conn.Close()
		}
		r.mu.Unlock()

		r.stopD.SetDone()
		err = r.ln.Close()
		r.quitF()
		r.wg.Wait()

		r.log.Debug("router closed")
	})
	return err
}
