package zrouter

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func startTest(test *testing.T, opts ...Option) *Endpoint {
	e, err := Start("tcp://127.0.0.1:*", opts...)
	if err != nil {
		test.Fatal("start", err)
	}
	test.Cleanup(e.Stop)
	return e
}

func endpointOf(e *Endpoint) string {
	return "tcp://" + e.Addr().String()
}

func receiveTest(test *testing.T, e *Endpoint) (Identity, Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, p, err := e.ReceiveOne(ctx)
	if err != nil {
		test.Fatal("receive", err)
	}
	return id, p
}

func TestEndpointRoundTrip(test *testing.T) {
	e := startTest(test)
	if e.State() != Bound {
		test.Fatal("state after start", e.State())
	}

	d := dialTest(test, endpointOf(e), WithIdentity(Identity("client-1")))
	d.Send(context.Background(), []byte("HELLO"))

	id, p := receiveTest(test, e)
	if string(id) != "client-1" || len(p) != 1 || string(p[0]) != "HELLO" {
		test.Fatal("request", id, p)
	}
	if e.State() != Replying {
		test.Fatal("state after receive", e.State())
	}

	if err := e.ReplyTo(id, Payload{[]byte("WORLD")}); err != nil {
		test.Fatal("reply", err)
	}
	if e.State() != Bound {
		test.Fatal("state after reply", e.State())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := d.Recv(ctx)
	if err != nil || len(reply) != 1 || string(reply[0]) != "WORLD" {
		test.Fatal("reply", reply.Strings(), err)
	}

	e.Stop()
	e.Stop()
	if e.State() != Closed {
		test.Fatal("state after stop", e.State())
	}
}

func TestEndpointMultiFramePayload(test *testing.T) {
	e := startTest(test)
	d := dialTest(test, endpointOf(e))

	d.Send(context.Background(), []byte("a"), []byte{}, []byte("c"))

	id, p := receiveTest(test, e)
	if len(id) == 0 || len(p) != 3 || string(p[0]) != "a" || len(p[1]) != 0 || string(p[2]) != "c" {
		test.Fatal("payload", id, p)
	}

	e.ReplyTo(id, p)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := d.Recv(ctx)
	if err != nil || len(reply) != 3 {
		test.Fatal("echo", reply.Strings(), err)
	}
}

func TestEndpointRoutesByIdentity(test *testing.T) {
	e := startTest(test)
	a := dialTest(test, endpointOf(e), WithIdentity(Identity("a")))
	b := dialTest(test, endpointOf(e), WithIdentity(Identity("b")))

	b.Send(context.Background(), []byte("from-b"))
	id, _ := receiveTest(test, e)
	if string(id) != "b" {
		test.Fatal("identity", id)
	}
	e.ReplyTo(id, Payload{[]byte("to-b")})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if reply, err := b.Recv(ctx); err != nil || string(reply[0]) != "to-b" {
		test.Fatal("b reply", reply.Strings(), err)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel2()
	if m, err := a.Recv(ctx2); err != context.DeadlineExceeded {
		test.Fatal("a received", m.Strings(), err)
	}
}

func TestEndpointIndependent(test *testing.T) {
	e1 := startTest(test)
	e2 := startTest(test)
	if e1.Addr().String() == e2.Addr().String() {
		test.Fatal("same address", e1.Addr())
	}

	d1 := dialTest(test, endpointOf(e1), WithIdentity(Identity("same")))
	d2 := dialTest(test, endpointOf(e2), WithIdentity(Identity("same")))

	d1.Send(context.Background(), []byte("one"))
	d2.Send(context.Background(), []byte("two"))

	for _, c := range []struct {
		e    *Endpoint
		d    *Dealer
		want string
	}{{e1, d1, "one"}, {e2, d2, "two"}} {
		id, p := receiveTest(test, c.e)
		if string(p[0]) != c.want {
			test.Fatal("cross talk", c.want, string(p[0]))
		}
		c.e.ReplyTo(id, Payload{[]byte("re-" + c.want)})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		reply, err := c.d.Recv(ctx)
		cancel()
		if err != nil || string(reply[0]) != "re-"+c.want {
			test.Fatal("reply", reply.Strings(), err)
		}
	}
}

func TestEndpointBindError(test *testing.T) {
	e := startTest(test)

	_, err := Start(endpointOf(e))
	var berr *BindError
	if !errors.As(err, &berr) {
		test.Fatal("second start", err)
	}

	_, err = Start("udp://127.0.0.1:5555")
	var perr ErrBadProto
	if !errors.As(err, &berr) || !errors.As(err, &perr) || perr != "udp" {
		test.Fatal("bad proto", err)
	}

	_, err = Start("tcp://127.0.0.1")
	if !errors.As(err, &berr) || !errors.Is(err, ErrBadAddress) {
		test.Fatal("bad address", err)
	}

	_, err = Start("tcp://240.0.0.1:5555")
	if !errors.As(err, &berr) {
		test.Fatal("unassigned address", err)
	}
}

func TestEndpointStopWhileReceiving(test *testing.T) {
	e := startTest(test)

	errC := make(chan error, 1)
	go func() {
		_, _, err := e.ReceiveOne(context.Background())
		errC <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if e.State() != AwaitingMessage {
		test.Fatal("state while receiving", e.State())
	}
	e.Stop()

	select {
	case err := <-errC:
		var rerr *ReceiveError
		if !errors.As(err, &rerr) || !errors.Is(err, ErrEndpointClosed) {
			test.Fatal("receive error", err)
		}
	case <-time.After(time.Second):
		test.Fatal("receive not woken by stop")
	}

	if e.State() != Closed {
		test.Fatal("state", e.State())
	}
}

func TestEndpointAfterStop(test *testing.T) {
	e := startTest(test)
	e.Stop()

	_, _, err := e.ReceiveOne(context.Background())
	var rerr *ReceiveError
	if !errors.As(err, &rerr) {
		test.Fatal("receive after stop", err)
	}

	err = e.ReplyTo(Identity("x"), Payload{[]byte("y")})
	var serr *SendError
	if !errors.As(err, &serr) || !errors.Is(err, ErrEndpointClosed) {
		test.Fatal("reply after stop", err)
	}
}

func TestEndpointReceiveTimeout(test *testing.T) {
	e := startTest(test)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := e.ReceiveOne(ctx)
	var rerr *ReceiveError
	if !errors.As(err, &rerr) || !errors.Is(err, context.DeadlineExceeded) {
		test.Fatal("receive timeout", err)
	}
	if e.State() != Bound {
		test.Fatal("state", e.State())
	}
}

func TestEndpointReplyUnknownIdentity(test *testing.T) {
	e := startTest(test)

	err := e.ReplyTo(Identity("ghost"), Payload{[]byte("boo")})
	var serr *SendError
	if !errors.As(err, &serr) || !errors.Is(err, ErrUnknownIdentity) {
		test.Fatal("unknown identity", err)
	}
	if string(serr.Identity) != "ghost" {
		test.Fatal("identity", serr.Identity)
	}
	if e.State() != Bound {
		test.Fatal("state", e.State())
	}
}

func TestEndpointMalformed(test *testing.T) {
	t := newMockTransport()
	e := NewEndpoint(t)

	t.in <- Message{[]byte("only-id")}
	t.in <- Message{[]byte{}, []byte("x")}
	t.in <- Message{[]byte("id"), []byte("x")}

	for _, frames := range []int{1, 2} {
		_, _, err := e.ReceiveOne(context.Background())
		var merr *MalformedMessageError
		if !errors.As(err, &merr) || merr.Frames != frames || !errors.Is(err, ErrMalformedMessage) {
			test.Fatal("malformed", err)
		}
		if e.State() != Bound {
			test.Fatal("state", e.State())
		}
	}

	id, p, err := e.ReceiveOne(context.Background())
	if err != nil || string(id) != "id" || string(p[0]) != "x" {
		test.Fatal("usable after malformed", id, p, err)
	}

	if err := e.ReplyTo(id, Payload{[]byte("y")}); err != nil {
		test.Fatal("reply", err)
	}
	if len(t.sent) != 1 || string(t.sent[0][0]) != "id" || string(t.sent[0][1]) != "y" {
		test.Fatal("sent", t.sent)
	}

	if e.Transport() != Transport(t) {
		test.Fatal("transport")
	}
	if e.Addr().(*net.TCPAddr).Port != 5555 {
		test.Fatal("addr", e.Addr())
	}
}

func TestEndpointServe(test *testing.T) {
	t := newMockTransport()
	e := NewEndpoint(t)

	t.in <- Message{[]byte("a"), []byte("1")}
	t.in <- Message{[]byte("bad")}
	t.in <- Message{[]byte("b"), []byte("2")}

	done := make(chan error, 1)
	go func() { done <- e.Serve(context.Background(), EchoReply) }()

	deadline := time.Now().Add(time.Second)
	for len(t.in) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	e.Stop()

	select {
	case err := <-done:
		if err != nil {
			test.Fatal("serve", err)
		}
	case <-time.After(time.Second):
		test.Fatal("serve not stopped")
	}

	if len(t.sent) != 2 || string(t.sent[0][1]) != "1" || string(t.sent[1][0]) != "b" {
		test.Fatal("sent", t.sent)
	}
}

func TestEndpointServeSkipsSendErrors(test *testing.T) {
	t := newMockTransport()
	t.sendE = ErrUnknownIdentity
	e := NewEndpoint(t)

	t.in <- Message{[]byte("gone"), []byte("1")}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := e.Serve(ctx, FixedReply([]byte("x"))); err != context.DeadlineExceeded {
		test.Fatal("serve", err)
	}
}

func TestEndpointServeOneThenStop(test *testing.T) {
	e := startTest(test)
	d := dialTest(test, endpointOf(e))

	d.Send(context.Background(), []byte("HELLO"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.ServeOne(ctx, FixedReply([]byte("WORLD"))); err != nil {
		test.Fatal("serve one", err)
	}
	e.Stop()

	reply, err := d.Recv(ctx)
	if err != nil || string(reply[0]) != "WORLD" {
		test.Fatal("reply flushed before stop", reply.Strings(), err)
	}
}

func TestEndpointReplyBufferReuse(test *testing.T) {
	e := startTest(test)
	d := dialTest(test, endpointOf(e))

	d.Send(context.Background(), []byte("HELLO"))
	id, _ := receiveTest(test, e)

	buf := []byte("WORLD")
	if err := e.ReplyTo(id, Payload{buf}); err != nil {
		test.Fatal("reply", err)
	}
	copy(buf, "XXXXX")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := d.Recv(ctx)
	if err != nil || string(reply[0]) != "WORLD" {
		test.Fatal("reply changed after ReplyTo returned", reply.Strings(), err)
	}
}
