package zrouter

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// freeEndpoint returns an endpoint nobody listens on.
func freeEndpoint(test *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		test.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return "tcp://" + addr
}

func TestDealerDo(test *testing.T) {
	e := startTest(test)
	go e.Serve(context.Background(), EchoReply)

	d := dialTest(test, endpointOf(e))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, s := range []string{"a", "b", "c"} {
		reply, err := d.Do(ctx, []byte(s), []byte("tail"))
		if err != nil || len(reply) != 2 || string(reply[0]) != s {
			test.Fatal("do", s, reply.Strings(), err)
		}
	}

	if err := d.Send(ctx); err != ErrMalformedMessage {
		test.Fatal("empty send", err)
	}

	stat := d.Statistics()
	if stat.WrittenCount != 3 || stat.ReadCount != 3 {
		test.Fatal("statistics", stat)
	}
}

func TestDealerMetadata(test *testing.T) {
	r := bindTest(test, WithMetadata(map[string]string{"Hostname": "box"}))
	d := dialTest(test, r.Endpoint())

	if md := d.Metadata(); md["hostname"] != "box" {
		test.Fatal("metadata", md)
	}
}

func TestDealerDialRetry(test *testing.T) {
	endpoint := freeEndpoint(test)

	type result struct {
		d   *Dealer
		err error
	}
	resC := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		d, err := Dial(ctx, endpoint, WithRetryInterval(20*time.Millisecond))
		resC <- result{d, err}
	}()

	time.Sleep(100 * time.Millisecond)
	r, err := Bind(endpoint)
	if err != nil {
		test.Fatal("bind", err)
	}
	defer r.Close()

	res := <-resC
	if res.err != nil {
		test.Fatal("dial", res.err)
	}
	res.d.Close()
}

func TestDealerDialTimeout(test *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := Dial(ctx, freeEndpoint(test), WithRetryInterval(20*time.Millisecond))
	if !errors.Is(err, context.DeadlineExceeded) {
		test.Fatal("dial timeout", err)
	}

	var perr ErrBadProto
	if _, err := Dial(ctx, "inproc://x"); !errors.As(err, &perr) {
		test.Fatal("bad proto", err)
	}
}

func TestDealerRecvAfterRouterClose(test *testing.T) {
	r := bindTest(test)
	d := dialTest(test, r.Endpoint())
	waitFor(test, "peer", func() bool { return len(r.Peers()) == 1 })

	r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := d.Recv(ctx); err == nil || err == context.DeadlineExceeded {
		test.Fatal("recv after router close", err)
	}
}

func TestDealerSendBufferReuse(test *testing.T) {
	r := bindTest(test)
	d := dialTest(test, r.Endpoint())

	buf := []byte("HELLO")
	if err := d.Send(context.Background(), buf); err != nil {
		test.Fatal("send", err)
	}
	copy(buf, "XXXXX")

	m := recvTest(test, r)
	if string(m[1]) != "HELLO" {
		test.Fatal("request changed after Send returned", m.Strings())
	}
}

func TestDealerDialCancelDuringHandshake(test *testing.T) {
	// accepts and never answers the greeting.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		test.Fatal(err)
	}
	defer l.Close()
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(io.Discard, conn)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	begin := time.Now()
	_, err = Dial(ctx, "tcp://"+l.Addr().String(), WithHandshakeTimeout(5*time.Second))
	if !errors.Is(err, context.Canceled) {
		test.Fatal("dial", err)
	}
	if time.Since(begin) > time.Second {
		test.Fatal("handshake outlived the cancellation", time.Since(begin))
	}
}
