package zrouter

import (
	"errors"
	"testing"
)

func TestGreeting(test *testing.T) {
	g := greeting{major: 3, minor: 1, mechanism: nullMechanism, asServer: true}
	b := g.marshal()

	if len(b) != greetingSize || b[0] != 0xFF || b[9] != 0x7F {
		test.Fatal("greeting signature", b[:10])
	}
	if string(b[12:16]) != "NULL" || b[16] != 0 {
		test.Fatal("greeting mechanism must be null padded", b[12:32])
	}

	pg, err := parseGreeting(b)
	if err != nil || pg != g {
		test.Fatal("greeting round trip", pg, err)
	}

	b[0] = 0
	if _, err := parseGreeting(b); err != ErrBadGreeting {
		test.Fatal("bad signature", err)
	}

	b[0] = 0xFF
	b[32] = 2
	if _, err := parseGreeting(b); !errors.Is(err, ErrBadGreeting) {
		test.Fatal("bad as-server", err)
	}
}

func TestMetadata(test *testing.T) {
	props, err := readyProperties(RouterSocket, Identity("id"), map[string]string{"B": "2", "a": "1"})
	if err != nil {
		test.Fatal(err)
	}

	names := []string{"Socket-Type", "Identity", "X-a", "X-b"}
	if len(props) != len(names) {
		test.Fatal("property count", props)
	}
	for i, p := range props {
		if p.name != names[i] {
			test.Fatal("property order", props)
		}
	}

	b, err := encodeMetadata(props)
	if err != nil {
		test.Fatal(err)
	}
	md, err := decodeMetadata(b)
	if err != nil {
		test.Fatal(err)
	}
	if md["socket-type"] != "ROUTER" || md["identity"] != "id" || md["x-a"] != "1" || md["x-b"] != "2" {
		test.Fatal("metadata round trip", md)
	}

	if _, err := decodeMetadata(b[:len(b)-1]); !errors.Is(err, ErrBadMetadata) {
		test.Fatal("truncated metadata", err)
	}

	if _, err := readyProperties(RouterSocket, nil, map[string]string{"k": "1", "K": "2"}); !errors.Is(err, ErrBadMetadata) {
		test.Fatal("duplicate key", err)
	}

	if _, err := readyProperties(RouterSocket, make(Identity, 256), nil); !errors.Is(err, ErrBadMetadata) {
		test.Fatal("identity too long", err)
	}
}

func TestCommand(test *testing.T) {
	b, err := encodeCommand("READY", []byte("x"))
	if err != nil {
		test.Fatal(err)
	}

	name, data, err := parseCommand(b)
	if err != nil || name != "READY" || string(data) != "x" {
		test.Fatal("command round trip", name, data, err)
	}

	for _, body := range [][]byte{nil, {0}, {6, 'R', 'E'}} {
		if _, _, err := parseCommand(body); !errors.Is(err, ErrBadCommand) {
			test.Fatal("bad command", body, err)
		}
	}
}

func TestSocketCompatibility(test *testing.T) {
	cases := []struct {
		local, peer SocketType
		ok          bool
	}{
		{RouterSocket, DealerSocket, true},
		{RouterSocket, ReqSocket, true},
		{RouterSocket, RouterSocket, true},
		{RouterSocket, RepSocket, false},
		{DealerSocket, RouterSocket, true},
		{DealerSocket, ReqSocket, false},
		{RouterSocket, SocketType("PUB"), false},
	}

	for _, c := range cases {
		if c.local.Compatible(c.peer) != c.ok {
			test.Fatal("compatibility", c.local, c.peer)
		}
	}
}
