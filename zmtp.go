// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zrouter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SocketType is the ZMTP socket type announced in the READY command.
type SocketType string

const (
	DealerSocket SocketType = "DEALER"
	RouterSocket SocketType = "ROUTER"
	ReqSocket    SocketType = "REQ"
	RepSocket    SocketType = "REP"
)

// Compatible reports whether a socket of type t may talk to a peer of
// type peer, see https://rfc.zeromq.org/spec:23/ZMTP/.
func (t SocketType) Compatible(peer SocketType) bool {
	switch t {
	case RouterSocket:
		return peer == DealerSocket || peer == ReqSocket || peer == RouterSocket
	case DealerSocket:
		return peer == RouterSocket || peer == RepSocket || peer == DealerSocket
	case ReqSocket:
		return peer == RouterSocket || peer == RepSocket
	case RepSocket:
		return peer == DealerSocket || peer == ReqSocket
	}
	return false
}

const (
	zmtpMajorVersion byte = 3
	zmtpMinorVersion byte = 0

	greetingSize    = 64
	signaturePrefix = 0xFF
	signatureSuffix = 0x7F
	mechanismSize   = 20
	nullMechanism   = "NULL"

	flagMore    byte = 0x01
	flagLong    byte = 0x02
	flagCommand byte = 0x04

	maxIdentitySize = 255
)

var (
	ErrBadGreeting        = errors.New("zmtp: bad greeting")
	ErrBadVersion         = errors.New("zmtp: unsupported protocol version")
	ErrBadMechanism       = errors.New("zmtp: unsupported security mechanism")
	ErrIncompatibleSocket = errors.New("zmtp: incompatible socket type")
	ErrBadCommand         = errors.New("zmtp: bad command")
	ErrBadMetadata        = errors.New("zmtp: bad metadata")
	ErrFrameTooLarge      = errors.New("zmtp: frame too large")
	ErrMessageTooLarge    = errors.New("zmtp: message too large")
	ErrPeerError          = errors.New("zmtp: peer error")
)

// greeting layout:
//
//	signature(10) version(2) mechanism(20) as-server(1) filler(31)
type greeting struct {
	major, minor byte
	mechanism    string
	asServer     bool
}

func (g greeting) marshal() []byte {
	b := make([]byte, greetingSize)
	b[0] = signaturePrefix
	b[9] = signatureSuffix
	b[10] = g.major
	b[11] = g.minor
	copy(b[12:12+mechanismSize], g.mechanism)
	if g.asServer {
		b[32] = 1
	}
	return b
}

func parseGreeting(b []byte) (g greeting, err error) {
	if len(b) != greetingSize || b[0] != signaturePrefix || b[9] != signatureSuffix {
		err = ErrBadGreeting
		return
	}
	g.major = b[10]
	g.minor = b[11]
	g.mechanism = strings.TrimRight(string(b[12:12+mechanismSize]), "\x00")
	switch b[32] {
	case 0:
	case 1:
		g.asServer = true
	default:
		err = fmt.Errorf("%w: as-server byte %#x", ErrBadGreeting, b[32])
	}
	return
}

type property struct {
	name, value string
}

// encodeMetadata lays out properties as name-len(1) name value-len(4) value.
func encodeMetadata(props []property) ([]byte, error) {
	n := 0
	for _, p := range props {
		if len(p.name) == 0 || len(p.name) > 255 {
			return nil, fmt.Errorf("%w: property name %q", ErrBadMetadata, p.name)
		}
		n += 1 + len(p.name) + 4 + len(p.value)
	}

	b := make([]byte, 0, n)
	for _, p := range props {
		b = append(b, byte(len(p.name)))
		b = append(b, p.name...)
		b = binary.BigEndian.AppendUint32(b, uint32(len(p.value)))
		b = append(b, p.value...)
	}
	return b, nil
}

// decodeMetadata returns the properties keyed by lower-cased name.
func decodeMetadata(b []byte) (map[string]string, error) {
	props := make(map[string]string)
	for i := 0; i < len(b); {
		nl := int(b[i])
		i++
		if nl == 0 || i+nl+4 > len(b) {
			return nil, fmt.Errorf("%w: name overflows body at %d", ErrBadMetadata, i)
		}
		name := strings.ToLower(string(b[i : i+nl]))
		i += nl

		vl := binary.BigEndian.Uint32(b[i : i+4])
		i += 4
		if uint64(vl) > uint64(len(b)-i) {
			return nil, fmt.Errorf("%w: value of %q overflows body", ErrBadMetadata, name)
		}
		props[name] = string(b[i : i+int(vl)])
		i += int(vl)
	}
	return props, nil
}

// readyProperties builds the READY metadata; application keys go out as
// X-<key> in a stable order.
func readyProperties(t SocketType, id Identity, meta map[string]string) ([]property, error) {
	if len(id) > maxIdentitySize {
		return nil, fmt.Errorf("%w: identity longer than %d bytes", ErrBadMetadata, maxIdentitySize)
	}

	props := []property{
		{"Socket-Type", string(t)},
		{"Identity", string(id)},
	}

	keys := make([]string, 0, len(meta))
	values := make(map[string]string, len(meta))
	for k, v := range meta {
		lk := strings.ToLower(k)
		if lk == "" {
			return nil, fmt.Errorf("%w: empty application key", ErrBadMetadata)
		}
		if _, ok := values[lk]; ok {
			return nil, fmt.Errorf("%w: key %q given twice with different casing", ErrBadMetadata, lk)
		}
		values[lk] = v
		keys = append(keys, lk)
	}
	sort.Strings(keys)

	for _, k := range keys {
		props = append(props, property{"X-" + k, values[k]})
	}
	return props, nil
}

func encodeCommand(name string, data []byte) ([]byte, error) {
	if len(name) == 0 || len(name) > 255 {
		return nil, fmt.Errorf("%w: name %q", ErrBadCommand, name)
	}
	b := make([]byte, 0, 1+len(name)+len(data))
	b = append(b, byte(len(name)))
	b = append(b, name...)
	b = append(b, data...)
	return b, nil
}

func parseCommand(body []byte) (name string, data []byte, err error) {
	if len(body) == 0 {
		err = fmt.Errorf("%w: empty body", ErrBadCommand)
		return
	}
	nl := int(body[0])
	if nl == 0 || nl > len(body)-1 {
		err = fmt.Errorf("%w: name length %d for body of %d", ErrBadCommand, nl, len(body))
		return
	}
	return string(body[1 : 1+nl]), body[1+nl:], nil
}
