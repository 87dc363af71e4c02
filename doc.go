// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zrouter provides an identity-addressed request/reply endpoint,
// a test double for clients of ZeroMQ ROUTER sockets.
//
// The Endpoint receives one multipart message at a time, together with the
// identity of the peer that sent it, and replies to that identity so the
// transport delivers the reply to the right peer.
//
// The transport layer is a pure Go ZMTP 3.0 implementation (NULL security):
//
//	Router    a ZMQ_ROUTER socket, the Endpoint's Transport
//	Dealer    a ZMQ_DEALER socket, the client side
//	ZMTPConn  the MessageReadWriter over net.Conn used by both
//
// Each connection is driven by a Pump, which reads and writes messages
// parallelly and continuously.
//
// Here is a quick example, includes client and server.
//
// Server
//
//	func server() {
//		e, err := zrouter.Start("tcp://127.0.0.1:5555")
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer e.Stop()
//
//		id, p, err := e.ReceiveOne(context.Background())
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("server receive message: %q, %q", id, p)
//
//		err = e.ReplyTo(id, zrouter.Payload{[]byte("WORLD")})
//		if err != nil {
//			log.Print(err)
//		}
//	}
//
// Client
//
//	func client() {
//		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//		defer cancel()
//
//		d, err := zrouter.Dial(ctx, "tcp://127.0.0.1:5555",
//			zrouter.WithIdentity(zrouter.Identity("client-1")))
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer d.Close()
//
//		reply, err := d.Do(ctx, []byte("HELLO"))
//		log.Printf("client receive reply: %q, %v", reply.Strings(), err)
//	}
//
// A reusable fixture runs a loop instead, with the reply computed per test:
//
//	go e.Serve(ctx, zrouter.FixedReply([]byte("WORLD")))
package zrouter
