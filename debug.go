// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zrouter

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"
)

// MessageDump is a debugging helper, it implements the MessageReadWriter
// interface and provides message dump function.
//
// The dump format is:
//
//	R|W:Frames:MessageSize\nFrame\n...Frame\n\n
type MessageDump struct {
	RW   MessageReadWriter
	Dump io.Writer

	// Filter can be nil. If nil, dump all messages.
	Filter func(m Message, read bool) bool
}

func (d *MessageDump) needDump(m Message, read bool) bool {
	if d.Filter != nil {
		return d.Filter(m, read)
	}
	return true
}

// dump emits a record with a single Write, so records from several
// dumps sharing a SyncWriter do not interleave.
func (d *MessageDump) dump(tag string, m Message) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%v:%v:%v\n", tag, len(m), m.Size())
	for _, f := range m {
		b.Write(f)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	d.Dump.Write(b.Bytes())
}

func (d *MessageDump) ReadMessage() (m Message, err error) {
	m, err = d.RW.ReadMessage()
	if err != nil {
		return
	}

	if d.needDump(m, true) {
		d.dump("R", m)
	}
	return
}

func (d *MessageDump) WriteMessage(m Message) (err error) {
	err = d.RW.WriteMessage(m)
	if err != nil {
		return
	}

	if d.needDump(m, false) {
		d.dump("W", m)
	}
	return
}

// OnStop forwards to the wrapped readwriter.
func (d *MessageDump) OnStop() {
	if sn, ok := d.RW.(StopNotifier); ok {
		sn.OnStop()
	}
}

func (d *MessageDump) SetWriteDeadline(t time.Time) error {
	if wd, ok := d.RW.(writeDeadliner); ok {
		return wd.SetWriteDeadline(t)
	}
	return nil
}

// SyncWriter serializes writes to W.
type SyncWriter struct {
	mu sync.Mutex
	W  io.Writer
}

func (w *SyncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.W.Write(p)
}
