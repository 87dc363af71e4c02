// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zrouter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/someonegg/gox/syncx"
)

var (
	// ErrPumpStopped is returned by Output after the pump stopped.
	ErrPumpStopped = errors.New("zrouter: pump stopped")

	errUnknownPanic = errors.New("unknown panic")
)

type legalPanic struct {
	err error
}

// Handler is the message processor.
//
// Process should complete the message processing as soon as possible, it
// runs on the pump's reading goroutine.
type Handler interface {
	Process(ctx context.Context, m Message)
}

// The HandlerFunc type is an adapter to allow the use of
// ordinary functions as message handlers.
type HandlerFunc func(ctx context.Context, m Message)

// Process calls f(ctx, m).
func (f HandlerFunc) Process(ctx context.Context, m Message) {
	f(ctx, m)
}

type Statistics struct {
	// from MessageReadWriter
	ReadCount int64
	ReadBytes int64

	// to MessageReadWriter
	WrittenCount int64
	WrittenBytes int64

	// Output call
	OutputCount int64
}

func (s *Statistics) add(o Statistics) {
	s.ReadCount += o.ReadCount
	s.ReadBytes += o.ReadBytes
	s.WrittenCount += o.WrittenCount
	s.WrittenBytes += o.WrittenBytes
	s.OutputCount += o.OutputCount
}

// Pump represents a message-pump, it has a working loop which reads
// and writes messages parallelly and continuously.
//
// Pump supports concurrently access.
type Pump struct {
	quitF context.CancelFunc
	stopD syncx.DoneChan
	// stopped by request rather than by a failure
	requested bool

	rw MessageReadWriter
	h  Handler
	sn StopNotifier

	// read
	rerr error
	rD   syncx.DoneChan
	// write
	werr error
	wD   syncx.DoneChan
	wQ   chan Message

	stat Statistics

	linger    time.Duration
	panicLogF func(interface{})
}

// NewPump allocates and returns a new Pump.
//
// If rw implementes the StopNotifier interface, it will be called when
// the working loop exiting.
func NewPump(rw MessageReadWriter, h Handler, writeQueueSize int) *Pump {
	sn, _ := rw.(StopNotifier)
	return &Pump{
		stopD: syncx.NewDoneChan(),

		rw: rw,
		h:  h,
		sn: sn,

		rD: syncx.NewDoneChan(),
		wD: syncx.NewDoneChan(),
		wQ: make(chan Message, writeQueueSize),

		panicLogF: thePanicLogFunc,
	}
}

// The default panic log function.
func thePanicLogFunc(v interface{}) {
	const size = 16 << 10
	buf := make([]byte, size)
	buf = buf[:runtime.Stack(buf, false)]
	slog.Error("pump panic", "panic", fmt.Sprint(v), "stack", string(buf))
}

// SetPanicLogFunc is optional.
func (p *Pump) SetPanicLogFunc(f func(panicV interface{})) {
	p.panicLogF = f
}

// SetLinger sets how long a requested stop keeps writing the queued
// messages, zero discards them. Call it before Start.
func (p *Pump) SetLinger(d time.Duration) {
	p.linger = d
}

// Start will start the working loop.
func (p *Pump) Start(parent context.Context) {
	if parent == nil {
		parent = context.Background()
	}

	var ctx context.Context
	ctx, p.quitF = context.WithCancel(parent)

	go p.reading(ctx)
	go p.writing(ctx)
	go p.monitor(ctx)
}

func (p *Pump) monitor(ctx context.Context) {
	defer p.ending()

	select {
	case <-ctx.Done():
		p.requested = true
	case <-p.rD:
	case <-p.wD:
	}
}

func (p *Pump) ending() {
	defer p.stopD.SetDone()

	// if ending from error.
	p.quitF()

	// a requested stop lets the writer drain before the transport closes,
	// as long as the write deadline can bound it.
	if wd, ok := p.rw.(writeDeadliner); ok && p.requested {
		wd.SetWriteDeadline(time.Now().Add(p.linger))
		<-p.wD
	}

	if p.sn != nil {
		p.sn.OnStop()
	}

	<-p.rD
	<-p.wD
}

func (p *Pump) recovered(e interface{}, side *error) {
	legal := false
	switch v := e.(type) {
	case legalPanic:
		legal = true
		*side = v.err
	case error:
		*side = v
	default:
		*side = errUnknownPanic
	}
	if !legal && p.panicLogF != nil {
		p.panicLogF(e)
	}
}

func (p *Pump) reading(ctx context.Context) {
	defer func() {
		if e := recover(); e != nil {
			p.recovered(e, &p.rerr)
		}
		p.rD.SetDone()
	}()

	for q := false; !q; {
		m := p.readMessage()

		p.h.Process(ctx, m)

		select {
		case <-ctx.Done():
			q = true
		default:
		}
	}
}

func (p *Pump) readMessage() Message {
	m, err := p.rw.ReadMessage()
	if err != nil {
		panic(legalPanic{err})
	}
	atomic.AddInt64(&p.stat.ReadCount, 1)
	atomic.AddInt64(&p.stat.ReadBytes, int64(m.Size()))
	return m
}

func (p *Pump) writing(ctx context.Context) {
	defer func() {
		if e := recover(); e != nil {
			p.recovered(e, &p.werr)
		}
		p.wD.SetDone()
	}()

	for q := false; !q; {
		select {
		case <-ctx.Done():
			q = true
			if p.linger > 0 {
				p.drain()
			}
		case m := <-p.wQ:
			p.writeMessage(m)
		}
	}
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

func (p *Pump) drain() {
	for {
		select {
		case m := <-p.wQ:
			p.writeMessage(m)
		default:
			return
		}
	}
}

func (p *Pump) writeMessage(m Message) {
	err := p.rw.WriteMessage(m)
	if err != nil {
		panic(legalPanic{err})
	}
	atomic.AddInt64(&p.stat.WrittenCount, 1)
	atomic.AddInt64(&p.stat.WrittenBytes, int64(m.Size()))
}

// Stop requests to stop the pump, the working loop will stop asynchronously.
func (p *Pump) Stop() {
	p.quitF()
}

// StopD returns a done channel, it will be signaled when the pump is stopped.
func (p *Pump) StopD() syncx.DoneChanR {
	return p.stopD.R()
}

func (p *Pump) Stopped() bool {
	return p.stopD.R().Done()
}

// Error can only be called after pump stopped. A pump stopped by Stop or
// by its parent context reports nil.
func (p *Pump) Error() error {
	if p.requested {
		return nil
	}
	if p.rerr != nil {
		return p.rerr
	}
	return p.werr
}

// Output puts the message to the write queue, it blocks until the message
// is queued, ctx is done or the pump is stopped.
func (p *Pump) Output(ctx context.Context, m Message) error {
	if p.Stopped() {
		return ErrPumpStopped
	}
	select {
	case p.wQ <- m:
		atomic.AddInt64(&p.stat.OutputCount, 1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopD:
		return ErrPumpStopped
	}
}

// TryOutput tries to put the message to the write queue.
func (p *Pump) TryOutput(m Message) bool {
	select {
	case p.wQ <- m:
		atomic.AddInt64(&p.stat.OutputCount, 1)
		return true
	default:
		return false
	}
}

func (p *Pump) Statistics() Statistics {
	return Statistics{
		ReadCount:    atomic.LoadInt64(&p.stat.ReadCount),
		ReadBytes:    atomic.LoadInt64(&p.stat.ReadBytes),
		WrittenCount: atomic.LoadInt64(&p.stat.WrittenCount),
		WrittenBytes: atomic.LoadInt64(&p.stat.WrittenBytes),
		OutputCount:  atomic.LoadInt64(&p.stat.OutputCount),
	}
}

// UnderlyingMRW returns the internal message readwriter.
func (p *Pump) UnderlyingMRW() MessageReadWriter {
	return p.rw
}
