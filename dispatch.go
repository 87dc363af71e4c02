// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zrouter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type request struct {
	id Identity
	p  Payload
}

// Dispatcher serves a Router with replies computed on worker goroutines,
// so one slow request does not hold the others. Each request is handed
// to an idle worker or to a new one; workers exit after being idle for
// the idle timeout.
type Dispatcher struct {
	r    *Router
	f    ReplyFunc
	idle time.Duration
	log  *slog.Logger

	reqC chan request
	wg   sync.WaitGroup
}

func NewDispatcher(r *Router, f ReplyFunc, workerIdleTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		r:    r,
		f:    f,
		idle: workerIdleTimeout,
		log:  r.log,
		reqC: make(chan request),
	}
}

// Run receives until the router is closed or ctx is done, then waits for
// the running workers. It returns nil when the router was closed.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.wg.Wait()

	for {
		m, err := d.r.RecvMultipart(ctx)
		if err != nil {
			if errors.Is(err, ErrEndpointClosed) {
				return nil
			}
			return err
		}
		if len(m) < 2 {
			d.log.Warn("malformed request skipped", "frames", len(m))
			continue
		}
		d.async(ctx, request{Identity(m[0]), Payload(m[1:])})
	}
}

func (d *Dispatcher) async(ctx context.Context, r request) {
	select {
	case <-ctx.Done():
	case d.reqC <- r:
	default:
		d.wg.Add(1)
		go d.work(r)
	}
}

func (d *Dispatcher) work(r request) {
	defer d.wg.Done()

	d.handle(r)

	t := time.NewTimer(d.idle)
	defer t.Stop()

	for q := false; !q; {
		select {
		case r = <-d.reqC:
			d.handle(r)

			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			t.Reset(d.idle)
		case <-t.C:
			q = true
		}
	}
}

func (d *Dispatcher) handle(r request) {
	m := make(Message, 0, len(r.p)+1)
	m = append(m, r.id)
	m = append(m, d.f(r.id, r.p)...)

	if err := d.r.SendMultipart(m); err != nil {
		d.log.Warn("reply dropped", "identity", r.id.String(), "err", err)
	}
}
