// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package statsreport flushes router statistics to a statsd server.
package statsreport

import (
	"context"
	"log/slog"
	"time"

	"github.com/cactus/go-statsd-client/v5/statsd"
	"github.com/someonegg/zrouter"
)

// Source is what gets reported, *zrouter.Router satisfies it.
type Source interface {
	Statistics() zrouter.RouterStatistics
}

// Gauger is the part of statsd.Statter the reporter needs.
type Gauger interface {
	Gauge(stat string, value int64, rate float32, tags ...statsd.Tag) error
}

// Reporter gauges a Source every interval.
type Reporter struct {
	g        Gauger
	interval time.Duration
	log      *slog.Logger
	closeF   func() error
}

// New returns a Reporter sending to the statsd server at address, every
// stat name prefixed with prefix.
func New(address, prefix string, interval time.Duration) (*Reporter, error) {
	client, err := statsd.NewClientWithConfig(&statsd.ClientConfig{
		Address: address,
		Prefix:  prefix,
	})
	if err != nil {
		return nil, err
	}

	r := NewWithGauger(client, interval)
	r.closeF = client.Close
	return r, nil
}

func NewWithGauger(g Gauger, interval time.Duration) *Reporter {
	return &Reporter{
		g:        g,
		interval: interval,
		log:      slog.Default(),
	}
}

// Run reports src every interval until ctx is done, then reports once
// more so the final counters are not lost.
func (r *Reporter) Run(ctx context.Context, src Source) {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			r.Report(src.Statistics())
		case <-ctx.Done():
			r.Report(src.Statistics())
			return
		}
	}
}

// Report sends one sample of every statistic.
func (r *Reporter) Report(stat zrouter.RouterStatistics) {
	gauges := []struct {
		name  string
		value int64
	}{
		{"peers", stat.Peers},
		{"accepted", stat.Accepted},
		{"rejected", stat.Rejected},
		{"dropped", stat.Dropped},
		{"read.count", stat.ReadCount},
		{"read.bytes", stat.ReadBytes},
		{"written.count", stat.WrittenCount},
		{"written.bytes", stat.WrittenBytes},
	}

	for _, g := range gauges {
		if err := r.g.Gauge(g.name, g.value, 1.0); err != nil {
			r.log.Warn("statsd gauge failed", "stat", g.name, "err", err)
			return
		}
	}
}

// Close releases the statsd client created by New.
func (r *Reporter) Close() error {
	if r.closeF == nil {
		return nil
	}
	return r.closeF()
}
