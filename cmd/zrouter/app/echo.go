// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/someonegg/zrouter"
	"github.com/someonegg/zrouter/internal/flagutil"
	"github.com/someonegg/zrouter/internal/statsreport"
	"github.com/urfave/cli/v2"
)

type echoConfig struct {
	bind     string
	replies  cli.StringSlice
	echo     bool
	once     bool
	handover bool
	dump     bool

	statsd         string
	statsdPrefix   string
	statsdInterval time.Duration
}

func echoCmd() *cli.Command {
	cfg := echoConfig{
		bind:           "tcp://127.0.0.1:5555",
		statsdPrefix:   "zrouter",
		statsdInterval: 10 * time.Second,
	}
	return &cli.Command{
		Name:  "echo",
		Usage: "Binds a ROUTER endpoint and answers every request",
		Flags: []cli.Flag{
			flagutil.String(&cfg.bind, "bind", []string{"b"}, "Endpoint to bind, tcp://<host>:<port>", false),
			flagutil.StringSlice(&cfg.replies, "reply", []string{"r"}, "Reply frame, repeat for multipart replies (default WORLD)", false),
			flagutil.Bool(&cfg.echo, "echo", nil, "Reply with the request payload"),
			flagutil.Bool(&cfg.once, "once", nil, "Exit after answering one request"),
			flagutil.Bool(&cfg.handover, "handover", nil, "Let a new peer take over the identity of a connected one"),
			flagutil.Bool(&cfg.dump, "dump", nil, "Dump every message to stderr"),
			flagutil.String(&cfg.statsd, "statsd", nil, "Address of a statsd server to report to", false),
			flagutil.String(&cfg.statsdPrefix, "statsd-prefix", nil, "Prefix of the reported stats", false),
			flagutil.Duration(&cfg.statsdInterval, "statsd-interval", nil, "Report interval"),
		},
		Action: func(ctx *cli.Context) error {
			return runEcho(ctx, &cfg)
		},
	}
}

func runEcho(ctx *cli.Context, cfg *echoConfig) error {
	log := slog.Default()

	opts := []zrouter.Option{
		zrouter.WithLogger(log),
		zrouter.WithHandover(cfg.handover),
	}
	if cfg.dump {
		opts = append(opts, zrouter.WithDump(ctx.App.ErrWriter))
	}

	r, err := zrouter.Bind(cfg.bind, opts...)
	if err != nil {
		return err
	}
	e := zrouter.NewEndpoint(r, opts...)
	defer e.Stop()

	log.Info("Endpoint ready", "endpoint", r.Endpoint())

	if cfg.statsd != "" {
		rep, err := statsreport.New(cfg.statsd, cfg.statsdPrefix, cfg.statsdInterval)
		if err != nil {
			return err
		}
		defer rep.Close()

		rctx, cancel := context.WithCancel(ctx.Context)
		doneC := make(chan struct{})
		go func() {
			defer close(doneC)
			rep.Run(rctx, r)
		}()
		defer func() {
			cancel()
			<-doneC
		}()
	}

	f := replyFunc(cfg)
	if cfg.once {
		return e.ServeOne(ctx.Context, f)
	}

	err = e.Serve(ctx.Context, f)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func replyFunc(cfg *echoConfig) zrouter.ReplyFunc {
	if cfg.echo {
		return zrouter.EchoReply
	}

	values := cfg.replies.Value()
	if len(values) == 0 {
		values = []string{"WORLD"}
	}
	frames := make([][]byte, len(values))
	for i, v := range values {
		frames[i] = []byte(v)
	}
	return zrouter.FixedReply(frames...)
}
