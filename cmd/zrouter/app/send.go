// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/someonegg/zrouter"
	"github.com/someonegg/zrouter/internal/flagutil"
	"github.com/urfave/cli/v2"
)

func sendCmd() *cli.Command {
	connect := "tcp://127.0.0.1:5555"
	identity := ""
	timeout := 5 * time.Second
	return &cli.Command{
		Name:      "send",
		Usage:     "Sends one request through a DEALER and prints the reply frames",
		ArgsUsage: "frame...",
		Flags: []cli.Flag{
			flagutil.String(&connect, "connect", []string{"c"}, "Endpoint to connect, tcp://<host>:<port>", false),
			flagutil.String(&identity, "identity", []string{"i"}, "Identity announced to the router", false),
			flagutil.Duration(&timeout, "timeout", []string{"t"}, "Give up after this long"),
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() == 0 {
				return errors.New("at least one frame is required")
			}

			c, cancel := context.WithTimeout(ctx.Context, timeout)
			defer cancel()

			var opts []zrouter.Option
			if identity != "" {
				opts = append(opts, zrouter.WithIdentity(zrouter.Identity(identity)))
			}
			d, err := zrouter.Dial(c, connect, opts...)
			if err != nil {
				return err
			}
			defer d.Close()

			frames := make([][]byte, ctx.NArg())
			for i, a := range ctx.Args().Slice() {
				frames[i] = []byte(a)
			}

			reply, err := d.Do(c, frames...)
			if err != nil {
				return err
			}
			for _, f := range reply {
				fmt.Fprintf(ctx.App.Writer, "%s\n", f)
			}
			return nil
		},
	}
}
