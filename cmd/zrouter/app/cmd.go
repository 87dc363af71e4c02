// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/someonegg/zrouter/internal/flagutil"
	"github.com/urfave/cli/v2"
)

func Instance() *cli.App {
	loglevel := "info"
	return &cli.App{
		Name:  "zrouter",
		Usage: "ZeroMQ ROUTER echo endpoint and DEALER client",
		Commands: []*cli.Command{
			echoCmd(),
			sendCmd(),
		},
		Flags: []cli.Flag{
			flagutil.String(&loglevel, "log-level", nil,
				"Verbosity of log, valid values are: debug, info, warn, error", false),
		},
		Before: func(ctx *cli.Context) error {
			level := slog.LevelInfo
			switch strings.ToLower(loglevel) {
			case "debug":
				level = slog.LevelDebug
			case "warn":
				level = slog.LevelWarn
			case "error":
				level = slog.LevelError
			}
			logger := slog.New(slog.NewTextHandler(ctx.App.ErrWriter, &slog.HandlerOptions{
				Level: level,
			}))
			slog.SetDefault(logger)
			return nil
		},
	}
}

func Run(ctx context.Context, args []string) error {
	app := Instance()
	return app.RunContext(ctx, args)
}
