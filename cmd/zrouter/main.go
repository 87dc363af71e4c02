// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/someonegg/zrouter/cmd/zrouter/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err := app.Run(ctx, os.Args)
	if err != nil {
		slog.Error("Application failed", "err", err)
		log.Fatal("abort")
	}
}
