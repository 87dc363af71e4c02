// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flagutil builds urfave/cli flags that also read an environment
// variable named after the flag.
package flagutil

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

// EnvPrefix is the prefix of every environment variable zrouter reads.
const EnvPrefix = "ZROUTER"

var unsafeFlagName = regexp.MustCompile(`[^a-zA-Z0-9_]`)
var dedupUnder = regexp.MustCompile(`__+`)

// EnvVar returns the environment variables mirroring flag name, for
// example ZROUTER_STATSD_PREFIX for statsd-prefix.
func EnvVar(envPrefix, name string) []string {
	if envPrefix == "" {
		return nil
	}
	return []string{fmt.Sprintf("%v_%v", envPrefix, strings.ToUpper(
		dedupUnder.ReplaceAllString(
			unsafeFlagName.ReplaceAllString(name, "_"),
			"_")))}
}

func String(dest *string, longName string, alias []string, usage string, required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Destination: dest,
		Value:       *dest,
		Name:        longName,
		Aliases:     alias,
		Usage:       usage,
		Required:    required,
		EnvVars:     EnvVar(EnvPrefix, longName),
	}
}

func StringSlice(dest *cli.StringSlice, longName string, alias []string, usage string, required bool) *cli.StringSliceFlag {
	return &cli.StringSliceFlag{
		Name:        longName,
		Aliases:     alias,
		EnvVars:     EnvVar(EnvPrefix, longName),
		Usage:       usage,
		Required:    required,
		Destination: dest,
	}
}

func Bool(dest *bool, longName string, alias []string, usage string) *cli.BoolFlag {
	return &cli.BoolFlag{
		Destination: dest,
		Value:       *dest,
		Name:        longName,
		Aliases:     alias,
		Usage:       usage,
		EnvVars:     EnvVar(EnvPrefix, longName),
	}
}

func Duration(dest *time.Duration, longName string, alias []string, usage string) *cli.DurationFlag {
	return &cli.DurationFlag{
		Destination: dest,
		Value:       *dest,
		Name:        longName,
		Aliases:     alias,
		Usage:       usage,
		EnvVars:     EnvVar(EnvPrefix, longName),
	}
}
