// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// rhsp - REV Hub Serial Protocol host tool
//
// A CLI tool for discovering, commanding and monitoring REV hubs over a
// serial link or a WebSocket serial bridge.

package main

import (
	"os"

	"github.com/rhsp-go/rhsp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
