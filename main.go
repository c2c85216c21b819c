// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Heatlink - Panasonic Aquarea heat pump link
//
// A CLI tool and daemon for monitoring, querying and configuring Aquarea
// heat pumps over their serial service port.

package main

import (
	"os"

	"github.com/Thermoquad/heatlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
