// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// cmristat - C/MRI Serial Protocol Analyzer
//
// A CLI tool for monitoring, polling and decoding C/MRI serial frames
// in human-readable format.

package main

import (
	"os"

	"github.com/Thermoquad/cmristat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
