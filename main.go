// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Canopy - Serial NDJSON bridge
//
// Bridges a greenhouse controller's NDJSON serial stream to an HTTP API.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/canopy/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
