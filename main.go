// Package main provides the mistie command, which computes per-line Z shift,
// phase rotation and amplitude corrections from seismic line-tie misties.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
