// Package main provides beatctl, an offline companion to the beatstore API:
// it renders previews, prices licenses and checks RPC endpoints.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
