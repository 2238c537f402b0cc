// gltfview serves a single glTF viewer session.
//
// Features:
// - Drop, deep-link and remote-fetch loading with last-request-wins
// - Temporary object URLs released on every exit path
// - Structural validation on a worker pool
// - SSE state push, load history (memory or PostgreSQL)
// - Prometheus metrics & structured logging (zap)
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
