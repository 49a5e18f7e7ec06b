// Command fanoutd runs a synthetic frame pipeline through an observer fanout
// and serves its metrics and task state over HTTP.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fanoutd:", err)
		os.Exit(1)
	}
}
