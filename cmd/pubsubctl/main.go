package main

import (
	"fmt"
	"os"
)

var version string = "0"
var commit string = "abcd1234"
var date = "unknown"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
