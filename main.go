package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var driftErr *DriftError
		if errors.As(err, &driftErr) {
			os.Exit(driftErr.ExitCode())
		}
		os.Exit(1)
	}
}
