package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess     = 0 // Every cell succeeded
	ExitCellsFailed = 1 // The run finished but some cells errored
	ExitError       = 2 // Configuration or runtime error
)

// CellFailureError indicates that the run completed, but one or more
// (model, input) cells resolved to an error.
type CellFailureError struct {
	Failed int
	Total  int
}

func (e *CellFailureError) Error() string {
	return fmt.Sprintf("run completed with %d of %d cell(s) failed", e.Failed, e.Total)
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var cellErr *CellFailureError
		if errors.As(err, &cellErr) {
			os.Exit(ExitCellsFailed)
		}

		// All other errors are configuration/runtime errors
		os.Exit(ExitError)
	}
}
