// main package for picotts
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/book-expert/picotts/cmd/picotts/cmd"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}

	var exitErr *cmd.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}

	fmt.Fprintf(os.Stderr, "picotts exited with error: %v\n", err)
	os.Exit(1)
}
