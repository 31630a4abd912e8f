// Command steelflow is a command-line front end for the connection design workflow.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/steelflow/internal/core/domain"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}
	if err := root.Run(ctx, args); err != nil {
		reportError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// reportError prints err with a hint for errors the user can act on.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
	switch domain.KindOf(err) {
	case domain.ErrorKindSessionInvalid:
		fmt.Fprintln(w, "the design service rejected the token; set service.token or STEELFLOW_SERVICE__TOKEN and retry")
	case domain.ErrorKindPrecondition:
		fmt.Fprintln(w, "the connection is not in a state that allows this operation")
	}
}
