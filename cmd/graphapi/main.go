package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/RoboFinSystems/robosystems-sub012/cmd/graphapi/internal"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			if os.Getenv("GRAPH_API_VERBOSE") != "" {
				fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", debug.Stack())
			}
			os.Exit(internal.ExitError)
		}
	}()

	if err := Execute(context.Background()); err != nil {
		os.Exit(internal.HandleError(rootCmd, err))
	}
	os.Exit(internal.ExitSuccess)
}
