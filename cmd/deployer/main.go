// Command deployer ships a project to its application servers, patches the
// database schema and switches the servers to the new release.
//
// Usage:
//
//	deployer deploy                 # sync, patch, activate, clean up
//	deployer rollback               # reactivate the previous release and revert its patches
//	deployer cleanup                # delete releases that are no longer kept
//	deployer plan [update|rollback] # show the releases and patches a run would touch
//
// The project is described by deploy.yaml in the working directory, or by --config.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived shutdown signal, stopping...")
		cancel()
	}()

	root := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
