// Package main is the entry point for the giztalk CLI.
//
// Usage:
//
//	giztalk [flags] <command> [subcommand] [args]
//
// Commands:
//
//	serve      - Run the websocket gateway
//	apply      - Apply resource documents (roles, devices, model configs)
//	get        - List or show stored resources
//	delete     - Delete stored resources
//	config     - Context management (servers, device identity)
//	gear       - Interactive device simulator
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/giztalk/go/cmd/giztalk/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
