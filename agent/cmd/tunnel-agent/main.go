// Command tunnel-agent runs the wireterm Agent: the local PTY host that
// relays terminal Instances to the server over a persistent connection.
package main

import (
	"fmt"
	"os"

	"github.com/wireterm/wireterm/agent/internal/cli"
)

var version = "dev"

func main() {
	root := cli.NewRootCmd(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
