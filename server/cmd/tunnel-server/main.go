// Command tunnel-server runs the wireterm Server: the central session
// router, web UI host, and persistence layer.
package main

import (
	"fmt"
	"os"

	"github.com/wireterm/wireterm/server/internal/cli"
)

var version = "dev"

func main() {
	root := cli.NewRootCmd(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
