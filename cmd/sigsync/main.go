// Command sigsync serves shared signals over HTTP and WebSocket.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/sigsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
