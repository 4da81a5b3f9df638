// Command authsync runs the authority link service and its operator tools.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/authsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
