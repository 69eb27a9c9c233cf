// Command lifeline builds, encodes, scans and serves emergency records.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/lifeline/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
