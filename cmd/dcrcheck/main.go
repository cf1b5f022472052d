// Command dcrcheck replays event logs against DCR graphs.
package main

import (
	"fmt"
	"os"

	"github.com/sebastiandunzer/dcr-log-filter/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
