// Command pdbake renders patches offline into the tables of a shared audio
// engine.
package main

import (
	"context"
	"os"

	"github.com/Mr00Anderson/gdx-pd/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
