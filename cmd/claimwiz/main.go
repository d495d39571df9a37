// Command claimwiz walks through a tax credit claim from the terminal.
package main

import (
	"context"
	"os"

	"github.com/roach88/claimwiz/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
