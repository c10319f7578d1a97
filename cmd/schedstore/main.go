// Command schedstore inspects and maintains scheduler storage directories.
package main

import (
	"os"

	"github.com/roach88/schedstore/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:], os.Stdout, os.Stderr))
}
