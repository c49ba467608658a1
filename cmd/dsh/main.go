package main

import (
	"os"

	"github.com/dsh-project/dsh/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Run(version, os.Args[1:]))
}
