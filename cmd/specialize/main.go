package main

import (
	"os"

	"github.com/funvibe/specialize/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
