package main

import (
	"os"

	"github.com/dmitrijs2005/authcore/internal/authctl"
)

func main() {
	os.Exit(authctl.Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
