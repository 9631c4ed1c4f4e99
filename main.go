package main

import (
	"os"

	"github.com/alexclairr/imageguard/cmd/guard"
)

func main() {
	os.Exit(guard.Main(os.Args[1:], os.Stdout, os.Stderr))
}
