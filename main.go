package main

import "codetree/internal/cli"

var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.Main()
}
