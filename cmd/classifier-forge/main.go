package main

import "classifier-forge/internal/cli"

func main() {
	cli.Execute()
}
