package main

import "github.com/tornsidekick/sidekick/internal/cli"

func main() {
	cli.Execute()
}
