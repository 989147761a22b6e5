package main

import "playersync/internal/cli"

func main() {
	cli.Execute()
}
