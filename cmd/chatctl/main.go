package main

import "github.com/filipexyz/chanrelay/internal/cli/cmd"

func main() {
	cmd.Execute()
}
