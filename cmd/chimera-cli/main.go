package main

import "chimera/cmd/chimera-cli/cmd"

func main() {
	cmd.Execute()
}
