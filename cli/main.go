package main

import "github.com/harborlock/credvault/cli/cmd"

func main() {
	cmd.Execute()
}
