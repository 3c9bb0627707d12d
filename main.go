package main

import "github.com/driftware/deskhand/cmd"

func main() {
	cmd.Execute()
}
