package main

import "github.com/vkolb/viewmesh/cmd"

func main() {
	cmd.Execute()
}
