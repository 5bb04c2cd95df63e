package main

import "github.com/vnetscan/vnetscan/cmd"

func main() {
	cmd.Execute()
}
