package main

import "github.com/stephnangue/porter/cmd"

func main() {
	cmd.Execute()
}
