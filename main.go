package main

import "github.com/tanq16/octoftp/cmd"

func main() {
	cmd.Execute()
}
