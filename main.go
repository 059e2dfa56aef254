package main

import "github.com/bz888/champs/cmd"

func main() {
	cmd.Execute()
}
