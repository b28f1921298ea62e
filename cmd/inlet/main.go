package main

import (
	"github.com/inletmail/inlet/cmd/inlet/commands"
)

func main() {
	commands.Execute()
}
