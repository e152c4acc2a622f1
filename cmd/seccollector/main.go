package main

import (
	"github.com/shizukutanaka/seccollector/cmd/seccollector/commands"
)

func main() {
	commands.Execute()
}
