package main

import (
	"github.com/DanielAIris/liris/cmd"
)

func main() {
	cmd.Execute()
}
