package main

import (
	"github.com/TheHyyy/vibe-music/cmd"
)

func main() {
	cmd.Execute()
}
