package main

import (
	"github.com/dyike/BreakoutGo/internal/cli"
)

func main() {
	cli.Run()
}
