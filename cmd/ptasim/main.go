package main

import "github.com/GoSim-25-26J-441/ptasim-core/internal/cli"

func main() {
	cli.Execute()
}
