package main

import "github.com/bjaus/bus/internal/cli"

func main() {
	cli.Execute()
}
