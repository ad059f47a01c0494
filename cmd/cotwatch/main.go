package main

import "cotwatch/internal/cli"

func main() {
	cli.Execute()
}
