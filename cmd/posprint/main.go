package main

import "posprint/internal/cli"

func main() {
	cli.Execute()
}
