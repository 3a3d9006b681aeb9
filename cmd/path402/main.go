package main

import "github.com/vietddude/path402/internal/cli"

func main() {
	cli.Execute()
}
