package main

import "infrakt.dev/cli"

func main() {
	cli.Execute()
}
