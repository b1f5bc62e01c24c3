package main

import "productsearch/internal/cli"

func main() {
	cli.Execute()
}
