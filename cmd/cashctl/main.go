// Command cashctl is the command-line client for the Code & Cash marketplace.
package main

import "github.com/code-and-cash/cashctl/internal/cli"

func main() {
	cli.Execute()
}
