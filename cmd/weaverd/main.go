package main

import "github.com/danielpatrickdp/state-weaver/internal/cli"

func main() {
	cli.Execute()
}
