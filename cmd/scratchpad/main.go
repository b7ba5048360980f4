package main

import "github.com/caffeineduck/scratchpad/studio"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	studio.Version = version
	Execute()
}
