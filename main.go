package main

import (
	"os"

	"github.com/evetools/fleetmeter/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
