package main

import (
	"github.com/BioHazard786/Warpchat/cli/cmd"
	"github.com/BioHazard786/Warpchat/cli/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
