package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/plank/cmd/plank/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	if err := commands.Execute(); err != nil {
		log.Error().Err(err).Msg("plank failed")
		os.Exit(1)
	}
}
