package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/arthur-debert/server-sync/pkg/errors"
)

func main() {
	if err := Execute(); err != nil {
		log.Error().Msg(err.Error())
		os.Exit(errors.ExitCode(err))
	}
}
