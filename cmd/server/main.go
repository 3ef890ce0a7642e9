package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := newRootCmd(newFlags()).ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("Exiting")
		os.Exit(1)
	}
}
