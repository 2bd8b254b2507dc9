// Package main provides the ricgraph harvester CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/UtrechtUniversity/ricgraph-go/internal/util"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/logger"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/logger/console"
)

var version = "dev"

func main() {
	util.LoadEnv()
	logger.Init(console.New(console.Params{
		Debug: util.GetEnvBool("DEBUG", false),
	}))

	app := &cli.Command{
		Name:    "harvester",
		Version: version,
		Usage:   "Harvest identity records into a ricgraph graph",
		Commands: []*cli.Command{
			runCommand(),
			emptyCommand(),
			enqueueCommand(),
		},
	}

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
