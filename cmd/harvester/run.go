package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/UtrechtUniversity/ricgraph-go/internal/harvest"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/leaselock"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/ricgraph"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/store"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/store/bolt"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/store/mem"
)

func graphFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "backend",
			Usage:   "graph backend (neo4j or memgraph)",
			Value:   bolt.BackendNeo4j,
			Sources: cli.EnvVars("GRAPH_BACKEND"),
		},
		&cli.StringFlag{
			Name:    "uri",
			Usage:   "graph database connection URI",
			Sources: cli.EnvVars("GRAPH_URI"),
		},
		&cli.StringFlag{
			Name:    "username",
			Aliases: []string{"u"},
			Usage:   "graph database username",
			Sources: cli.EnvVars("GRAPH_USER"),
		},
		&cli.StringFlag{
			Name:    "password",
			Aliases: []string{"p"},
			Usage:   "graph database password",
			Sources: cli.EnvVars("GRAPH_PASSWORD"),
		},
		&cli.StringFlag{
			Name:    "database",
			Usage:   "database name (Neo4j only)",
			Sources: cli.EnvVars("GRAPH_DATABASE"),
		},
	}
}

func openStore(ctx context.Context, cmd *cli.Command) (store.NodeStore, error) {
	return bolt.Open(ctx, bolt.Config{
		Backend:  cmd.String("backend"),
		URI:      cmd.String("uri"),
		Username: cmd.String("username"),
		Password: cmd.String("password"),
		Database: cmd.String("database"),
	})
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a harvest from a YAML source definition file",
		ArgsUsage: "<sources.yaml>",
		Flags: append(graphFlags(),
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "node admission mode (strict or lenient)",
				Value:   "strict",
				Sources: cli.EnvVars("RICGRAPH_NODEADD_MODE"),
			},
			&cli.IntFlag{
				Name:    "review-name-variants",
				Usage:   "flag lenient merges when both roots exceed this many FULL_NAME spellings (0 disables)",
				Sources: cli.EnvVars("RICGRAPH_REVIEW_NAME_VARIANTS"),
			},
			&cli.IntFlag{
				Name:  "parallel-parse",
				Usage: "record files parsed concurrently",
				Value: 4,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "run against a throwaway in-memory graph",
			},
		),
		Action: runHarvest,
	}
}

func runHarvest(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("missing source definition file")
	}
	set, err := harvest.LoadSources(path)
	if err != nil {
		return err
	}

	mode, err := ricgraph.ParseMode(cmd.String("mode"))
	if err != nil {
		return err
	}

	var st store.NodeStore
	var locks *leaselock.Client
	if cmd.Bool("dry-run") {
		st = mem.New()
	} else {
		st, err = openStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer st.Close(context.Background())
		locks = leaselock.New(st)
	}

	resolver, err := ricgraph.NewResolver(ricgraph.NewResolverParams{
		Store: st,
		Policy: ricgraph.Policy{
			Mode:               mode,
			ReviewNameVariants: cmd.Int("review-name-variants"),
		},
	})
	if err != nil {
		return err
	}
	runner, err := harvest.NewRunner(harvest.NewRunnerParams{
		Resolver:      resolver,
		Locks:         locks,
		ParallelParse: cmd.Int("parallel-parse"),
	})
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx, set)
	if err != nil {
		return err
	}
	fmt.Printf("harvested %d records from %d sources: %d admitted, %d rejected, %d flagged, %d invalid\n",
		report.Records, report.Sources, report.Admitted, report.Rejected, report.Flagged, report.Invalid)
	return nil
}
