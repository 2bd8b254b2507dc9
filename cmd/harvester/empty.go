package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/UtrechtUniversity/ricgraph-go/internal/harvest"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/leaselock"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/ricgraph"
)

func emptyCommand() *cli.Command {
	return &cli.Command{
		Name:  "empty",
		Usage: "Delete every node and edge, in bounded chunks",
		Flags: append(graphFlags(),
			&cli.IntFlag{
				Name:  "chunk",
				Usage: "nodes deleted per backend call",
				Value: 10000,
			},
		),
		Action: runEmpty,
	}
}

func runEmpty(ctx context.Context, cmd *cli.Command) error {
	st, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	resolver, err := ricgraph.NewResolver(ricgraph.NewResolverParams{
		Store:          st,
		EmptyChunkSize: cmd.Int("chunk"),
	})
	if err != nil {
		return err
	}

	locks := leaselock.New(st)
	return locks.WithLease(ctx, harvest.LeaseKey, leaselock.Options{}, func(ctx context.Context) error {
		deleted, err := resolver.EmptyGraph(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d nodes\n", deleted)
		return nil
	})
}
