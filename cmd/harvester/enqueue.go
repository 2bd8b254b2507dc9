package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/UtrechtUniversity/ricgraph-go/internal/queue"
)

func enqueueCommand() *cli.Command {
	return &cli.Command{
		Name:      "enqueue",
		Usage:     "Enqueue a harvest or empty job for the worker",
		ArgsUsage: "<sources.yaml>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "empty",
				Usage: "enqueue an empty-graph job instead of a harvest",
			},
			&cli.IntFlag{
				Name:  "chunk",
				Usage: "chunk size for the empty job",
			},
		},
		Action: runEnqueue,
	}
}

func runEnqueue(ctx context.Context, cmd *cli.Command) error {
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch); err != nil {
		return err
	}

	if cmd.Bool("empty") {
		payload, err := json.Marshal(queue.EmptyJob{Chunk: cmd.Int("chunk")})
		if err != nil {
			return err
		}
		if err := queue.PublishFIFO(ch, queue.EmptyQueue, payload); err != nil {
			return err
		}
		fmt.Println("empty job enqueued")
		return nil
	}

	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("missing source definition file")
	}
	payload, err := json.Marshal(queue.HarvestJob{Sources: path})
	if err != nil {
		return err
	}
	if err := queue.PublishFIFO(ch, queue.HarvestQueue, payload); err != nil {
		return err
	}
	fmt.Println("harvest job enqueued")
	return nil
}
