package queue

import (
	"context"
	"fmt"

	"github.com/UtrechtUniversity/ricgraph-go/internal/harvest"
	"github.com/UtrechtUniversity/ricgraph-go/internal/util"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/leaselock"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/ricgraph"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/store"
)

// ResolverFromEnv builds a resolver with the policy configured through the
// environment. The mode flag is read once here and injected; nothing deeper
// consults configuration.
func ResolverFromEnv(st store.NodeStore) (*ricgraph.Resolver, error) {
	mode, err := ricgraph.ParseMode(util.GetEnv("RICGRAPH_NODEADD_MODE"))
	if err != nil {
		return nil, err
	}
	return ricgraph.NewResolver(ricgraph.NewResolverParams{
		Store: st,
		Policy: ricgraph.Policy{
			Mode:               mode,
			ReviewNameVariants: int(util.GetEnvNumeric("RICGRAPH_REVIEW_NAME_VARIANTS", 0)),
		},
		EmptyChunkSize: int(util.GetEnvNumeric("RICGRAPH_EMPTY_CHUNK_SIZE", 10000)),
	})
}

// ProcessHarvestMessage runs the harvest described by the job payload.
func ProcessHarvestMessage(ctx context.Context, st store.NodeStore, body string) error {
	job, err := ParseHarvestJob(body)
	if err != nil {
		return err
	}

	set, err := harvest.LoadSources(job.Sources)
	if err != nil {
		return err
	}

	resolver, err := ResolverFromEnv(st)
	if err != nil {
		return err
	}
	runner, err := harvest.NewRunner(harvest.NewRunnerParams{
		Resolver:      resolver,
		Locks:         leaselock.New(st),
		ParallelParse: int(util.GetEnvNumeric("HARVEST_PARALLEL_PARSE", 4)),
	})
	if err != nil {
		return err
	}

	if _, err := runner.Run(ctx, set); err != nil {
		return fmt.Errorf("harvest job failed: %w", err)
	}
	return nil
}
