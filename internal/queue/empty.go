package queue

import (
	"context"
	"fmt"

	"github.com/UtrechtUniversity/ricgraph-go/internal/harvest"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/leaselock"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/logger"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/ricgraph"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/store"
)

// ProcessEmptyMessage empties the graph in chunks, under the same lease the
// harvest runs take so an emptying cannot interleave with a running harvest.
func ProcessEmptyMessage(ctx context.Context, st store.NodeStore, body string) error {
	job, err := ParseEmptyJob(body)
	if err != nil {
		return err
	}

	params := ricgraph.NewResolverParams{Store: st}
	if job.Chunk > 0 {
		params.EmptyChunkSize = job.Chunk
	}
	resolver, err := ricgraph.NewResolver(params)
	if err != nil {
		return err
	}

	locks := leaselock.New(st)
	return locks.WithLease(ctx, harvest.LeaseKey, leaselock.Options{}, func(ctx context.Context) error {
		deleted, err := resolver.EmptyGraph(ctx)
		if err != nil {
			return fmt.Errorf("empty job failed: %w", err)
		}
		logger.Info("[Empty] Graph emptied", "nodes_deleted", deleted)
		return nil
	})
}
