package queue

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// HarvestJob asks the worker to run a harvest from a YAML source definition
// file reachable by the worker.
type HarvestJob struct {
	Sources string `json:"sources" validate:"required"`
}

// EmptyJob asks the worker to empty the graph before a fresh harvest.
// Chunk overrides the deletion chunk size when positive.
type EmptyJob struct {
	Chunk int `json:"chunk,omitempty" validate:"gte=0"`
}

var validate = validator.New()

// ParseHarvestJob decodes and validates a harvest job payload.
func ParseHarvestJob(body string) (*HarvestJob, error) {
	var job HarvestJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return nil, fmt.Errorf("malformed harvest job: %w", err)
	}
	if err := validate.Struct(&job); err != nil {
		return nil, fmt.Errorf("invalid harvest job: %w", err)
	}
	return &job, nil
}

// ParseEmptyJob decodes and validates an empty-graph job payload.
func ParseEmptyJob(body string) (*EmptyJob, error) {
	var job EmptyJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return nil, fmt.Errorf("malformed empty job: %w", err)
	}
	if err := validate.Struct(&job); err != nil {
		return nil, fmt.Errorf("invalid empty job: %w", err)
	}
	return &job, nil
}
