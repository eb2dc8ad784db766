// CLAUDE:SUMMARY Job specifications — decodes queued job payloads into typed batch descriptions
package automation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/stratforge/internal/strategy"
)

// ErrUnsupportedJobType flags a queued job this worker cannot execute.
var ErrUnsupportedJobType = errors.New("unsupported job type")

// JobTypeStrategyBatch generates variants from specs and remediates each one.
const JobTypeStrategyBatch = "strategy_batch"

// BatchJob is the decoded payload of a strategy_batch job.
type BatchJob struct {
	Specs         []*strategy.Spec `json:"specs"`
	DataPath      string           `json:"data_path"`
	MaxIterations int              `json:"max_iterations,omitempty"`
	Policy        string           `json:"policy,omitempty"`
}

// ParseJobSpec decodes a job specification by type. Defaults are applied
// here so workers see a fully populated job.
func ParseJobSpec(jobType, specification string) (*BatchJob, error) {
	if jobType != JobTypeStrategyBatch {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedJobType, jobType)
	}

	batch := &BatchJob{}
	if err := json.Unmarshal([]byte(specification), batch); err != nil {
		return nil, fmt.Errorf("decoding %s specification: %w", jobType, err)
	}
	if batch.DataPath == "" {
		return nil, errors.New("job specification missing data_path")
	}
	if len(batch.Specs) == 0 {
		return nil, errors.New("job specification has no specs")
	}
	for i, spec := range batch.Specs {
		if spec.BaseName == "" || spec.StrategyType == "" || spec.TemplatePath == "" {
			return nil, fmt.Errorf("spec %d missing base_name, strategy_type, or template_path", i)
		}
		if spec.BaseParameters == nil {
			spec.BaseParameters = map[string]any{}
		}
	}
	if batch.MaxIterations <= 0 {
		batch.MaxIterations = 3
	}
	if batch.Policy == "" {
		batch.Policy = "grid"
	}
	return batch, nil
}
