package formatter

import (
	"github.com/bytedance/sonic"

	"github.com/evetools/fleetmeter/internal/core/model"
)

// snapshot is the JSON export shape: one sample plus the source states
// it was computed from.
type snapshot struct {
	Sample  model.WindowSample   `json:"sample"`
	Sources []model.SourceStatus `json:"sources,omitempty"`
}

// JSON serializes a sample (and optional source statuses) for piping
// into other tools, one object per line.
func JSON(sample model.WindowSample, statuses []model.SourceStatus) (string, error) {
	data, err := sonic.Marshal(snapshot{Sample: sample, Sources: statuses})
	if err != nil {
		return "", err
	}
	return string(data), nil
}
