// Package queue carries blur jobs and their results on Redis streams.
//
// Producers append jobs to the jobs stream; workers read them through a
// consumer group, run the blur and append a Result to the results stream.
// A job is acknowledged once its outcome is final. Jobs that hit a transient
// device fault stay pending and can be claimed by another worker, up to a
// delivery limit.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/blur/internal/filter"
)

// Stream and group names.
const (
	JobsStream    = "gblur:jobs"
	ResultsStream = "gblur:results"
	WorkerGroup   = "gblur-workers"
)

// ErrInvalidJob is returned for a job that can never succeed.
var ErrInvalidJob = errors.New("queue: invalid job")

// Job asks a worker to blur one file into another.
type Job struct {
	ID     string  `json:"id"`
	Input  string  `json:"input"`
	Output string  `json:"output"`
	Sigma  float64 `json:"sigma"`

	SubmittedAt time.Time `json:"submitted_at"`
}

// Validate checks the fields a worker needs before touching the device.
func (j *Job) Validate() error {
	switch {
	case j.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidJob)
	case j.Input == "":
		return fmt.Errorf("%w: %s: missing input path", ErrInvalidJob, j.ID)
	case j.Output == "":
		return fmt.Errorf("%w: %s: missing output path", ErrInvalidJob, j.ID)
	case math.IsNaN(j.Sigma) || j.Sigma < 1 || j.Sigma > filter.MaxSigma:
		return fmt.Errorf("%w: %s: sigma %v must be in [1, %d]", ErrInvalidJob, j.ID, j.Sigma, filter.MaxSigma)
	}
	return nil
}

// Result records the outcome of a job.
type Result struct {
	JobID    string        `json:"job_id"`
	Worker   string        `json:"worker"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Device   string        `json:"device"`
	Elapsed  time.Duration `json:"elapsed"`
	Finished time.Time     `json:"finished"`
}

// encode marshals v for the "data" field of a stream entry.
func encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("queue: encode %T: %w", v, err)
	}
	return b, nil
}

// decode unmarshals the "data" field of a stream entry into v.
func decode(data any, v any) error {
	if data == nil {
		return fmt.Errorf("%w: entry has no data field", ErrInvalidJob)
	}
	if err := json.Unmarshal(bytesFromInterface(data), v); err != nil {
		return fmt.Errorf("%w: decode %T: %w", ErrInvalidJob, v, err)
	}
	return nil
}

// bytesFromInterface normalizes a stream value. go-redis returns strings;
// other types are re-marshaled.
func bytesFromInterface(v any) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		b, _ := json.Marshal(t)
		return b
	}
}
