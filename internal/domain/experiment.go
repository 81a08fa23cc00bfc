package domain

import (
	"fmt"
	"time"
)

// ExperimentStatus is the lifecycle state of an experiment.
type ExperimentStatus string

const (
	StatusRunning   ExperimentStatus = "running"
	StatusCompleted ExperimentStatus = "completed"
	StatusFailed    ExperimentStatus = "failed"
	StatusCancelled ExperimentStatus = "cancelled"
)

// ParseExperimentStatus validates a terminal or running status name.
func ParseExperimentStatus(s string) (ExperimentStatus, error) {
	switch st := ExperimentStatus(s); st {
	case StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown experiment status %q", s)
	}
}

// IsTerminal reports whether the status ends an experiment.
func (s ExperimentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ExperimentRecord is one run of a pipeline together with its snapshots.
type ExperimentRecord struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	Tags           []string         `json:"tags,omitempty"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        *time.Time       `json:"end_time"`
	PipelineType   string           `json:"pipeline_type"`
	PipelineConfig map[string]any   `json:"pipeline_config"`
	InitialInput   string           `json:"initial_input"`
	Status         ExperimentStatus `json:"status"`
	Error          string           `json:"error,omitempty"`
	Metrics        map[string]any   `json:"metrics"`
	Snapshots      []Snapshot       `json:"snapshots"`
}

// IsRunning reports whether the experiment has not ended.
func (e *ExperimentRecord) IsRunning() bool {
	return e.Status == StatusRunning
}

// Duration returns the elapsed run time, measured to now while running.
func (e *ExperimentRecord) Duration(now time.Time) time.Duration {
	if e.EndTime != nil {
		return e.EndTime.Sub(e.StartTime)
	}
	return now.Sub(e.StartTime)
}

// LastSnapshot returns the most recent snapshot or nil.
func (e *ExperimentRecord) LastSnapshot() *Snapshot {
	if len(e.Snapshots) == 0 {
		return nil
	}
	return &e.Snapshots[len(e.Snapshots)-1]
}

// AppendSnapshot adds s, assigning the next sequence number. A timestamp
// earlier than the previous snapshot is clamped so capture order holds.
func (e *ExperimentRecord) AppendSnapshot(s Snapshot) Snapshot {
	if last := e.LastSnapshot(); last != nil {
		s.Sequence = last.Sequence + 1
		if s.Timestamp.Before(last.Timestamp) {
			s.Timestamp = last.Timestamp
		}
	} else {
		s.Sequence = 1
	}
	e.Snapshots = append(e.Snapshots, s)
	return s
}

// Clone returns a copy safe to hand out while the original keeps changing.
func (e *ExperimentRecord) Clone() *ExperimentRecord {
	if e == nil {
		return nil
	}
	out := *e
	out.Tags = append([]string(nil), e.Tags...)
	out.PipelineConfig = cloneAnyMap(e.PipelineConfig)
	out.Metrics = cloneAnyMap(e.Metrics)
	if e.EndTime != nil {
		t := *e.EndTime
		out.EndTime = &t
	}
	out.Snapshots = make([]Snapshot, len(e.Snapshots))
	for i, s := range e.Snapshots {
		out.Snapshots[i] = s.Clone()
	}
	return &out
}
