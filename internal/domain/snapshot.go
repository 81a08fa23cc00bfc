package domain

import "time"

// Snapshot is a point-in-time capture of pipeline state and metric values.
// When a compressor is configured State is nil and Payload holds the
// encoded state, tagged with Encoding.
type Snapshot struct {
	Sequence  int                `json:"sequence"`
	Timestamp time.Time          `json:"timestamp"`
	Step      string             `json:"step,omitempty"`
	State     *AgentState        `json:"state,omitempty"`
	Payload   []byte             `json:"payload,omitempty"`
	Encoding  string             `json:"encoding,omitempty"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Compressed reports whether the state is stored encoded.
func (s Snapshot) Compressed() bool {
	return s.Encoding != ""
}

func (s Snapshot) Clone() Snapshot {
	out := s
	if s.State != nil {
		out.State = s.State.Clone()
	}
	if s.Payload != nil {
		out.Payload = append([]byte(nil), s.Payload...)
	}
	if s.Metrics != nil {
		out.Metrics = make(map[string]float64, len(s.Metrics))
		for k, v := range s.Metrics {
			out.Metrics[k] = v
		}
	}
	return out
}
