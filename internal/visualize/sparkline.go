package visualize

import "github.com/emiliopalmerini/amadeus/internal/domain"

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders values as a row of block characters scaled between
// their minimum and maximum. Equal values render mid-height.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	out := make([]rune, len(values))
	for i, v := range values {
		if hi == lo {
			out[i] = sparkBlocks[len(sparkBlocks)/2]
			continue
		}
		idx := int((v - lo) / (hi - lo) * float64(len(sparkBlocks)-1))
		out[i] = sparkBlocks[min(idx, len(sparkBlocks)-1)]
	}
	return string(out)
}

// MetricSeries returns the values of metric across snapshots in order,
// skipping snapshots that lack it.
func MetricSeries(snaps []domain.Snapshot, metric string) []float64 {
	var out []float64
	for _, s := range snaps {
		if v, ok := s.Metrics[metric]; ok {
			out = append(out, v)
		}
	}
	return out
}
