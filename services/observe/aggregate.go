package observe

import (
	"sort"
	"time"
)

// EdgeKey identifies a directed dependency.
type EdgeKey struct {
	Source string
	Target string
}

// EdgeStats are the aggregate statistics of a group of calls.
type EdgeStats struct {
	Count            int64
	AvgLatencyMillis float64
	ErrorRate        float64
}

// Merge combines two independently computed groups as if they had been
// aggregated in one pass. It is commutative and associative up to floating
// point rounding.
func (s EdgeStats) Merge(o EdgeStats) EdgeStats {
	count := s.Count + o.Count
	if count == 0 {
		return EdgeStats{}
	}
	a, b := float64(s.Count), float64(o.Count)
	n := float64(count)
	return EdgeStats{
		Count:            count,
		AvgLatencyMillis: (s.AvgLatencyMillis*a + o.AvgLatencyMillis*b) / n,
		ErrorRate:        (s.ErrorRate*a + o.ErrorRate*b) / n,
	}
}

// accumulator sums calls exactly and derives the mean and ratio once.
type accumulator struct {
	count   int64
	latency time.Duration
	errors  int64
}

func (a *accumulator) add(latency time.Duration, isError bool) {
	a.count++
	a.latency += latency
	if isError {
		a.errors++
	}
}

func (a accumulator) stats() EdgeStats {
	if a.count == 0 {
		return EdgeStats{}
	}
	n := float64(a.count)
	return EdgeStats{
		Count:            a.count,
		AvgLatencyMillis: float64(a.latency) / float64(time.Millisecond) / n,
		ErrorRate:        float64(a.errors) / n,
	}
}

// Edges are aggregated dependencies keyed by endpoint pair.
type Edges map[EdgeKey]EdgeStats

// Aggregate groups observations by source and target.
func Aggregate(observations []Observation) Edges {
	acc := make(map[EdgeKey]*accumulator)
	for _, o := range observations {
		key := EdgeKey{Source: o.Source, Target: o.Target}
		a, ok := acc[key]
		if !ok {
			a = &accumulator{}
			acc[key] = a
		}
		a.add(o.Latency, o.IsError)
	}

	edges := make(Edges, len(acc))
	for key, a := range acc {
		edges[key] = a.stats()
	}
	return edges
}

// MergeEdges unions groupings produced separately. Pairs present in several
// inputs are combined with EdgeStats.Merge.
func MergeEdges(groups ...Edges) Edges {
	merged := make(Edges)
	for _, g := range groups {
		for key, stats := range g {
			if stats.Count == 0 {
				continue
			}
			merged[key] = merged[key].Merge(stats)
		}
	}
	return merged
}

// Sorted returns the edges ordered by source then target.
func (e Edges) Sorted() []ServiceEdge {
	out := make([]ServiceEdge, 0, len(e))
	for key, stats := range e {
		out = append(out, ServiceEdge{
			Source:           key.Source,
			Target:           key.Target,
			CallCount:        stats.Count,
			AvgLatencyMillis: stats.AvgLatencyMillis,
			ErrorRate:        stats.ErrorRate,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}
