package levels

import (
	"math"
	"sort"

	"github.com/samber/lo"
)

const (
	// NoiseLabel marks a price that belongs to no dense cluster.
	NoiseLabel = -1
	// minSamples is the DBSCAN density threshold, the point itself included.
	minSamples = 2
)

// ClusterPrices runs one-dimensional DBSCAN (min_samples=2) over prices with
// radius eps = |ref|*epsFrac. Labels are dense cluster ids numbered by first
// appearance in prices, or NoiseLabel.
//
// With min_samples=2 every point that has a neighbour within eps is a core
// point, so density reachability in one dimension is exactly the set of
// contiguous runs of sorted prices whose neighbouring gaps are <= eps. Runs of
// one point are noise.
func ClusterPrices(prices []float64, ref, epsFrac float64) []int {
	labels := make([]int, len(prices))
	if len(prices) == 0 {
		return labels
	}
	eps := math.Abs(ref) * epsFrac

	order := make([]int, len(prices))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return prices[order[a]] < prices[order[b]] })

	// runID[i] is the run index of prices[i] in sorted order.
	runID := make([]int, len(prices))
	runSize := []int{1}
	runID[order[0]] = 0
	for k := 1; k < len(order); k++ {
		if prices[order[k]]-prices[order[k-1]] <= eps {
			runSize[len(runSize)-1]++
		} else {
			runSize = append(runSize, 1)
		}
		runID[order[k]] = len(runSize) - 1
	}

	next := 0
	assigned := make(map[int]int, len(runSize))
	for i := range prices {
		r := runID[i]
		if runSize[r] < minSamples {
			labels[i] = NoiseLabel
			continue
		}
		l, ok := assigned[r]
		if !ok {
			l = next
			assigned[r] = l
			next++
		}
		labels[i] = l
	}
	return labels
}

// ClusterID identifies a cluster: either a dense cluster label or the index of
// a noise candidate that forms its own singleton cluster.
type ClusterID struct {
	Label  int
	Noise  bool
	Member int
}

func denseID(label int) ClusterID { return ClusterID{Label: label} }

func noiseID(member int) ClusterID {
	return ClusterID{Label: NoiseLabel, Noise: true, Member: member}
}

// Cluster is a group of candidates sharing a price neighbourhood.
type Cluster struct {
	ID      ClusterID
	Members []Candidate
}

// AvgPrice is the unweighted mean member price.
func (c Cluster) AvgPrice() float64 {
	if len(c.Members) == 0 {
		return 0
	}
	return lo.SumBy(c.Members, func(m Candidate) float64 { return m.Price }) / float64(len(c.Members))
}

func (c Cluster) TouchCount() int { return len(c.Members) }

// Scales counts the distinct window sizes among members.
func (c Cluster) Scales() int {
	return len(lo.Uniq(lo.Map(c.Members, func(m Candidate, _ int) int { return m.Scale })))
}

// LatestIndex is the most recent member bar index.
func (c Cluster) LatestIndex() int {
	return lo.MaxBy(c.Members, func(a, b Candidate) bool { return a.Index > b.Index }).Index
}

// GroupCandidates clusters candidate prices around ref. Every candidate lands in
// exactly one cluster; noise points become singletons. Clusters are ordered by
// the first candidate that belongs to them.
func (c Config) GroupCandidates(cands []Candidate, ref float64) []Cluster {
	if len(cands) == 0 {
		return nil
	}
	labels := ClusterPrices(lo.Map(cands, func(m Candidate, _ int) float64 { return m.Price }), ref, c.ClusterEps)

	var out []Cluster
	pos := make(map[int]int)
	for i, l := range labels {
		if l == NoiseLabel {
			out = append(out, Cluster{ID: noiseID(i), Members: []Candidate{cands[i]}})
			continue
		}
		p, ok := pos[l]
		if !ok {
			p = len(out)
			pos[l] = p
			out = append(out, Cluster{ID: denseID(l)})
		}
		out[p].Members = append(out[p].Members, cands[i])
	}
	return out
}
