// Package som implements a Self-Organising Map from first principles: a
// 2D grid of reference vectors trained by competitive learning, plus a
// Recommender that maps trained cells back onto catalog entities for the
// similarity endpoints. Transliterated from
// src/clusterer/SOM.cpp and src/libs/som/include/som/Network.hpp — no
// library in the retrieved pack implements a SOM or a comparable
// vector-quantization primitive, so this package is pure math/sort stdlib.
package som

import (
	"math"
	"math/rand"
	"sort"
)

// InputVector is one sample or reference vector: one dimension per cluster
// a track may belong to, each coordinate either 0/1 (membership) or a
// normalized weight.
type InputVector []float64

// Position addresses one cell of the reference-vector grid.
type Position struct {
	X, Y int
}

// Progress describes how far into training the network currently is,
// handed to the pluggable learning-factor/neighbourhood functions.
type Progress struct {
	Iteration int
	IterationCount int
}

// DistanceFunc scores dissimilarity between two vectors under a per-
// dimension weight vector.
type DistanceFunc func(a, b, weights InputVector) float64

// LearningFactorFunc shrinks the update step as training progresses.
type LearningFactorFunc func(p Progress) float64

// NeighbourhoodFunc shrinks a cell's influence the farther it sits from the
// best-matching unit, in grid-distance terms.
type NeighbourhoodFunc func(norm float64, p Progress) float64

// EuclidianSquareDistance is Network's default DistanceFunc, transliterated
// from SOM.cpp's euclidianSquareDistance.
func EuclidianSquareDistance(a, b, weights InputVector) float64 {
	var res float64
	for i := range a {
		d := a[i] - b[i]
		res += d * d * weights[i]
	}
	return res
}

// DefaultLearningFactor is Network's default LearningFactorFunc,
// transliterated from SOM.cpp's defaultLearningFactor.
func DefaultLearningFactor(p Progress) float64 {
	return math.Exp(-(float64(p.Iteration+1) / float64(p.IterationCount)))
}

// DefaultNeighbourhoodFunc is Network's default NeighbourhoodFunc,
// transliterated from SOM.cpp's sigmaFunc/defaultNeighborhoodFunc.
func DefaultNeighbourhoodFunc(norm float64, p Progress) float64 {
	const sigma0 = 1.0
	sigma := sigma0 * math.Exp(-(float64(p.Iteration+1) / float64(p.IterationCount)))
	return math.Exp(-(norm * norm) / (2 * sigma * sigma))
}

// Network is a width x height grid of reference vectors, trained by
// competitive learning against a set of input samples.
type Network struct {
	width, height int
	inputDimCount int
	weights InputVector
	refVectors []InputVector // row-major, index = y*width + x

	distanceFunc DistanceFunc
	learningFactorFunc LearningFactorFunc
	neighbourhoodFunc NeighbourhoodFunc

	rng *rand.Rand
}

// NewNetwork builds a width x height network over inputDimCount-dimensional
// vectors, seeding every reference vector with rng-drawn values in [0, 1)
// (SOM.cpp's constructor).
func NewNetwork(width, height, inputDimCount int, rng *rand.Rand) *Network {
	n := &Network{
		width: width,
		height: height,
		inputDimCount: inputDimCount,
		weights: make(InputVector, inputDimCount),
		refVectors: make([]InputVector, width*height),
		distanceFunc: EuclidianSquareDistance,
		learningFactorFunc: DefaultLearningFactor,
		neighbourhoodFunc: DefaultNeighbourhoodFunc,
		rng: rng,
	}
	for i := range n.weights {
		n.weights[i] = 1
	}
	for i := range n.refVectors {
		v := make(InputVector, inputDimCount)
		for d := range v {
			v[d] = rng.Float64
		}
		n.refVectors[i] = v
	}
	return n
}

func (n *Network) Width int { return n.width }
func (n *Network) Height int { return n.height }

// SetDistanceFunc overrides the default euclidian-square distance metric.
func (n *Network) SetDistanceFunc(f DistanceFunc) { n.distanceFunc = f }

// SetLearningFactorFunc overrides the default exponential-decay schedule.
func (n *Network) SetLearningFactorFunc(f LearningFactorFunc) { n.learningFactorFunc = f }

// SetNeighbourhoodFunc overrides the default Gaussian neighbourhood.
func (n *Network) SetNeighbourhoodFunc(f NeighbourhoodFunc) { n.neighbourhoodFunc = f }

func (n *Network) at(p Position) InputVector { return n.refVectors[p.Y*n.width+p.X] }

// RefVector exposes the trained vector at a grid cell (used by tests and by
// dump/debug tooling).
func (n *Network) RefVector(p Position) InputVector { return n.at(p) }

// ClosestPosition returns the best-matching-unit cell for data under the
// network's current DistanceFunc.
func (n *Network) ClosestPosition(data InputVector) Position {
	best := Position{0, 0}
	bestDist := math.Inf(1)
	for y := 0; y < n.height; y++ {
		for x := 0; x < n.width; x++ {
			p := Position{x, y}
			d := n.distanceFunc(n.at(p), data, n.weights)
			if d < bestDist {
				bestDist = d
				best = p
			}
		}
	}
	return best
}

// ClassifyN returns up to count grid cells ordered by increasing distance
// from data's best-matching unit, transliterated from SOM.cpp's
// Network::classify(data, size) overload.
func (n *Network) ClassifyN(data InputVector, count int) []Position {
	closest := n.at(n.ClosestPosition(data))

	type entry struct {
		pos Position
		dist float64
	}
	entries := make([]entry, 0, n.width*n.height)
	for y := 0; y < n.height; y++ {
		for x := 0; x < n.width; x++ {
			p := Position{x, y}
			entries = append(entries, entry{pos: p, dist: n.distanceFunc(n.at(p), closest, n.weights)})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].dist < entries[j].dist })

	if count > len(entries) {
		count = len(entries)
	}
	out := make([]Position, count)
	for i := 0; i < count; i++ {
		out[i] = entries[i].pos
	}
	return out
}

func coordsNorm(a, b Position) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

func (n *Network) updateRefVectors(closest Position, input InputVector, p Progress) {
	lf := n.learningFactorFunc(p)
	for y := 0; y < n.height; y++ {
		for x := 0; x < n.width; x++ {
			pos := Position{x, y}
			ref := n.at(pos)
			dist := coordsNorm(pos, closest)
			nb := n.neighbourhoodFunc(dist, p)
			factor := lf * nb
			for d := range ref {
				ref[d] += (input[d] - ref[d]) * factor
			}
		}
	}
}

// Train runs nbIterations competitive-learning passes over dataSamples,
// shuffling sample order every iteration (SOM.cpp's Network::train).
// progress, if non-nil, is invoked after every sample.
func (n *Network) Train(dataSamples []InputVector, nbIterations int, progress func(Progress)) {
	order := make([]int, len(dataSamples))
	for i := range order {
		order[i] = i
	}

	for iter := 0; iter < nbIterations; iter++ {
		n.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		p := Progress{Iteration: iter, IterationCount: nbIterations}
		for _, idx := range order {
			input := dataSamples[idx]
			closest := n.ClosestPosition(input)
			n.updateRefVectors(closest, input, p)
			if progress != nil {
				progress(p)
			}
		}
	}
}

// RefVectorsDistanceMean averages the distance between every pair of
// adjacent (x, y)/(x+1, y) and (x, y)/(x, y+1) reference vectors, a coarse measure of how
// "spread out" the trained map is.
func (n *Network) RefVectorsDistanceMean float64 {
	dists := n.adjacentDistances
	if len(dists) == 0 {
		return 0
	}
	var sum float64
	for _, d := range dists {
		sum += d
	}
	return sum / float64(len(dists))
}

// RefVectorsDistanceMedian is RefVectorsDistanceMean's median counterpart.
func (n *Network) RefVectorsDistanceMedian float64 {
	dists := n.adjacentDistances
	if len(dists) == 0 {
		return 0
	}
	sort.Float64s(dists)
	mid := len(dists) / 2
	if len(dists)%2 == 0 {
		return (dists[mid-1] + dists[mid]) / 2
	}
	return dists[mid]
}

func (n *Network) adjacentDistances []float64 {
	var out []float64
	for y := 0; y < n.height; y++ {
		for x := 0; x < n.width; x++ {
			if x+1 < n.width {
				out = append(out, math.Sqrt(n.distanceFunc(n.at(Position{x, y}), n.at(Position{x + 1, y}), n.weights)))
			}
			if y+1 < n.height {
				out = append(out, math.Sqrt(n.distanceFunc(n.at(Position{x, y}), n.at(Position{x, y + 1}), n.weights)))
			}
		}
	}
	return out
}
