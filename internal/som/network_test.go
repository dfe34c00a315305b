package som

import (
	"math/rand"
	"testing"
)

func randomSamples(rng *rand.Rand, count, dim int) []InputVector {
	out := make([]InputVector, count)
	for i := range out {
		v := make(InputVector, dim)
		for d := range v {
			v[d] = rng.Float64()
		}
		out[i] = v
	}
	return out
}

func TestTrainingShrinksAverageDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	samples := randomSamples(rng, 200, 6)

	n := NewNetwork(4, 4, 6, rand.New(rand.NewSource(2)))
	before := n.RefVectorsDistanceMean()
	n.Train(samples, 15, nil)
	after := n.RefVectorsDistanceMean()

	if after >= before {
		t.Fatalf("expected training to shrink mean adjacent distance, before=%v after=%v", before, after)
	}
}

func TestClassifyIsStableAcrossRepeatedCalls(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	samples := randomSamples(rng, 100, 5)

	n := NewNetwork(3, 3, 5, rand.New(rand.NewSource(4)))
	n.Train(samples, 10, nil)

	data := samples[0]
	first := n.ClosestPosition(data)
	for i := 0; i < 5; i++ {
		if got := n.ClosestPosition(data); got != first {
			t.Fatalf("ClosestPosition unstable across repeated calls: %v != %v", got, first)
		}
	}
}

func TestClassifyNOrdersByIncreasingDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	samples := randomSamples(rng, 50, 4)

	n := NewNetwork(3, 3, 4, rand.New(rand.NewSource(6)))
	n.Train(samples, 5, nil)

	positions := n.ClassifyN(samples[0], 9)
	if len(positions) != 9 {
		t.Fatalf("expected all 9 cells, got %d", len(positions))
	}
	closest := n.at(n.ClosestPosition(samples[0]))
	last := -1.0
	for _, p := range positions {
		d := n.distanceFunc(n.at(p), closest, n.weights)
		if last >= 0 && d < last {
			t.Fatalf("ClassifyN not sorted by distance")
		}
		last = d
	}
}

func TestGridSizeHeuristic(t *testing.T) {
	if w, h := GridSize(0); w != 1 || h != 1 {
		t.Fatalf("GridSize(0) = %d,%d, want 1,1", w, h)
	}
	if w, h := GridSize(2000); w != 10 || h != 10 {
		t.Fatalf("GridSize(2000) = %d,%d, want 10,10", w, h)
	}
}
