package internaldefs

import (
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
)

func TestEveryMetricHasADef(t *testing.T) {
	covered := map[goIdentity.MetricID]bool{}
	for _, d := range CounterDefs {
		covered[d.ID] = true
	}
	for _, d := range HistogramDefs {
		covered[d.ID] = true
	}

	for _, id := range goIdentity.MetricIDs() {
		if !covered[id] {
			t.Fatalf("metric %s has no exporter definition", id)
		}
	}
}

func TestBoundsMatchEngine(t *testing.T) {
	if len(HistogramBounds) != len(goIdentity.HistogramBounds) {
		t.Fatalf("bounds length mismatch")
	}
	for i, ms := range goIdentity.HistogramBounds {
		if HistogramBounds[i]*1000 != ms {
			t.Fatalf("bound %d: %v s vs %v ms", i, HistogramBounds[i], ms)
		}
	}
	if len(HistogramBoundSuffix) != goIdentity.HistogramBucketCount {
		t.Fatal("suffix count must equal bucket count")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 0, 3}))
	want := [goIdentity.HistogramBucketCount]uint64{1, 3, 3, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}
