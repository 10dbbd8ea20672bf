package dataset

import (
	"math/rand"
	"testing"
)

func TestSplit(t *testing.T) {
	t.Parallel()

	obs := ObservationSet{
		{Ndfa: 10, Balance: -80},
		{Ndfa: 55, Balance: 5},
		{Ndfa: 90, Balance: 60},
	}
	x, y := obs.Split()
	if len(x) != 3 || len(y) != 3 {
		t.Fatalf("got %d/%d values, want 3/3", len(x), len(y))
	}
	for i, o := range obs {
		if x[i] != o.Ndfa || y[i] != o.Balance {
			t.Errorf("index %d: (%g, %g), want (%g, %g)", i, x[i], y[i], o.Ndfa, o.Balance)
		}
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	obs := make(ObservationSet, 20)
	for i := range obs {
		obs[i] = Observation{Ndfa: float64(i), Balance: float64(2 * i)}
	}

	first := obs.Resample(rand.New(rand.NewSource(79)))
	if len(first) != len(obs) {
		t.Fatalf("resample length = %d, want %d", len(first), len(obs))
	}

	// Every drawn observation must come from the source set, with the pair
	// structure intact.
	for i, o := range first {
		if o.Balance != 2*o.Ndfa {
			t.Errorf("index %d: drawn pair (%g, %g) not from source", i, o.Ndfa, o.Balance)
		}
	}

	// Same seed reproduces the draw exactly.
	second := obs.Resample(rand.New(rand.NewSource(79)))
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("index %d differs across identically seeded resamples", i)
		}
	}
}

func TestTableColumn(t *testing.T) {
	t.Parallel()

	table := &Table{Rows: []Row{
		{Ndfa: 40, Partial: -10, Total: 25},
		{Ndfa: 70, Partial: 15, Total: 55},
	}}

	partial, err := table.Column(PartialBalance)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if partial[0].Balance != -10 || partial[1].Balance != 15 {
		t.Errorf("partial column = %v", partial)
	}

	total, err := table.Column(TotalBalance)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total[0].Balance != 25 || total[1].Balance != 55 {
		t.Errorf("total column = %v", total)
	}
	if total[0].Ndfa != 40 || total[1].Ndfa != 70 {
		t.Errorf("total column predictors = %v", total)
	}

	if _, err := table.Column(BalanceKind("net")); err == nil {
		t.Error("expected error for unknown balance kind")
	}
}
