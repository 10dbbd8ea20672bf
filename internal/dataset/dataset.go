// Package dataset holds the in-memory observation table for the nitrogen
// balance analysis and the loaders that fill it from CSV files or HTTP
// sources. One row pairs an Ndfa measurement with the partial and total
// nitrogen balance of the same sample.
package dataset

import (
	"fmt"
	"math/rand"
)

// BalanceKind selects which nitrogen balance column an analysis runs on.
type BalanceKind string

const (
	PartialBalance BalanceKind = "partial"
	TotalBalance   BalanceKind = "total"
)

// Observation is a single (Ndfa, balance) pair.
type Observation struct {
	Ndfa    float64 // nitrogen derived from atmosphere, percent
	Balance float64 // nitrogen balance, kg/ha
}

// ObservationSet is an ordered collection of observations. Order carries no
// meaning for the fit; it only fixes the resampling sequence.
type ObservationSet []Observation

// Split returns the predictor and response columns as separate slices.
func (s ObservationSet) Split() (x, y []float64) {
	x = make([]float64, len(s))
	y = make([]float64, len(s))
	for i, o := range s {
		x[i] = o.Ndfa
		y[i] = o.Balance
	}
	return x, y
}

// Resample draws len(s) observations with replacement using rng.
func (s ObservationSet) Resample(rng *rand.Rand) ObservationSet {
	out := make(ObservationSet, len(s))
	for i := range out {
		out[i] = s[rng.Intn(len(s))]
	}
	return out
}

// Row is one parsed input record.
type Row struct {
	Ndfa    float64
	Partial float64
	Total   float64
}

// Table is the full parsed dataset with both balance columns.
type Table struct {
	Rows []Row
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Column projects the table onto one balance kind.
func (t *Table) Column(kind BalanceKind) (ObservationSet, error) {
	obs := make(ObservationSet, 0, len(t.Rows))
	for _, r := range t.Rows {
		switch kind {
		case PartialBalance:
			obs = append(obs, Observation{Ndfa: r.Ndfa, Balance: r.Partial})
		case TotalBalance:
			obs = append(obs, Observation{Ndfa: r.Ndfa, Balance: r.Total})
		default:
			return nil, fmt.Errorf("unknown balance kind %q", kind)
		}
	}
	return obs, nil
}
