package estimate

import (
	"math/rand"

	"nbalance/internal/dataset"
)

// synthObs simulates n observations from balance = beta1*(ndfa - theta) +
// Normal(0, sigma) noise with Ndfa spread uniformly over (0, 100).
func synthObs(n int, theta, beta1, sigma float64, seed int64) dataset.ObservationSet {
	rng := rand.New(rand.NewSource(seed))
	obs := make(dataset.ObservationSet, n)
	for i := range obs {
		x := rng.Float64() * 100
		obs[i] = dataset.Observation{
			Ndfa:    x,
			Balance: beta1*(x-theta) + sigma*rng.NormFloat64(),
		}
	}
	return obs
}

func constantPredictorObs(n int) dataset.ObservationSet {
	obs := make(dataset.ObservationSet, n)
	for i := range obs {
		obs[i] = dataset.Observation{Ndfa: 42, Balance: float64(i)}
	}
	return obs
}
