package estimate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"nbalance/internal/dataset"
	"nbalance/internal/regress"
)

// DegeneratePolicy decides what happens when a resample cannot be refitted
// (for example when the draw repeats a single row enough times to flatten
// the predictor column).
type DegeneratePolicy string

const (
	// AbortOnDegenerate propagates the first degenerate refit and kills the
	// whole run.
	AbortOnDegenerate DegeneratePolicy = "abort"
	// RetryOnDegenerate discards the degenerate draw and redraws, up to
	// maxRetriesPerResample attempts per slot.
	RetryOnDegenerate DegeneratePolicy = "retry"
)

const maxRetriesPerResample = 100

// BootstrapOptions configures the case bootstrap.
type BootstrapOptions struct {
	Resamples int              // default 10000
	Seed      int64            // default 79
	Policy    DegeneratePolicy // default AbortOnDegenerate
	Workers   int              // default runtime.NumCPU()
}

func (o *BootstrapOptions) fillDefaults() {
	if o.Resamples <= 0 {
		o.Resamples = 10000
	}
	if o.Seed == 0 {
		o.Seed = 79
	}
	if o.Policy == "" {
		o.Policy = AbortOnDegenerate
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
}

// Bootstrap draws opts.Resamples case resamples with replacement, refits the
// regression on each and recomputes the break-even value, then reports the
// 2.5/50/97.5 empirical percentiles (percentile method, no bias correction
// or acceleration).
//
// Each resample slot gets its own seed derived from the master seed in slot
// order and results are aggregated by slot index, so a fixed seed and
// resample count reproduce the same distribution to floating-point
// precision regardless of worker scheduling.
func Bootstrap(ctx context.Context, obs dataset.ObservationSet, opts BootstrapOptions, tracker MetricsTracker) (*BootstrapEstimate, error) {
	tracker = orNop(tracker)
	start := time.Now()
	defer func() { tracker.StageDurationObserve("bootstrap", time.Since(start)) }()

	opts.fillDefaults()
	if len(obs) < 3 {
		return nil, &regress.DegenerateInputError{Reason: "need at least 3 observations", N: len(obs)}
	}

	master := rand.New(rand.NewSource(opts.Seed))
	seeds := make([]int64, opts.Resamples)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	thetas := make([]float64, opts.Resamples)
	errs := make([]error, opts.Resamples)
	discarded := make([]int, opts.Resamples)

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(opts.Workers)
	for w := 0; w < opts.Workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				if workerCtx.Err() != nil {
					return
				}
				theta, retries, err := resampleTheta(obs, seeds[i], opts.Policy)
				thetas[i] = theta
				errs[i] = err
				discarded[i] = retries
				if err != nil {
					cancel()
					return
				}
			}
		}()
	}

feed:
	for i := 0; i < opts.Resamples; i++ {
		select {
		case jobs <- i:
		case <-workerCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	totalDiscarded := 0
	for i := 0; i < opts.Resamples; i++ {
		if errs[i] != nil {
			return nil, fmt.Errorf("bootstrap resample %d: %w", i, errs[i])
		}
		totalDiscarded += discarded[i]
	}

	tracker.BootstrapResamplesAdd(opts.Resamples)
	for i := 0; i < totalDiscarded; i++ {
		tracker.DegenerateResamplesInc()
	}
	if totalDiscarded > 0 {
		log.Warn().
			Int("discarded", totalDiscarded).
			Msg("Bootstrap discarded degenerate resamples")
	}

	sorted := make([]float64, len(thetas))
	copy(sorted, thetas)
	sort.Float64s(sorted)

	return &BootstrapEstimate{
		Thetas:    thetas,
		Resamples: opts.Resamples,
		Discarded: totalDiscarded,
		Seed:      opts.Seed,
		Lower:     stat.Quantile(0.025, stat.LinInterp, sorted, nil),
		Median:    stat.Quantile(0.5, stat.LinInterp, sorted, nil),
		Upper:     stat.Quantile(0.975, stat.LinInterp, sorted, nil),
	}, nil
}

// resampleTheta draws one resample and refits. Under RetryOnDegenerate it
// keeps redrawing from the same per-slot RNG, which stays deterministic for
// a fixed seed.
func resampleTheta(obs dataset.ObservationSet, seed int64, policy DegeneratePolicy) (float64, int, error) {
	rng := rand.New(rand.NewSource(seed))

	attempts := 1
	if policy == RetryOnDegenerate {
		attempts = maxRetriesPerResample
	}

	var lastErr error
	for a := 0; a < attempts; a++ {
		sample := obs.Resample(rng)
		fit, err := regress.Fit(sample)
		if err == nil {
			theta, terr := fit.BreakEven()
			if terr == nil {
				return theta, a, nil
			}
			err = terr
		}

		var degen *regress.DegenerateInputError
		var zero *regress.ZeroSlopeError
		if !errors.As(err, &degen) && !errors.As(err, &zero) {
			return 0, a, err
		}
		lastErr = err
	}
	if policy == RetryOnDegenerate {
		return 0, attempts, fmt.Errorf("gave up after %d degenerate redraws: %w", attempts, lastErr)
	}
	return 0, 0, lastErr
}
