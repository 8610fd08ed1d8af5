package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/arnavshah/mass-scheduler-go/pkg/apperrors"
	"github.com/arnavshah/mass-scheduler-go/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Options configures the Optimizer
type Options struct {
	Trials      int
	Workers     int
	Seed        int64
	MaxRestarts int
	Weights     Weights
	Logger      *logger.Logger
	Observer    Observer
}

// Optimizer runs independent trials and keeps the fairest complete plan
type Optimizer struct {
	opts Options
	log  *logger.Logger
	obs  Observer
}

// bestSoFar is the only state trials share
type bestSoFar struct {
	mu     sync.Mutex
	result *Result
}

// NewOptimizer fills unset options with defaults
func NewOptimizer(opts Options) *Optimizer {
	if opts.Trials <= 0 {
		opts.Trials = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Workers > opts.Trials {
		opts.Workers = opts.Trials
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	if opts.Logger == nil {
		opts.Logger = logger.New()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Optimizer{opts: opts, log: opts.Logger, obs: opts.Observer}
}

// Optimize spends the whole trial budget. Each worker owns a private clone of the problem,
// the input problem itself is never mutated. Trial t is seeded with Seed+t, so the outcome
// does not depend on how trials are spread over workers.
func (o *Optimizer) Optimize(ctx context.Context, p *Problem) (*Result, error) {
	pre, err := ResolvePreAssignments(p)
	if err != nil {
		return nil, err
	}
	if err := CheckStructure(p, pre); err != nil {
		return nil, err
	}

	var (
		best      bestSoFar
		statsMu   sync.Mutex
		lastFail  error
		completed int
	)

	g, ctx := errgroup.WithContext(ctx)
	trials := make(chan int)
	g.Go(func() error {
		defer close(trials)
		for t := 0; t < o.opts.Trials; t++ {
			select {
			case trials <- t:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < o.opts.Workers; w++ {
		g.Go(func() error {
			local := p.Clone()
			rng := rand.New(rand.NewSource(o.opts.Seed))
			engine := newEngine(local, pre, EngineOptions{
				Rand:        rng,
				MaxRestarts: o.opts.MaxRestarts,
				Logger:      o.log,
				Observer:    o.obs,
			})

			for t := range trials {
				rng.Seed(o.opts.Seed + int64(t))
				if err := engine.Run(ctx); err != nil {
					if !apperrors.IsInfeasible(err) {
						return err
					}
					o.obs.TrialFinished(false, 0)
					o.log.Debugf("Trial %d failed: %v", t, err)
					statsMu.Lock()
					lastFail = err
					statsMu.Unlock()
					continue
				}

				fit := Score(local.Registry, o.opts.Weights)
				o.obs.TrialFinished(true, fit.Score)
				o.log.Debugf("Trial %d scored %.4f after %d restarts", t, fit.Score, engine.Restarts())
				best.offer(t, fit, local, engine.Restarts())
				statsMu.Lock()
				completed++
				statsMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if best.result == nil {
		if lastFail == nil {
			return nil, apperrors.ErrNoSuccessfulTrial
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrNoSuccessfulTrial, lastFail)
	}
	res := best.result
	res.Trials = completed
	o.log.Infof("Best plan from trial %d of %d: score %.4f (load %.4f, gaps %.4f)",
		res.Trial, o.opts.Trials, res.Fitness.Score, res.Fitness.LoadVariance, res.Fitness.GapVariance)
	return res, nil
}

// offer keeps a snapshot of the trial if it beats the best so far. Ties go to the lower trial.
func (b *bestSoFar) offer(trial int, fit Fitness, p *Problem, restarts int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var history []float64
	if b.result != nil {
		if fit.Score > b.result.Fitness.Score {
			return
		}
		if fit.Score == b.result.Fitness.Score && trial > b.result.Trial {
			return
		}
		history = b.result.History
	}
	b.result = &Result{
		Registry: p.Registry.Clone(),
		Calendar: p.Calendar.Clone(),
		Fitness:  fit,
		Trial:    trial,
		Restarts: restarts,
		History:  append(history, fit.Score),
	}
}
