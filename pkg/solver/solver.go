// Package solver plans a calendar as one constraint satisfaction problem instead of many
// randomized trials.
//
// Every (group, mass) pair a group may serve becomes a boolean variable of a pseudo-boolean
// model solved with gophersat. A cooldown forbids a group from serving again within the next N
// masses; when no plan exists, N is relaxed and the model is solved again.
package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/arnavshah/mass-scheduler-go/pkg/apperrors"
	"github.com/arnavshah/mass-scheduler-go/pkg/logger"
	"github.com/arnavshah/mass-scheduler-go/pkg/models"
	"github.com/arnavshah/mass-scheduler-go/pkg/scheduler"
)

// Observer is notified whenever the cooldown is relaxed
type Observer interface {
	Relaxation(cooldown int)
}

type nopObserver struct{}

func (nopObserver) Relaxation(int) {}

// Options configures the Solver
type Options struct {
	// InitialCooldown of 0 starts at the number of groups
	InitialCooldown int
	// Timeout bounds each solve attempt
	Timeout time.Duration
	// MaxPerPlan caps the services of every person and is never lifted.
	// 0 derives a softer cap from seats per person.
	MaxPerPlan     int
	MinIdentityCap int
	Weights        scheduler.Weights
	Logger         *logger.Logger
	Observer       Observer
}

// Solver is the constraint based planning strategy
type Solver struct {
	opts Options
	log  *logger.Logger
	obs  Observer
}

// New fills unset options with defaults
func New(opts Options) *Solver {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.MinIdentityCap <= 0 {
		opts.MinIdentityCap = 3
	}
	if opts.Weights == (scheduler.Weights{}) {
		opts.Weights = scheduler.DefaultWeights()
	}
	if opts.Logger == nil {
		opts.Logger = logger.New()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Solver{opts: opts, log: opts.Logger, obs: opts.Observer}
}

// Solve relaxes the cooldown from its initial value down to 0 until a plan is found. At 0 the
// derived caps are lifted as a last resort. The input problem is not mutated.
func (s *Solver) Solve(ctx context.Context, p *scheduler.Problem) (*scheduler.Result, error) {
	pre, err := scheduler.ResolvePreAssignments(p)
	if err != nil {
		return nil, err
	}
	if err := scheduler.CheckStructure(p, pre); err != nil {
		return nil, err
	}

	m := newModel(p, pre, s.opts)
	cooldown := s.opts.InitialCooldown
	if cooldown <= 0 {
		cooldown = len(p.Groups)
	}

	var chosen [][]int
	reason := "no cooldown tried"
	for ; cooldown >= 0; cooldown-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !m.windowFits(cooldown) {
			reason = fmt.Sprintf("%d consecutive masses need more servers than exist", cooldown+1)
			s.obs.Relaxation(cooldown)
			continue
		}

		chosen, reason, err = s.attempt(ctx, m, cooldown, true)
		if err != nil {
			return nil, err
		}
		if chosen == nil && cooldown == 0 {
			s.log.Warnf("No plan within the per-group caps (%s), solving without the derived ones", reason)
			if chosen, reason, err = s.attempt(ctx, m, 0, false); err != nil {
				return nil, err
			}
		}
		if chosen != nil {
			s.log.Infof("Solved with cooldown %d (%d variables)", cooldown, m.vars)
			return s.result(p, m, chosen), nil
		}

		s.obs.Relaxation(cooldown)
		s.log.Infof("Cooldown %d infeasible (%s), relaxing", cooldown, reason)
	}
	return nil, &apperrors.SolverInfeasibleError{Cooldown: 0, Reason: reason}
}

// attempt solves the model for one cooldown. A nil selection without error comes with the
// reason the attempt failed; running out of the per-attempt timeout is such a failure.
func (s *Solver) attempt(ctx context.Context, m *model, cooldown int, capped bool) ([][]int, string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	chosen, err := m.solve(attemptCtx, cooldown, capped)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, "", ctx.Err()
	case err != nil:
		return nil, fmt.Sprintf("solve timed out after %s", s.opts.Timeout), nil
	case chosen == nil:
		return nil, m.infeasibleReason(cooldown, capped), nil
	}
	return chosen, "", nil
}

// result replays the chosen groups into a private clone, in calendar order
func (s *Solver) result(p *scheduler.Problem, m *model, chosen [][]int) *scheduler.Result {
	work := p.Clone()
	work.Registry.Reset()
	work.Calendar.Clear()

	for i, occ := range work.Calendar.Occurrences {
		ids := append([]int(nil), m.pre[i]...)
		for _, g := range chosen[i] {
			ids = append(ids, p.Groups[g].Members...)
		}
		for _, id := range ids {
			occ.Servers = append(occ.Servers, id)
			person := work.Registry.Person(id)
			person.Services = append(person.Services, models.Service{Date: occ.Date, SlotKey: occ.Slot.RotationKey()})
		}
	}

	return &scheduler.Result{
		Registry: work.Registry,
		Calendar: work.Calendar,
		Fitness:  scheduler.Score(work.Registry, s.opts.Weights),
		Trials:   1,
	}
}
