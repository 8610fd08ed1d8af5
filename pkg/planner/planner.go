// Package planner turns a plan request into a staffed calendar using either the heuristic
// optimizer or the constraint solver, and optionally stores the result.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arnavshah/mass-scheduler-go/pkg/apperrors"
	"github.com/arnavshah/mass-scheduler-go/pkg/calendar"
	"github.com/arnavshah/mass-scheduler-go/pkg/config"
	"github.com/arnavshah/mass-scheduler-go/pkg/database"
	"github.com/arnavshah/mass-scheduler-go/pkg/logger"
	"github.com/arnavshah/mass-scheduler-go/pkg/metrics"
	"github.com/arnavshah/mass-scheduler-go/pkg/models"
	"github.com/arnavshah/mass-scheduler-go/pkg/registry"
	"github.com/arnavshah/mass-scheduler-go/pkg/scheduler"
	"github.com/arnavshah/mass-scheduler-go/pkg/solver"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	StrategyHeuristic = "heuristic"
	StrategySolver    = "solver"
)

// Service plans schedules. Store and Collector are optional.
type Service struct {
	cfg       *config.Config
	store     *database.Store
	collector *metrics.Collector
	log       *logger.Logger
	validate  *validator.Validate
}

// NewService creates a planning service
func NewService(cfg *config.Config, store *database.Store, collector *metrics.Collector, log *logger.Logger) *Service {
	if log == nil {
		log = logger.New()
	}
	return &Service{
		cfg:       cfg,
		store:     store,
		collector: collector,
		log:       log.WithField("component", "planner"),
		validate:  validator.New(),
	}
}

// Plan builds the problem, runs the requested strategy and persists the result
func (s *Service) Plan(ctx context.Context, req *models.PlanRequest) (*models.PlanResponse, error) {
	return s.PlanFor(ctx, req, nil)
}

// PlanFor is Plan with the stored run attributed to an API key
func (s *Service) PlanFor(ctx context.Context, req *models.PlanRequest, keyID *uint) (*models.PlanResponse, error) {
	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategyHeuristic
	}
	started := time.Now()

	resp, err := s.plan(ctx, req, strategy)
	if err != nil {
		s.finished(strategy, outcome(err), 0, started)
		return nil, err
	}

	if s.store != nil {
		if err := s.store.SavePlan(ctx, resp, keyID); err != nil {
			s.finished(strategy, "error", 0, started)
			return nil, fmt.Errorf("save plan: %w", err)
		}
	}

	s.finished(strategy, "ok", resp.Fitness.Score, started)
	s.log.WithFields(map[string]interface{}{
		"run_id":   resp.RunID,
		"strategy": strategy,
		"masses":   len(resp.Calendar),
	}).Infof("Plan finished with score %.4f", resp.Fitness.Score)
	return resp, nil
}

func (s *Service) plan(ctx context.Context, req *models.PlanRequest, strategy string) (*models.PlanResponse, error) {
	p, err := s.build(req)
	if err != nil {
		return nil, err
	}

	var res *scheduler.Result
	switch strategy {
	case StrategyHeuristic:
		trials := req.Trials
		if trials <= 0 {
			trials = s.cfg.Trials
		}
		seed := req.Seed
		if seed == 0 {
			seed = s.cfg.Seed
		}
		opts := scheduler.Options{
			Trials:      trials,
			Workers:     s.cfg.Workers,
			Seed:        seed,
			MaxRestarts: s.cfg.MaxRestarts,
			Weights:     s.weights(),
			Logger:      s.log,
		}
		if s.collector != nil {
			opts.Observer = s.collector
		}
		res, err = scheduler.NewOptimizer(opts).Optimize(ctx, p)
	case StrategySolver:
		opts := solver.Options{
			InitialCooldown: s.cfg.SolverInitialCooldown,
			Timeout:         time.Duration(s.cfg.SolverTimeoutSec) * time.Second,
			MaxPerPlan:      s.cfg.SolverMaxPerPlan,
			MinIdentityCap:  s.cfg.SolverMinIdentityCap,
			Weights:         s.weights(),
			Logger:          s.log,
		}
		if s.collector != nil {
			opts.Observer = s.collector
		}
		res, err = solver.New(opts).Solve(ctx, p)
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownStrategy, strategy)
	}
	if err != nil {
		return nil, err
	}

	return render(res, strategy), nil
}

// Validate checks a request without planning it
func (s *Service) Validate(req *models.PlanRequest) (*models.ValidationResponse, error) {
	p, err := s.build(req)
	if err != nil {
		return nil, err
	}
	pre, err := scheduler.ResolvePreAssignments(p)
	if err != nil {
		return nil, err
	}
	if err := scheduler.CheckStructure(p, pre); err != nil {
		return nil, err
	}
	return &models.ValidationResponse{
		Persons:     p.Registry.Len(),
		Groups:      len(p.Groups),
		Slots:       len(req.Slots),
		Occurrences: len(p.Calendar.Occurrences),
		Seats:       p.Seats(),
	}, nil
}

func (s *Service) build(req *models.PlanRequest) (*scheduler.Problem, error) {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, apperrors.NewConfigErrorf(fe.Namespace(), "failed %q validation", fe.Tag())
		}
		return nil, apperrors.NewConfigError("request", err.Error())
	}

	start, err := models.ParseDate(req.Start)
	if err != nil {
		return nil, apperrors.NewConfigError("start", err.Error())
	}
	end, err := models.ParseDate(req.End)
	if err != nil {
		return nil, apperrors.NewConfigError("end", err.Error())
	}

	reg, err := registry.New(req.Persons)
	if err != nil {
		return nil, err
	}
	groups, err := registry.BuildGroups(reg)
	if err != nil {
		return nil, err
	}
	ec, err := calendar.New(req.Slots)
	if err != nil {
		return nil, err
	}
	cal, err := calendar.Materialize(ec, start, end)
	if err != nil {
		return nil, err
	}
	return &scheduler.Problem{Registry: reg, Groups: groups, Calendar: cal}, nil
}

func (s *Service) weights() scheduler.Weights {
	return scheduler.Weights{Load: s.cfg.LoadWeight, Gap: s.cfg.GapWeight, Slot: s.cfg.SlotWeight}
}

func (s *Service) finished(strategy, result string, score float64, started time.Time) {
	if s.collector == nil {
		return
	}
	s.collector.PlanFinished(strategy, result, score, time.Since(started))
}

func outcome(err error) string {
	switch {
	case apperrors.IsConfig(err), errors.Is(err, apperrors.ErrInvalidHorizon), errors.Is(err, apperrors.ErrUnknownStrategy):
		return "config_error"
	case apperrors.IsInfeasible(err), errors.Is(err, apperrors.ErrNoSuccessfulTrial):
		return "infeasible"
	}
	return "error"
}

func render(res *scheduler.Result, strategy string) *models.PlanResponse {
	resp := &models.PlanResponse{
		RunID:        uuid.New().String(),
		Strategy:     strategy,
		Start:        models.DateKey(res.Calendar.Start),
		End:          models.DateKey(res.Calendar.End),
		Trials:       res.Trials,
		Fitness:      res.Fitness.Report(),
		Calendar:     make([]models.MassAssignment, 0, len(res.Calendar.Occurrences)),
		Distribution: res.Registry.Distribution(),
	}
	for _, occ := range res.Calendar.Occurrences {
		names := make([]string, 0, len(occ.Servers))
		for _, id := range occ.Servers {
			names = append(names, res.Registry.Person(id).Name)
		}
		resp.Calendar = append(resp.Calendar, models.MassAssignment{
			Date:     models.DateKey(occ.Date),
			Time:     occ.Slot.Time.String(),
			SlotID:   occ.Slot.ID,
			Comment:  occ.Slot.Comment,
			Location: occ.Slot.Location,
			Servers:  names,
		})
	}
	return resp
}
