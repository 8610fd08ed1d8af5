package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arnavshah/mass-scheduler-go/pkg/apperrors"
	"github.com/arnavshah/mass-scheduler-go/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists plans and API usage
type Store struct {
	db *gorm.DB
}

// NewStore wraps an opened database
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// SavePlan stores a finished plan together with all its seats
func (s *Store) SavePlan(ctx context.Context, plan *models.PlanResponse, keyID *uint) error {
	dist, err := json.Marshal(plan.Distribution)
	if err != nil {
		return fmt.Errorf("encode distribution: %w", err)
	}

	run := PlanRun{
		ID:           plan.RunID,
		KeyID:        keyID,
		Strategy:     plan.Strategy,
		StartDate:    plan.Start,
		EndDate:      plan.End,
		Trials:       plan.Trials,
		Score:        plan.Fitness.Score,
		LoadVariance: plan.Fitness.LoadVariance,
		GapVariance:  plan.Fitness.GapVariance,
		SlotVariance: plan.Fitness.SlotVariance,
		Distribution: string(dist),
	}
	for pos, mass := range plan.Calendar {
		row := PlanAssignment{
			Position: pos,
			Date:     mass.Date,
			Time:     mass.Time,
			SlotID:   mass.SlotID,
			Comment:  mass.Comment,
			Location: mass.Location,
		}
		if len(mass.Servers) == 0 {
			run.Assignments = append(run.Assignments, row)
			continue
		}
		for seat, name := range mass.Servers {
			row.Seat = seat
			row.Person = name
			run.Assignments = append(run.Assignments, row)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("save plan %s: %w", run.ID, err)
		}
		return nil
	})
}

// GetPlan loads a stored plan whoever created it
func (s *Store) GetPlan(ctx context.Context, id string) (*models.PlanResponse, error) {
	return s.loadPlan(id, s.db.WithContext(ctx).Where("id = ?", id))
}

// GetPlanForKey loads a stored plan only if the key created it.
// Plans of other keys are reported as not found.
func (s *Store) GetPlanForKey(ctx context.Context, id string, keyID uint) (*models.PlanResponse, error) {
	return s.loadPlan(id, s.db.WithContext(ctx).Where("id = ? AND key_id = ?", id, keyID))
}

func (s *Store) loadPlan(id string, query *gorm.DB) (*models.PlanResponse, error) {
	var run PlanRun
	err := query.
		Preload("Assignments", func(db *gorm.DB) *gorm.DB { return db.Order("position, seat") }).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", id, apperrors.ErrPlanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", id, err)
	}

	plan := &models.PlanResponse{
		RunID:    run.ID,
		Strategy: run.Strategy,
		Start:    run.StartDate,
		End:      run.EndDate,
		Trials:   run.Trials,
		Fitness: models.FitnessReport{
			LoadVariance: run.LoadVariance,
			GapVariance:  run.GapVariance,
			SlotVariance: run.SlotVariance,
			Score:        run.Score,
		},
		Calendar: make([]models.MassAssignment, 0),
	}
	if run.Distribution != "" {
		if err := json.Unmarshal([]byte(run.Distribution), &plan.Distribution); err != nil {
			return nil, fmt.Errorf("decode distribution of %s: %w", id, err)
		}
	}

	last := -1
	for _, row := range run.Assignments {
		if row.Position != last {
			plan.Calendar = append(plan.Calendar, models.MassAssignment{
				Date:     row.Date,
				Time:     row.Time,
				SlotID:   row.SlotID,
				Comment:  row.Comment,
				Location: row.Location,
				Servers:  []string{},
			})
			last = row.Position
		}
		if row.Person != "" {
			mass := &plan.Calendar[len(plan.Calendar)-1]
			mass.Servers = append(mass.Servers, row.Person)
		}
	}
	return plan, nil
}

// RecordUsage counts one request for the key using a single upsert
func (s *Store) RecordUsage(ctx context.Context, keyID uint, masses, persons int) error {
	today := time.Now().Format(models.DateLayout)

	// OnConflict works on both Postgres and SQLite
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"request_count": gorm.Expr("request_count + ?", 1),
			"total_masses":  gorm.Expr("total_masses + ?", masses),
			"total_persons": gorm.Expr("total_persons + ?", persons),
		}),
	}).Create(&APIUsage{
		KeyID:        keyID,
		Date:         today,
		RequestCount: 1,
		TotalMasses:  masses,
		TotalPersons: persons,
	}).Error
}

// Usage returns the most recent daily usage rows of a key
func (s *Store) Usage(ctx context.Context, keyID uint, days int) ([]APIUsage, error) {
	var usage []APIUsage
	err := s.db.WithContext(ctx).Where("key_id = ?", keyID).Order("date desc").Limit(days).Find(&usage).Error
	return usage, err
}
