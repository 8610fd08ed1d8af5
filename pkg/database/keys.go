package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arnavshah/mass-scheduler-go/pkg/apperrors"
	"gorm.io/gorm"
)

// recentPlans bounds the plan runs listed in a usage report
const recentPlans = 10

// KeySummary is an API key with the number of plans stored under it
type KeySummary struct {
	APIKey
	Plans    int64      `json:"plans"`
	LastPlan *time.Time `json:"last_plan,omitempty"`
}

// PlanSummary is a stored plan run without its assignments
type PlanSummary struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	StartDate string    `json:"start"`
	EndDate   string    `json:"end"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// UsageTotals sums the daily usage rows of a report
type UsageTotals struct {
	Requests int64 `json:"requests"`
	Masses   int64 `json:"masses"`
	Persons  int64 `json:"persons"`
}

// UsageReport is the recent activity of one key
type UsageReport struct {
	History []APIUsage    `json:"usage_history"`
	Totals  UsageTotals   `json:"totals"`
	Plans   []PlanSummary `json:"recent_plans"`
}

// EnsureKey loads the record of a verified key, creating it on first use
func (s *Store) EnsureKey(ctx context.Context, key, name, preview string, rateLimit int) (*APIKey, error) {
	var apiKey APIKey
	err := s.db.WithContext(ctx).Where(APIKey{Key: key}).FirstOrCreate(&apiKey, APIKey{
		Key:        key,
		Name:       name,
		KeyPreview: preview,
		RateLimit:  rateLimit,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("load key record for %s: %w", name, err)
	}
	return &apiKey, nil
}

// CreateKey stores a newly issued key
func (s *Store) CreateKey(ctx context.Context, key *APIKey) error {
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("create key %s: %w", key.Name, err)
	}
	return nil
}

// Key loads a key by id
func (s *Store) Key(ctx context.Context, id uint) (*APIKey, error) {
	var key APIKey
	err := s.db.WithContext(ctx).First(&key, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("key %d: %w", id, apperrors.ErrKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load key %d: %w", id, err)
	}
	return &key, nil
}

// Keys lists every key with its stored plan count
func (s *Store) Keys(ctx context.Context) ([]KeySummary, error) {
	var keys []APIKey
	if err := s.db.WithContext(ctx).Order("id").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	var counts []struct {
		KeyID uint
		Plans int64
	}
	err := s.db.WithContext(ctx).Model(&PlanRun{}).
		Select("key_id, count(*) as plans").
		Where("key_id IS NOT NULL").
		Group("key_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("count plans: %w", err)
	}
	byKey := make(map[uint]int, len(counts))
	for i, c := range counts {
		byKey[c.KeyID] = i
	}

	out := make([]KeySummary, len(keys))
	for i, key := range keys {
		out[i].APIKey = key
		if j, ok := byKey[key.ID]; ok {
			out[i].Plans = counts[j].Plans
		}
	}
	if err := s.lastPlans(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// lastPlans fills LastPlan from the newest run of each key that has plans
func (s *Store) lastPlans(ctx context.Context, keys []KeySummary) error {
	for i := range keys {
		if keys[i].Plans == 0 {
			continue
		}
		var run PlanRun
		err := s.db.WithContext(ctx).Select("created_at").Where("key_id = ?", keys[i].ID).
			Order("created_at desc").First(&run).Error
		if err != nil {
			return fmt.Errorf("last plan of key %d: %w", keys[i].ID, err)
		}
		created := run.CreatedAt
		keys[i].LastPlan = &created
	}
	return nil
}

// SetRateLimit changes the daily request limit of a key
func (s *Store) SetRateLimit(ctx context.Context, id uint, limit int) error {
	res := s.db.WithContext(ctx).Model(&APIKey{}).Where("id = ?", id).Update("rate_limit", limit)
	if res.Error != nil {
		return fmt.Errorf("update key %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("key %d: %w", id, apperrors.ErrKeyNotFound)
	}
	return nil
}

// DeleteKey revokes a key and drops its usage rows. Its stored plans stay but can no longer
// be read through the API.
func (s *Store) DeleteKey(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&APIKey{}, id)
		if res.Error != nil {
			return fmt.Errorf("delete key %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("key %d: %w", id, apperrors.ErrKeyNotFound)
		}
		if err := tx.Where("key_id = ?", id).Delete(&APIUsage{}).Error; err != nil {
			return fmt.Errorf("delete usage of key %d: %w", id, err)
		}
		return nil
	})
}

// UsageReport collects the recent usage rows, their totals and the latest plans of a key
func (s *Store) UsageReport(ctx context.Context, keyID uint, days int) (*UsageReport, error) {
	history, err := s.Usage(ctx, keyID, days)
	if err != nil {
		return nil, fmt.Errorf("usage of key %d: %w", keyID, err)
	}

	report := &UsageReport{History: history, Plans: []PlanSummary{}}
	for _, u := range history {
		report.Totals.Requests += int64(u.RequestCount)
		report.Totals.Masses += int64(u.TotalMasses)
		report.Totals.Persons += int64(u.TotalPersons)
	}

	err = s.db.WithContext(ctx).Model(&PlanRun{}).
		Select("id, strategy, start_date, end_date, score, created_at").
		Where("key_id = ?", keyID).
		Order("created_at desc").
		Limit(recentPlans).
		Scan(&report.Plans).Error
	if err != nil {
		return nil, fmt.Errorf("recent plans of key %d: %w", keyID, err)
	}
	return report, nil
}
