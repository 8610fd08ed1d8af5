package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/arnavshah/mass-scheduler-go/pkg/apperrors"
	"github.com/arnavshah/mass-scheduler-go/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type StoreTestSuite struct {
	suite.Suite
	db    *gorm.DB
	store *Store
}

func (s *StoreTestSuite) SetupTest() {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(s.T().Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	s.Require().NoError(err)
	s.Require().NoError(Migrate(db))
	s.db = db
	s.store = NewStore(db)
}

func (s *StoreTestSuite) TearDownTest() {
	sqlDB, err := s.db.DB()
	if err == nil {
		_ = sqlDB.Close()
	}
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func samplePlan(id string) *models.PlanResponse {
	return &models.PlanResponse{
		RunID:    id,
		Strategy: "heuristic",
		Start:    "2024-03-01",
		End:      "2024-03-31",
		Trials:   10,
		Fitness:  models.FitnessReport{LoadVariance: 0.25, GapVariance: 4, Score: 0.65},
		Calendar: []models.MassAssignment{
			{Date: "2024-03-03", Time: "10:00", SlotID: "SUN_10", Servers: []string{"Ben", "Carl"}},
			{Date: "2024-03-06", Time: "18:00", SlotID: "WED_18", Location: "Chapel", Comment: "Lent", Servers: []string{"Anna"}},
		},
		Distribution: []models.DistributionEntry{{Name: "Anna", Count: 1}, {Name: "Ben", Count: 1}, {Name: "Carl", Count: 1}, {Name: "Dora", Count: 0}},
	}
}

func (s *StoreTestSuite) TestSaveAndGetPlan() {
	ctx := context.Background()
	plan := samplePlan("0b0e8c8e-4a51-4f7f-9f59-8a4f3f3b9d21")
	s.Require().NoError(s.store.SavePlan(ctx, plan, nil))

	loaded, err := s.store.GetPlan(ctx, plan.RunID)
	s.Require().NoError(err)
	s.Equal(plan, loaded)

	var rows int64
	s.db.Model(&PlanAssignment{}).Where("run_id = ?", plan.RunID).Count(&rows)
	s.Equal(int64(3), rows)
}

func (s *StoreTestSuite) TestGetMissingPlan() {
	_, err := s.store.GetPlan(context.Background(), "missing")
	s.Require().Error(err)
	s.True(errors.Is(err, apperrors.ErrPlanNotFound))
}

func (s *StoreTestSuite) TestGetPlanForKey() {
	ctx := context.Background()
	owner := APIKey{Key: "parish.sig", Name: "parish"}
	other := APIKey{Key: "chapel.sig", Name: "chapel"}
	s.Require().NoError(s.db.Create(&owner).Error)
	s.Require().NoError(s.db.Create(&other).Error)

	plan := samplePlan("owned")
	s.Require().NoError(s.store.SavePlan(ctx, plan, &owner.ID))

	loaded, err := s.store.GetPlanForKey(ctx, plan.RunID, owner.ID)
	s.Require().NoError(err)
	s.Equal(plan, loaded)

	_, err = s.store.GetPlanForKey(ctx, plan.RunID, other.ID)
	s.True(errors.Is(err, apperrors.ErrPlanNotFound))

	s.Require().NoError(s.store.SavePlan(ctx, samplePlan("anonymous"), nil))
	_, err = s.store.GetPlanForKey(ctx, "anonymous", owner.ID)
	s.True(errors.Is(err, apperrors.ErrPlanNotFound))
}

func (s *StoreTestSuite) TestKeyLifecycle() {
	ctx := context.Background()
	key := &APIKey{Key: "parish.sig", Name: "parish", KeyPreview: "pari...sig", RateLimit: 100}
	s.Require().NoError(s.store.CreateKey(ctx, key))
	s.NotZero(key.ID)

	again, err := s.store.EnsureKey(ctx, "parish.sig", "ignored", "ignored", 1)
	s.Require().NoError(err)
	s.Equal(key.ID, again.ID)
	s.Equal(100, again.RateLimit)

	fresh, err := s.store.EnsureKey(ctx, "chapel.sig", "chapel", "chap...sig", 10000)
	s.Require().NoError(err)
	s.NotEqual(key.ID, fresh.ID)

	s.Require().NoError(s.store.SavePlan(ctx, samplePlan("first"), &key.ID))
	s.Require().NoError(s.store.SavePlan(ctx, samplePlan("second"), &key.ID))

	keys, err := s.store.Keys(ctx)
	s.Require().NoError(err)
	s.Require().Len(keys, 2)
	s.Equal(int64(2), keys[0].Plans)
	s.NotNil(keys[0].LastPlan)
	s.Zero(keys[1].Plans)
	s.Nil(keys[1].LastPlan)

	s.Require().NoError(s.store.SetRateLimit(ctx, key.ID, 5))
	loaded, err := s.store.Key(ctx, key.ID)
	s.Require().NoError(err)
	s.Equal(5, loaded.RateLimit)

	s.Require().NoError(s.store.RecordUsage(ctx, key.ID, 3, 2))
	s.Require().NoError(s.store.DeleteKey(ctx, key.ID))
	usage, err := s.store.Usage(ctx, key.ID, 30)
	s.Require().NoError(err)
	s.Empty(usage)

	s.True(errors.Is(s.store.DeleteKey(ctx, key.ID), apperrors.ErrKeyNotFound))
	s.True(errors.Is(s.store.SetRateLimit(ctx, key.ID, 5), apperrors.ErrKeyNotFound))
	_, err = s.store.Key(ctx, key.ID)
	s.True(errors.Is(err, apperrors.ErrKeyNotFound))
}

func (s *StoreTestSuite) TestUsageReport() {
	ctx := context.Background()
	key := APIKey{Key: "parish.sig", Name: "parish"}
	s.Require().NoError(s.db.Create(&key).Error)

	s.Require().NoError(s.store.RecordUsage(ctx, key.ID, 10, 4))
	s.Require().NoError(s.store.RecordUsage(ctx, key.ID, 5, 4))
	s.Require().NoError(s.store.SavePlan(ctx, samplePlan("report"), &key.ID))

	report, err := s.store.UsageReport(ctx, key.ID, 30)
	s.Require().NoError(err)
	s.Len(report.History, 1)
	s.Equal(UsageTotals{Requests: 2, Masses: 15, Persons: 8}, report.Totals)
	s.Require().Len(report.Plans, 1)
	s.Equal("report", report.Plans[0].ID)
	s.Equal("2024-03-01", report.Plans[0].StartDate)
	s.InDelta(0.65, report.Plans[0].Score, 1e-9)
}

func (s *StoreTestSuite) TestDuplicateRunID() {
	ctx := context.Background()
	s.Require().NoError(s.store.SavePlan(ctx, samplePlan("dup"), nil))
	s.Error(s.store.SavePlan(ctx, samplePlan("dup"), nil))
}

func (s *StoreTestSuite) TestRecordUsageUpserts() {
	ctx := context.Background()
	key := APIKey{Key: "parish.sig", Name: "parish"}
	s.Require().NoError(s.db.Create(&key).Error)

	s.Require().NoError(s.store.RecordUsage(ctx, key.ID, 10, 4))
	s.Require().NoError(s.store.RecordUsage(ctx, key.ID, 5, 4))

	usage, err := s.store.Usage(ctx, key.ID, 30)
	s.Require().NoError(err)
	s.Require().Len(usage, 1)
	s.Equal(2, usage[0].RequestCount)
	s.Equal(15, usage[0].TotalMasses)
	s.Equal(8, usage[0].TotalPersons)
}

func TestEmptyMassRoundTrip(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:empty_mass?mode=memory&cache=shared"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	store := NewStore(db)

	plan := samplePlan("empty")
	plan.Calendar = append(plan.Calendar, models.MassAssignment{Date: "2024-03-10", Time: "10:00", SlotID: "SUN_10", Servers: []string{}})
	require.NoError(t, store.SavePlan(context.Background(), plan, nil))

	loaded, err := store.GetPlan(context.Background(), "empty")
	require.NoError(t, err)
	require.Len(t, loaded.Calendar, 3)
	assert.Empty(t, loaded.Calendar[2].Servers)
}
