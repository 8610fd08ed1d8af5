package scheduler

import (
	"context"
	"math/rand"
	"testing"

	"github.com/arnavshah/mass-scheduler-go/pkg/apperrors"
	"github.com/arnavshah/mass-scheduler-go/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiblingsFillTwoSeatMass(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		p := buildProblem(t,
			[]models.PersonRecord{{Name: "A"}, {Name: "B", Siblings: []string{"C"}}, {Name: "C"}},
			[]models.SlotRecord{{ID: "SUN_10", Weekday: "sunday", Time: "10:00", Servers: 2}},
			models.Date(2024, 3, 3), models.Date(2024, 3, 24),
		)
		engine, err := NewEngine(p, EngineOptions{Rand: rand.New(rand.NewSource(seed))})
		require.NoError(t, err)
		require.NoError(t, engine.Run(context.Background()))

		require.Len(t, p.Calendar.Occurrences, 4)
		b, _ := p.Registry.Lookup("B")
		c, _ := p.Registry.Lookup("C")
		for _, occ := range p.Calendar.Occurrences {
			assert.ElementsMatch(t, []int{b, c}, occ.Servers, "seed %d, %s", seed, occ)
		}
		a, _ := p.Registry.Lookup("A")
		assert.Zero(t, p.Registry.Person(a).ServiceCount())
	}
}

func TestAvoidAppliesBySlotID(t *testing.T) {
	p := buildProblem(t,
		[]models.PersonRecord{
			{Name: "X", Avoid: []string{"WED_18"}, Vacations: []models.VacationRecord{{Start: "2024-03-01", End: "2024-03-10"}}},
			{Name: "Y"},
			{Name: "Z"},
		},
		[]models.SlotRecord{{ID: "WED_18", Weekday: "wednesday", Time: "18:00", Servers: 1}},
		models.Date(2024, 3, 1), models.Date(2024, 3, 31),
	)
	engine, err := NewEngine(p, EngineOptions{Rand: rand.New(rand.NewSource(5))})
	require.NoError(t, err)
	require.NoError(t, engine.Run(context.Background()))

	x, _ := p.Registry.Lookup("X")
	dates := make([]string, 0)
	for _, occ := range p.Calendar.Occurrences {
		dates = append(dates, models.DateKey(occ.Date))
		assert.NotContains(t, occ.Servers, x)
	}
	assert.Contains(t, dates, "2024-03-06")
	assert.Contains(t, dates, "2024-03-20")
	assert.Zero(t, p.Registry.Person(x).ServiceCount())
	assertValidPlan(t, p)
}

func TestUnreachableServerCountIsConfigError(t *testing.T) {
	testCases := []struct {
		name    string
		persons []models.PersonRecord
		servers int
	}{
		{
			name:    "two pairs for three seats",
			persons: []models.PersonRecord{{Name: "A", Siblings: []string{"B"}}, {Name: "B"}, {Name: "C", Siblings: []string{"D"}}, {Name: "D"}},
			servers: 3,
		},
		{
			name:    "single and pair for four seats",
			persons: []models.PersonRecord{{Name: "A"}, {Name: "B", Siblings: []string{"C"}}, {Name: "C"}},
			servers: 4,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := buildProblem(t, tc.persons,
				[]models.SlotRecord{{ID: "SUN_10", Weekday: "sunday", Time: "10:00", Servers: tc.servers}},
				models.Date(2024, 3, 3), models.Date(2024, 3, 10),
			)
			_, err := NewEngine(p, EngineOptions{})
			require.Error(t, err)
			assert.True(t, apperrors.IsConfig(err), "got %v", err)

			_, err = NewOptimizer(Options{Trials: 3, Seed: 1}).Optimize(context.Background(), p)
			require.Error(t, err)
			assert.True(t, apperrors.IsConfig(err))
		})
	}
}

func TestRestartBudgetExhausted(t *testing.T) {
	// one person cannot serve two masses on the same day
	p := buildProblem(t,
		[]models.PersonRecord{{Name: "A"}},
		[]models.SlotRecord{
			{ID: "SUN_8", Weekday: "sunday", Time: "08:00", Servers: 1},
			{ID: "SUN_10", Weekday: "sunday", Time: "10:00", Servers: 1},
		},
		models.Date(2024, 3, 3), models.Date(2024, 3, 3),
	)
	engine, err := NewEngine(p, EngineOptions{Rand: rand.New(rand.NewSource(1)), MaxRestarts: 3})
	require.NoError(t, err)

	err = engine.Run(context.Background())
	require.Error(t, err)
	var infErr *apperrors.InfeasibleError
	require.ErrorAs(t, err, &infErr)
	assert.Equal(t, 3, infErr.Restarts)
	assert.Contains(t, infErr.Cause, "SUN_10")
	assert.Equal(t, 3, engine.Restarts())
}

func TestResetClearsEverything(t *testing.T) {
	p := parishProblem(t)
	engine, err := NewEngine(p, EngineOptions{Rand: rand.New(rand.NewSource(11))})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, engine.Run(context.Background()))
		assertValidPlan(t, p)

		engine.Reset()
		for _, person := range p.Registry.Persons() {
			assert.Zero(t, person.ServiceCount())
		}
		for _, occ := range p.Calendar.Occurrences {
			assert.Empty(t, occ.Servers)
		}
	}
}

func TestPassReportsBadSituation(t *testing.T) {
	p := buildProblem(t,
		[]models.PersonRecord{{Name: "A"}, {Name: "B"}},
		[]models.SlotRecord{
			{ID: "SUN_8", Weekday: "sunday", Time: "08:00", Servers: 2},
			{ID: "SUN_10", Weekday: "sunday", Time: "10:00", Servers: 1},
		},
		models.Date(2024, 3, 3), models.Date(2024, 3, 3),
	)
	engine, err := NewEngine(p, EngineOptions{Rand: rand.New(rand.NewSource(2))})
	require.NoError(t, err)

	engine.Reset()
	assert.Equal(t, BadSituation, engine.Pass())
	assert.NotEmpty(t, engine.Cause())
}

func TestPreAssignment(t *testing.T) {
	persons := []models.PersonRecord{{Name: "Anna"}, {Name: "Ben"}, {Name: "Clara"}, {Name: "Dan"}}
	start, end := models.Date(2024, 3, 3), models.Date(2024, 3, 17)

	t.Run("names are placed first", func(t *testing.T) {
		p := buildProblem(t, persons, []models.SlotRecord{{
			ID: "SUN_10", Weekday: "sunday", Time: "10:00", Servers: 2,
			PreAssigned:       []string{"Anna"},
			PreAssignedByDate: map[string][]string{"2024-03-10": {"Dan"}},
		}}, start, end)

		engine, err := NewEngine(p, EngineOptions{Rand: rand.New(rand.NewSource(4))})
		require.NoError(t, err)
		require.NoError(t, engine.Run(context.Background()))

		anna, _ := p.Registry.Lookup("Anna")
		dan, _ := p.Registry.Lookup("Dan")
		for _, occ := range p.Calendar.Occurrences {
			assert.Equal(t, anna, occ.Servers[0])
			assert.Len(t, occ.Servers, 2)
		}
		assert.Equal(t, []int{anna, dan}, p.Calendar.Occurrences[1].Servers)
	})

	t.Run("reserved for the whole day", func(t *testing.T) {
		p := buildProblem(t, persons, []models.SlotRecord{
			{ID: "SUN_9", Weekday: "sunday", Time: "09:00", Servers: 1},
			{ID: "SUN_11", Weekday: "sunday", Time: "11:00", Servers: 1, PreAssigned: []string{"Clara"}},
		}, start, end)
		clara, _ := p.Registry.Lookup("Clara")

		for seed := int64(0); seed < 20; seed++ {
			engine, err := NewEngine(p, EngineOptions{Rand: rand.New(rand.NewSource(seed))})
			require.NoError(t, err)
			require.NoError(t, engine.Run(context.Background()))
			for _, occ := range p.Calendar.Occurrences {
				if occ.Slot.ID == "SUN_9" {
					assert.NotContains(t, occ.Servers, clara, "seed %d %s", seed, occ)
				}
			}
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		p := buildProblem(t, persons, []models.SlotRecord{{
			ID: "SUN_10", Weekday: "sunday", Time: "10:00", Servers: 2, PreAssigned: []string{"Nobody"},
		}}, start, end)
		_, err := NewEngine(p, EngineOptions{})
		assert.True(t, apperrors.IsConfig(err))
	})

	t.Run("more names than seats", func(t *testing.T) {
		p := buildProblem(t, persons, []models.SlotRecord{{
			ID: "SUN_10", Weekday: "sunday", Time: "10:00", Servers: 1, PreAssigned: []string{"Anna", "Ben"},
		}}, start, end)
		_, err := NewEngine(p, EngineOptions{})
		assert.True(t, apperrors.IsConfig(err))
	})
}

func TestHighPriorityLane(t *testing.T) {
	p := parishProblem(t)
	engine, err := NewEngine(p, EngineOptions{Rand: rand.New(rand.NewSource(8))})
	require.NoError(t, err)
	require.NoError(t, engine.Run(context.Background()))
	assertValidPlan(t, p)

	dora, _ := p.Registry.Lookup("Dora")
	lena, _ := p.Registry.Lookup("Lena")
	found := false
	for _, occ := range p.Calendar.Occurrences {
		if occ.Slot.ID != "PENTECOST" {
			continue
		}
		found = true
		assert.Equal(t, models.Date(2024, 5, 19), occ.Date)
		assert.Contains(t, occ.Servers, dora)
		assert.Contains(t, occ.Servers, lena)
	}
	assert.True(t, found)
}

func TestOneOffMassLeavesBorrowedRotation(t *testing.T) {
	testCases := []struct {
		name    string
		persons []models.PersonRecord
		servers int
		want    []string
	}{
		{
			name:    "only a pair reaches the seat count",
			persons: []models.PersonRecord{{Name: "A"}, {Name: "B", Siblings: []string{"C"}}, {Name: "C"}},
			servers: 2,
			want:    []string{"B", "C"},
		},
		{
			name: "sunday rotation away on the date",
			persons: []models.PersonRecord{
				{Name: "A", Vacations: []models.VacationRecord{{Start: "2024-12-24", End: "2024-12-26"}}},
				{Name: "B", Avoid: []string{"SUN_10"}},
			},
			servers: 1,
			want:    []string{"B"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for seed := int64(1); seed <= 10; seed++ {
				p := buildProblem(t, tc.persons,
					[]models.SlotRecord{
						{ID: "SUN_10", Weekday: "sunday", Time: "10:00", Servers: 1},
						{ID: "XMAS", Date: "2024-12-25", Time: "10:00", Servers: tc.servers},
					},
					models.Date(2024, 12, 15), models.Date(2024, 12, 29),
				)
				engine, err := NewEngine(p, EngineOptions{Rand: rand.New(rand.NewSource(seed)), MaxRestarts: 20})
				require.NoError(t, err)
				require.NoError(t, engine.Run(context.Background()), "seed %d", seed)
				assertValidPlan(t, p)

				var want []int
				for _, name := range tc.want {
					id, _ := p.Registry.Lookup(name)
					want = append(want, id)
				}
				for _, occ := range p.Calendar.Occurrences {
					if occ.Slot.ID == "XMAS" {
						assert.ElementsMatch(t, want, occ.Servers, "seed %d", seed)
					}
				}
			}
		})
	}
}

func TestRunHonorsInvariantsAcrossSeeds(t *testing.T) {
	for seed := int64(100); seed < 110; seed++ {
		p := parishProblem(t)
		engine, err := NewEngine(p, EngineOptions{Rand: rand.New(rand.NewSource(seed))})
		require.NoError(t, err)
		require.NoError(t, engine.Run(context.Background()))
		assertValidPlan(t, p)
	}
}
