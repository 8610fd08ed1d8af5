package scheduler

import (
	"testing"
	"time"

	"github.com/arnavshah/mass-scheduler-go/pkg/calendar"
	"github.com/arnavshah/mass-scheduler-go/pkg/models"
	"github.com/arnavshah/mass-scheduler-go/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildProblem(t *testing.T, persons []models.PersonRecord, slots []models.SlotRecord, start, end time.Time) *Problem {
	t.Helper()

	reg, err := registry.New(persons)
	require.NoError(t, err)
	groups, err := registry.BuildGroups(reg)
	require.NoError(t, err)
	ec, err := calendar.New(slots)
	require.NoError(t, err)
	cal, err := calendar.Materialize(ec, start, end)
	require.NoError(t, err)

	return &Problem{Registry: reg, Groups: groups, Calendar: cal}
}

func parishProblem(t *testing.T) *Problem {
	return buildProblem(t,
		[]models.PersonRecord{
			{Name: "Anna"},
			{Name: "Ben", Siblings: []string{"Carl"}},
			{Name: "Carl"},
			{Name: "Dora", HighPriority: true},
			{Name: "Emil", Avoid: []string{"SAT_18"}},
			{Name: "Fritz", Vacations: []models.VacationRecord{{Start: "2024-05-06", End: "2024-05-20"}}},
			{Name: "Greta", Locations: []string{"St. Martin"}},
			{Name: "Hanna", Siblings: []string{"Ida"}},
			{Name: "Ida", Avoid: []string{"11:00"}},
			{Name: "Jonas", Attendance: map[string]float64{"SUN_11": 0.5}},
			{Name: "Karl"},
			{Name: "Lena", HighPriority: true},
		},
		[]models.SlotRecord{
			{ID: "SAT_18", Weekday: "saturday", Time: "18:00", Servers: 2, Location: "Chapel"},
			{ID: "SUN_9", Weekday: "sunday", Time: "09:00", Servers: 3, Location: "St. Martin"},
			{ID: "SUN_11", Weekday: "sunday", Time: "11:00", Servers: 2},
			{ID: "PENTECOST", HolidayOffset: intPtr(49), Time: "10:00", Servers: 4, HighPriority: true},
		},
		models.Date(2024, 4, 29), models.Date(2024, 6, 23),
	)
}

func intPtr(v int) *int { return &v }

// assertValidPlan checks the invariants every completed trial must satisfy
func assertValidPlan(t *testing.T, p *Problem) {
	t.Helper()

	pre, err := ResolvePreAssignments(p)
	require.NoError(t, err)

	served := make(map[int]int)
	perDay := make(map[string]map[int]int)
	for i, occ := range p.Calendar.Occurrences {
		assert.Len(t, occ.Servers, occ.Slot.Servers, "%s is not staffed exactly", occ)

		preSet := make(map[int]bool)
		for _, id := range pre[i] {
			preSet[id] = true
		}

		day := models.DateKey(occ.Date)
		if perDay[day] == nil {
			perDay[day] = make(map[int]int)
		}
		for _, id := range occ.Servers {
			served[id]++
			perDay[day][id]++
			if preSet[id] {
				continue
			}
			person := p.Registry.Person(id)
			assert.False(t, person.Blocks(occ.Slot), "%s serves blocked %s", person.Name, occ)
			assert.False(t, person.OnVacation(occ.Date), "%s serves %s during vacation", person.Name, occ)
			assert.True(t, person.CanServeAt(occ.Slot.Location), "%s serves %s at a foreign location", person.Name, occ)
		}

		in := make(map[int]bool)
		for _, id := range occ.Servers {
			in[id] = true
		}
		for _, g := range p.Groups {
			count := 0
			for _, m := range g.Members {
				if in[m] && !preSet[m] {
					count++
				}
			}
			assert.True(t, count == 0 || count == g.Size(), "group %v is split in %s", g.Members, occ)
		}
	}

	for day, counts := range perDay {
		for id, n := range counts {
			assert.LessOrEqual(t, n, 1, "%s serves %d masses on %s", p.Registry.Person(id).Name, n, day)
		}
	}
	for _, person := range p.Registry.Persons() {
		assert.Equal(t, served[person.ID], person.ServiceCount(), "service count of %s", person.Name)
	}
}
