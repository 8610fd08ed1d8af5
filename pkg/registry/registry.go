// Package registry owns the canonical persons of a plan and partitions them into sibling groups.
//
// Persons are addressed by their index in the registry. Groups and calendars only ever hold
// those indexes, so cloning a registry never has to chase references.
package registry

import (
	"sort"

	"github.com/arnavshah/mass-scheduler-go/pkg/apperrors"
	"github.com/arnavshah/mass-scheduler-go/pkg/models"
)

// Registry is the arena of persons plus a name index
type Registry struct {
	persons []*models.Person
	index   map[string]int
}

// New builds a registry from pre-parsed person records
func New(records []models.PersonRecord) (*Registry, error) {
	if len(records) == 0 {
		return nil, apperrors.NewConfigError("persons", "at least one person is required")
	}

	r := &Registry{
		persons: make([]*models.Person, 0, len(records)),
		index:   make(map[string]int, len(records)),
	}
	for i, rec := range records {
		if rec.Name == "" {
			return nil, apperrors.NewConfigErrorf("persons", "person #%d has no name", i+1)
		}
		if _, dup := r.index[rec.Name]; dup {
			return nil, apperrors.NewConfigErrorf("persons", "duplicate person %q", rec.Name)
		}
		p, err := fromRecord(i, rec)
		if err != nil {
			return nil, err
		}
		r.index[rec.Name] = i
		r.persons = append(r.persons, p)
	}
	return r, nil
}

func fromRecord(id int, rec models.PersonRecord) (*models.Person, error) {
	p := &models.Person{
		ID:           id,
		Name:         rec.Name,
		SiblingNames: append([]string(nil), rec.Siblings...),
		Avoid:        toSet(rec.Avoid),
		Locations:    toSet(rec.Locations),
		HighPriority: rec.HighPriority,
	}

	for _, v := range rec.Vacations {
		start, err := models.ParseDate(v.Start)
		if err != nil {
			return nil, apperrors.NewConfigErrorf("vacations", "%s: %v", rec.Name, err)
		}
		end, err := models.ParseDate(v.End)
		if err != nil {
			return nil, apperrors.NewConfigErrorf("vacations", "%s: %v", rec.Name, err)
		}
		if end.Before(start) {
			return nil, apperrors.NewConfigErrorf("vacations", "%s: vacation ends before it starts", rec.Name)
		}
		p.Vacations = append(p.Vacations, models.DateRange{Start: start, End: end})
	}

	if len(rec.Attendance) > 0 {
		p.Attendance = make(map[string]float64, len(rec.Attendance))
		for slot, prob := range rec.Attendance {
			if prob < 0 || prob > 1 {
				return nil, apperrors.NewConfigErrorf("attendance", "%s: probability for %s must be within [0,1]", rec.Name, slot)
			}
			p.Attendance[slot] = prob
		}
	}

	for _, sib := range rec.Siblings {
		if sib == rec.Name {
			return nil, apperrors.NewConfigErrorf("siblings", "%s lists itself as a sibling", rec.Name)
		}
	}
	return p, nil
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// Len returns the number of persons
func (r *Registry) Len() int {
	return len(r.persons)
}

// Person returns the person with the given id
func (r *Registry) Person(id int) *models.Person {
	return r.persons[id]
}

// Lookup resolves a name to a person id
func (r *Registry) Lookup(name string) (int, bool) {
	id, ok := r.index[name]
	return id, ok
}

// Persons returns all persons in id order
func (r *Registry) Persons() []*models.Person {
	return r.persons
}

// Reset clears every per-trial counter
func (r *Registry) Reset() {
	for _, p := range r.persons {
		p.Services = p.Services[:0]
	}
}

// Clone returns an independent copy whose mutable fields can be changed freely
func (r *Registry) Clone() *Registry {
	cp := &Registry{
		persons: make([]*models.Person, len(r.persons)),
		index:   r.index,
	}
	for i, p := range r.persons {
		cp.persons[i] = p.Clone()
	}
	return cp
}

// Distribution returns how often each person serves, sorted by name
func (r *Registry) Distribution() []models.DistributionEntry {
	out := make([]models.DistributionEntry, 0, len(r.persons))
	for _, p := range r.persons {
		out = append(out, models.DistributionEntry{Name: p.Name, Count: p.ServiceCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
