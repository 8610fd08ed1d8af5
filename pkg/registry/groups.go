package registry

import (
	"sort"

	"github.com/arnavshah/mass-scheduler-go/pkg/apperrors"
	"github.com/arnavshah/mass-scheduler-go/pkg/models"
)

type claim struct {
	declarer int
	members  []int
}

// BuildGroups partitions the registry into sibling groups.
//
// Every sibling declaration claims a set of persons. Overlapping claims must be nested, the
// larger one wins and the smaller is absorbed. Claims that overlap without nesting would put
// one person into two groups and are rejected. Persons without siblings become singletons.
func BuildGroups(r *Registry) ([]*models.SiblingGroup, error) {
	claims := make([]claim, 0)
	for _, p := range r.persons {
		if len(p.SiblingNames) == 0 {
			continue
		}
		members := []int{p.ID}
		for _, name := range p.SiblingNames {
			id, ok := r.Lookup(name)
			if !ok {
				return nil, apperrors.NewConfigErrorf("siblings", "%s references unknown person %q", p.Name, name)
			}
			members = append(members, id)
		}
		claims = append(claims, claim{declarer: p.ID, members: dedupe(members)})
	}

	sort.SliceStable(claims, func(i, j int) bool {
		if len(claims[i].members) != len(claims[j].members) {
			return len(claims[i].members) > len(claims[j].members)
		}
		return claims[i].declarer < claims[j].declarer
	})

	owner := make([]int, r.Len())
	for i := range owner {
		owner[i] = -1
	}
	var memberSets [][]int

	for _, c := range claims {
		current := -2
		for _, m := range c.members {
			o := owner[m]
			if current == -2 {
				current = o
				continue
			}
			if o != current {
				return nil, conflict(r, c, owner)
			}
		}
		if current >= 0 {
			// nested inside an existing group
			continue
		}
		for _, m := range c.members {
			owner[m] = len(memberSets)
		}
		memberSets = append(memberSets, c.members)
	}

	for _, p := range r.persons {
		if owner[p.ID] < 0 {
			owner[p.ID] = len(memberSets)
			memberSets = append(memberSets, []int{p.ID})
		}
	}

	sort.Slice(memberSets, func(i, j int) bool { return memberSets[i][0] < memberSets[j][0] })

	groups := make([]*models.SiblingGroup, len(memberSets))
	for i, members := range memberSets {
		groups[i] = newGroup(r, i, members)
	}
	return groups, nil
}

func conflict(r *Registry, c claim, owner []int) error {
	for _, m := range c.members {
		if owner[m] >= 0 {
			return apperrors.NewConfigErrorf("siblings", "%s is claimed by two different sibling groups", r.persons[m].Name)
		}
	}
	return apperrors.NewConfigErrorf("siblings", "conflicting sibling declaration by %s", r.persons[c.declarer].Name)
}

func dedupe(ids []int) []int {
	sort.Ints(ids)
	out := ids[:0]
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		out = append(out, id)
	}
	return out
}

func newGroup(r *Registry, id int, members []int) *models.SiblingGroup {
	g := &models.SiblingGroup{ID: id, Members: members}
	for _, m := range members {
		p := r.persons[m]
		for k := range p.Avoid {
			if g.Avoid == nil {
				g.Avoid = make(map[string]struct{})
			}
			g.Avoid[k] = struct{}{}
		}
		g.Vacations = append(g.Vacations, p.Vacations...)
		g.HighPriority = g.HighPriority || p.HighPriority

		if len(p.Locations) == 0 {
			continue
		}
		if !g.Restricted {
			g.Restricted = true
			g.Locations = make(map[string]struct{}, len(p.Locations))
			for loc := range p.Locations {
				g.Locations[loc] = struct{}{}
			}
			continue
		}
		for loc := range g.Locations {
			if _, ok := p.Locations[loc]; !ok {
				delete(g.Locations, loc)
			}
		}
	}
	return g
}
