package solver

import (
	"context"
	"fmt"
	"time"

	sat "github.com/crillab/gophersat/solver"

	"github.com/arnavshah/mass-scheduler-go/pkg/models"
	"github.com/arnavshah/mass-scheduler-go/pkg/scheduler"
)

// model holds everything that does not change between cooldown attempts
type model struct {
	groups []*models.SiblingGroup
	occs   []*models.Occurrence
	pre    [][]int
	need   []int
	// cands[m] lists the groups that may serve mass m at all, lits[m] their variables
	cands [][]int
	lits  [][]int
	vars  int

	keyOf   []int
	keyCap  []int
	maxUses int
	// forced[g] counts the masses g must serve because nobody else can reach the seat count,
	// forcedKey[g][k] the same per rotation key
	forced      []int
	forcedKey   []map[int]int
	derivedCaps bool
	persons     int
}

func newModel(p *scheduler.Problem, pre [][]int, opts Options) *model {
	occs := p.Calendar.Occurrences
	m := &model{
		groups:    p.Groups,
		occs:      occs,
		pre:       pre,
		need:      make([]int, len(occs)),
		cands:     make([][]int, len(occs)),
		lits:      make([][]int, len(occs)),
		keyOf:     make([]int, len(occs)),
		forced:    make([]int, len(p.Groups)),
		forcedKey: make([]map[int]int, len(p.Groups)),
		persons:   p.Registry.Len(),
	}

	busy := make(map[time.Time]map[int]bool)
	for i, occ := range occs {
		for _, id := range pre[i] {
			if busy[occ.Date] == nil {
				busy[occ.Date] = make(map[int]bool)
			}
			busy[occ.Date][id] = true
		}
	}

	keys := make(map[string]int)
	var keySeats []int
	var keyEligible []map[int]bool
	seats := 0

	for i, occ := range occs {
		m.need[i] = occ.Slot.Servers - len(pre[i])
		seats += occ.Slot.Servers

		key := occ.Slot.RotationKey()
		k, ok := keys[key]
		if !ok {
			k = len(keySeats)
			keys[key] = k
			keySeats = append(keySeats, 0)
			keyEligible = append(keyEligible, make(map[int]bool))
		}
		m.keyOf[i] = k
		keySeats[k] += m.need[i]

	next:
		for gi, g := range p.Groups {
			if g.Size() > m.need[i] || !g.Available(occ) {
				continue
			}
			for _, id := range g.Members {
				if busy[occ.Date][id] || p.Registry.Person(id).AttendanceFor(occ.Slot) <= 0 {
					continue next
				}
			}
			m.vars++
			m.cands[i] = append(m.cands[i], gi)
			m.lits[i] = append(m.lits[i], m.vars)
			for _, id := range g.Members {
				keyEligible[k][id] = true
			}
		}
		m.countForced(i)
	}

	m.keyCap = make([]int, len(keySeats))
	for k, total := range keySeats {
		m.keyCap[k] = opts.MinIdentityCap
		if n := len(keyEligible[k]); n > 0 {
			if c := 2 * ceilDiv(total, n); c > m.keyCap[k] {
				m.keyCap[k] = c
			}
		}
	}

	m.maxUses = opts.MaxPerPlan
	if m.maxUses <= 0 && m.persons > 0 {
		m.maxUses = 2*ceilDiv(seats, m.persons) + 1
		m.derivedCaps = true
	}
	return m
}

// countForced marks the candidates of mass i without which the others cannot fill it
func (m *model) countForced(i int) {
	for j, g := range m.cands[i] {
		sizes := make([]int, 0, len(m.cands[i])-1)
		for l, h := range m.cands[i] {
			if l != j {
				sizes = append(sizes, m.groups[h].Size())
			}
		}
		if reachable(sizes, m.need[i]) {
			continue
		}
		m.forced[g]++
		if m.forcedKey[g] == nil {
			m.forcedKey[g] = make(map[int]int)
		}
		m.forcedKey[g][m.keyOf[i]]++
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// windowFits is a necessary condition for a cooldown: no group serves twice within any
// cooldown+1 consecutive masses, so those masses together cannot need more than everyone.
func (m *model) windowFits(cooldown int) bool {
	w := cooldown + 1
	sum := 0
	for i := range m.occs {
		sum += m.need[i]
		if i >= w {
			sum -= m.need[i-w]
		}
		if sum > m.persons {
			return false
		}
	}
	return true
}

// constraints encodes the plan for one cooldown:
//   - the chosen group sizes of every mass add up to its open seats
//   - a group serves at most once per day and once per cooldown+1 consecutive masses
//   - with capped set, a group stays within its total and per rotation key caps, each raised
//     to the number of masses it is forced into
//
// Explicit MaxPerPlan caps apply whether capped is set or not.
func (m *model) constraints(cooldown int, capped bool) []sat.PBConstr {
	var out []sat.PBConstr

	// uses[g] lists (mass, literal) pairs of group g in calendar order
	type use struct{ mass, lit int }
	uses := make([][]use, len(m.groups))

	for i := range m.occs {
		if m.need[i] == 0 {
			continue
		}
		weights := make([]int, len(m.cands[i]))
		for j, g := range m.cands[i] {
			weights[j] = m.groups[g].Size()
			uses[g] = append(uses[g], use{mass: i, lit: m.lits[i][j]})
		}
		out = append(out, sat.Eq(m.lits[i], weights, m.need[i])...)
	}

	for g, us := range uses {
		if len(us) < 2 {
			continue
		}
		for a := range us {
			window := []int{us[a].lit}
			for b := a + 1; b < len(us); b++ {
				sameDay := m.occs[us[b].mass].Date.Equal(m.occs[us[a].mass].Date)
				if !sameDay && us[b].mass-us[a].mass > cooldown {
					break
				}
				window = append(window, us[b].lit)
			}
			if len(window) > 1 {
				out = append(out, sat.AtMost(window, 1))
			}
		}

		limit := -1
		if capped && m.derivedCaps {
			limit = max(m.maxUses, m.forced[g])
		} else if !m.derivedCaps {
			limit = m.maxUses
		}
		if limit >= 0 && len(us) > limit {
			lits := make([]int, len(us))
			for j, u := range us {
				lits[j] = u.lit
			}
			out = append(out, sat.AtMost(lits, limit))
		}

		if !capped {
			continue
		}
		byKey := make(map[int][]int)
		for _, u := range us {
			k := m.keyOf[u.mass]
			byKey[k] = append(byKey[k], u.lit)
		}
		for k, lits := range byKey {
			limit := max(m.keyCap[k], m.forcedKey[g][k])
			if len(lits) > limit {
				out = append(out, sat.AtMost(lits, limit))
			}
		}
	}
	return out
}

// solve returns the groups chosen per mass, or nil when the model is unsatisfiable.
// gophersat cannot be interrupted, so on cancellation the search is left to finish in the
// background and its answer is dropped.
func (m *model) solve(ctx context.Context, cooldown int, capped bool) ([][]int, error) {
	constrs := m.constraints(cooldown, capped)
	if len(constrs) == 0 {
		return make([][]int, len(m.occs)), nil
	}

	done := make(chan []bool, 1)
	go func() {
		s := sat.New(sat.ParsePBConstrs(constrs))
		if s.Solve() != sat.Sat {
			done <- nil
			return
		}
		done <- s.Model()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case assignment := <-done:
		if assignment == nil {
			return nil, nil
		}
		return m.decode(assignment), nil
	}
}

func (m *model) decode(assignment []bool) [][]int {
	chosen := make([][]int, len(m.occs))
	for i, lits := range m.lits {
		for j, lit := range lits {
			if lit <= len(assignment) && assignment[lit-1] {
				chosen[i] = append(chosen[i], m.cands[i][j])
			}
		}
	}
	return chosen
}

func (m *model) infeasibleReason(cooldown int, capped bool) string {
	switch {
	case capped || cooldown > 0:
		return "no assignment satisfies the constraints"
	case m.derivedCaps:
		return "no assignment satisfies the constraints, even with the per-group caps lifted"
	default:
		return fmt.Sprintf("no assignment satisfies the constraints within the cap of %d services per person", m.maxUses)
	}
}

func reachable(sizes []int, target int) bool {
	reach := make([]bool, target+1)
	reach[0] = true
	for _, s := range sizes {
		for v := target; v >= s; v-- {
			if reach[v-s] {
				reach[v] = true
			}
		}
	}
	return reach[target]
}
