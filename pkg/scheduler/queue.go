package scheduler

import (
	"math/rand"
	"sort"

	"github.com/arnavshah/mass-scheduler-go/pkg/models"
)

// rotation is a view on the shared permutation restricted to the groups eligible for one
// rotation key. The cursor walks the view and wraps once the round is drained.
type rotation struct {
	key      string
	eligible []bool
	order    []int
	cursor   int
}

func (r *rotation) rebuild(perm []int) {
	r.order = r.order[:0]
	for _, g := range perm {
		if r.eligible[g] {
			r.order = append(r.order, g)
		}
	}
	r.cursor = 0
}

func (r *rotation) next() int {
	if len(r.order) == 0 {
		return -1
	}
	if r.cursor == len(r.order) {
		r.cursor = 0
	}
	g := r.order[r.cursor]
	r.cursor++
	return g
}

func (r *rotation) remaining() int {
	return len(r.order) - r.cursor
}

// QueueManager hands out groups so that every eligible group is drawn once per round.
// All rotations derive from one shuffled permutation, so rounds stay in step across slots.
type QueueManager struct {
	groups    []*models.SiblingGroup
	rng       *rand.Rand
	perm      []int
	rotations map[string]*rotation
	byTime    map[models.TimeOfDay]*rotation
	fallback  *rotation
	priority  *rotation
	picked    map[*models.Occurrence]*rotation
}

// NewQueueManager registers one rotation per recurring slot identity. One-off slots borrow the
// rotation with the same time of day, or the fallback rotation over all groups when the borrowed
// one cannot staff the occurrence.
func NewQueueManager(groups []*models.SiblingGroup, slots []*models.Slot, rng *rand.Rand) *QueueManager {
	q := &QueueManager{
		groups:    groups,
		rng:       rng,
		perm:      make([]int, len(groups)),
		rotations: make(map[string]*rotation),
		byTime:    make(map[models.TimeOfDay]*rotation),
		picked:    make(map[*models.Occurrence]*rotation),
	}

	q.fallback = &rotation{key: "*", eligible: make([]bool, len(groups))}
	q.priority = &rotation{key: "!", eligible: make([]bool, len(groups))}
	for i, g := range groups {
		q.fallback.eligible[i] = true
		q.priority.eligible[i] = g.HighPriority
	}

	// registration order must not depend on map iteration
	sorted := append([]*models.Slot(nil), slots...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, slot := range sorted {
		if slot.Kind != models.SlotWeekly {
			continue
		}
		key := slot.RotationKey()
		rot, ok := q.rotations[key]
		if !ok {
			rot = &rotation{key: key, eligible: make([]bool, len(groups))}
			q.rotations[key] = rot
		}
		for i, g := range groups {
			if !g.Blocks(slot) && g.Size() <= slot.Servers {
				rot.eligible[i] = true
			}
		}
		if _, ok := q.byTime[slot.Time]; !ok {
			q.byTime[slot.Time] = rot
		}
	}

	q.Reshuffle()
	return q
}

// Reshuffle draws a new permutation and restarts every rotation at its head.
// The permutation depends only on the state of rng.
func (q *QueueManager) Reshuffle() {
	for i := range q.perm {
		q.perm[i] = i
	}
	q.rng.Shuffle(len(q.perm), func(i, j int) { q.perm[i], q.perm[j] = q.perm[j], q.perm[i] })
	for _, rot := range q.rotations {
		rot.rebuild(q.perm)
	}
	q.fallback.rebuild(q.perm)
	q.priority.rebuild(q.perm)
	for occ := range q.picked {
		delete(q.picked, occ)
	}
}

// rotationFor settles the rotation of an occurrence on first use and keeps it until the next
// Reshuffle, so the cursor an occurrence walks never changes under it.
func (q *QueueManager) rotationFor(occ *models.Occurrence) *rotation {
	if rot, ok := q.picked[occ]; ok {
		return rot
	}
	rot := q.fallback
	if own, ok := q.rotations[occ.Slot.RotationKey()]; ok && len(own.order) > 0 {
		rot = own
	} else if same, ok := q.byTime[occ.Slot.Time]; ok && len(same.order) > 0 {
		rot = same
	}
	if rot != q.fallback && occ.Slot.Kind != models.SlotWeekly && !q.covers(rot, occ) {
		rot = q.fallback
	}
	q.picked[occ] = rot
	return rot
}

// covers reports whether the groups of a borrowed rotation that are available for the
// occurrence can add up to its open seats
func (q *QueueManager) covers(rot *rotation, occ *models.Occurrence) bool {
	need := occ.Remaining()
	if need <= 0 {
		return true
	}
	var sizes []int
	for _, g := range rot.order {
		group := q.groups[g]
		if group.Size() <= need && group.Available(occ) {
			sizes = append(sizes, group.Size())
		}
	}
	return subsetSum(sizes, need)
}

// Next pops the next group for the occurrence. It returns nil only when there are no groups at all.
func (q *QueueManager) Next(occ *models.Occurrence) *models.SiblingGroup {
	g := q.rotationFor(occ).next()
	if g < 0 {
		return nil
	}
	return q.groups[g]
}

// Remaining is the number of groups left in the current round of the occurrence's rotation
func (q *QueueManager) Remaining(occ *models.Occurrence) int {
	return q.rotationFor(occ).remaining()
}

// RotationKey names the rotation the occurrence draws from
func (q *QueueManager) RotationKey(occ *models.Occurrence) string {
	return q.rotationFor(occ).key
}

// NextPriority pops the next group of the high-priority lane, or nil when the lane is empty.
// The lane is circular and only rebuilt by Reshuffle.
func (q *QueueManager) NextPriority() *models.SiblingGroup {
	g := q.priority.next()
	if g < 0 {
		return nil
	}
	return q.groups[g]
}

// PriorityLen is the number of groups in the high-priority lane
func (q *QueueManager) PriorityLen() int {
	return len(q.priority.order)
}
