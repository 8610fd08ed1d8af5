package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/arnavshah/mass-scheduler-go/pkg/apperrors"
	"github.com/arnavshah/mass-scheduler-go/pkg/logger"
	"github.com/arnavshah/mass-scheduler-go/pkg/models"
)

// DefaultMaxRestarts bounds the BadSituation restarts of a single trial
const DefaultMaxRestarts = 5000

// Outcome is the result of one pass over the calendar
type Outcome int

const (
	// Complete means every occurrence is fully staffed
	Complete Outcome = iota
	// BadSituation means the draw order painted the pass into a corner and the trial must restart
	BadSituation
)

func (o Outcome) String() string {
	if o == Complete {
		return "complete"
	}
	return "bad situation"
}

type verdict int

const (
	accept verdict = iota
	reject
	overflow
)

// EngineOptions configures an Engine
type EngineOptions struct {
	Rand        *rand.Rand
	MaxRestarts int
	Logger      *logger.Logger
	Observer    Observer
}

// Engine runs trials of the assignment algorithm over one Problem
type Engine struct {
	problem  *Problem
	queues   *QueueManager
	rng      *rand.Rand
	log      *logger.Logger
	obs      Observer
	pre      [][]int
	reserved map[time.Time]map[int]struct{}
	chosen   map[int]struct{}
	maxDraws int

	maxRestarts int
	restarts    int
	cause       string
}

// NewEngine validates pre-assignments and the structure of the problem before any trial runs
func NewEngine(p *Problem, opts EngineOptions) (*Engine, error) {
	pre, err := ResolvePreAssignments(p)
	if err != nil {
		return nil, err
	}
	if err := CheckStructure(p, pre); err != nil {
		return nil, err
	}
	return newEngine(p, pre, opts), nil
}

func newEngine(p *Problem, pre [][]int, opts EngineOptions) *Engine {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.MaxRestarts <= 0 {
		opts.MaxRestarts = DefaultMaxRestarts
	}
	if opts.Logger == nil {
		opts.Logger = logger.New()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	return &Engine{
		problem:     p,
		queues:      NewQueueManager(p.Groups, distinctSlots(p.Calendar), opts.Rand),
		rng:         opts.Rand,
		log:         opts.Logger,
		obs:         opts.Observer,
		pre:         pre,
		reserved:    reservedByDay(p, pre),
		chosen:      make(map[int]struct{}, len(p.Groups)),
		maxDraws:    8 * (len(p.Groups) + 2),
		maxRestarts: opts.MaxRestarts,
	}
}

func distinctSlots(cal *models.Calendar) []*models.Slot {
	seen := make(map[*models.Slot]struct{})
	var out []*models.Slot
	for _, occ := range cal.Occurrences {
		if _, ok := seen[occ.Slot]; ok {
			continue
		}
		seen[occ.Slot] = struct{}{}
		out = append(out, occ.Slot)
	}
	return out
}

// Restarts is the number of BadSituation restarts of the last Run
func (e *Engine) Restarts() int {
	return e.restarts
}

// Cause describes why the last pass ended in BadSituation
func (e *Engine) Cause() string {
	return e.cause
}

// Reset clears every assignment and counter and reshuffles the queues
func (e *Engine) Reset() {
	e.problem.Registry.Reset()
	e.problem.Calendar.Clear()
	e.queues.Reshuffle()
	e.forgetRound()
	e.cause = ""
}

// Run resets the state and repeats passes until one completes or the restart budget is spent
func (e *Engine) Run(ctx context.Context) error {
	e.restarts = 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.Reset()
		if e.Pass() == Complete {
			return nil
		}
		e.obs.Restart()
		if e.restarts >= e.maxRestarts {
			return &apperrors.InfeasibleError{Cause: e.cause, Restarts: e.restarts}
		}
		e.restarts++
		e.log.Debugf("Restarting trial (%d): %s", e.restarts, e.cause)
	}
}

// Pass walks the calendar once, starting from the current state
func (e *Engine) Pass() Outcome {
	for _, occ := range e.problem.Calendar.Occurrences {
		e.preAssign(occ)
		if occ.Slot.HighPriority {
			e.drainPriority(occ)
		}
		if !e.fill(occ) {
			return BadSituation
		}
	}
	return Complete
}

func (e *Engine) preAssign(occ *models.Occurrence) {
	for _, id := range e.pre[occ.Index] {
		e.book(occ, id)
	}
}

// drainPriority offers every group of the lane at most once
func (e *Engine) drainPriority(occ *models.Occurrence) {
	for tries := e.queues.PriorityLen(); tries > 0 && occ.Remaining() > 0; tries-- {
		g := e.queues.NextPriority()
		if g == nil {
			return
		}
		if e.judge(occ, g, true) == accept {
			e.place(occ, g)
		}
	}
}

func (e *Engine) fill(occ *models.Occurrence) bool {
	consecutive := 0
	for draws := 0; occ.Remaining() > 0; draws++ {
		if draws >= e.maxDraws {
			e.cause = fmt.Sprintf("no acceptable group for %s after %d draws", occ, draws)
			return false
		}
		g := e.queues.Next(occ)
		if g == nil {
			e.cause = "no sibling groups to draw from"
			return false
		}

		switch e.judge(occ, g, false) {
		case accept:
			e.place(occ, g)
			consecutive = 0
		case overflow:
			e.cause = fmt.Sprintf("group of %d drawn for %s with %d seats left", g.Size(), occ, occ.Remaining())
			return false
		default:
			consecutive++
			if consecutive > e.queues.Remaining(occ) {
				e.forgetRound()
				consecutive = 0
			}
		}
	}
	return true
}

// judge decides on a drawn group. The priority lane ignores the round memory and never overflows.
func (e *Engine) judge(occ *models.Occurrence, g *models.SiblingGroup, lane bool) verdict {
	if g.Size() > occ.Slot.Servers {
		return reject
	}
	if _, seen := e.chosen[g.ID]; seen && !lane {
		return reject
	}
	if !e.eligible(occ, g) || !e.attends(occ, g) {
		return reject
	}
	if g.Size() > occ.Remaining() {
		if lane {
			return reject
		}
		return overflow
	}
	if rest := occ.Remaining() - g.Size(); rest > 0 && !e.completable(occ, g, rest) {
		return reject
	}
	return accept
}

// eligible applies the deterministic rules: avoid set, vacations, location, one mass per day.
// Persons pre-assigned anywhere on the date are never drawn that day.
func (e *Engine) eligible(occ *models.Occurrence, g *models.SiblingGroup) bool {
	if !g.Available(occ) {
		return false
	}
	for _, id := range g.Members {
		if _, taken := e.reserved[occ.Date][id]; taken {
			return false
		}
		p := e.problem.Registry.Person(id)
		if p.ServedOn(occ.Date) || p.AttendanceFor(occ.Slot) <= 0 {
			return false
		}
	}
	return true
}

func (e *Engine) attends(occ *models.Occurrence, g *models.SiblingGroup) bool {
	for _, id := range g.Members {
		prob := e.problem.Registry.Person(id).AttendanceFor(occ.Slot)
		if prob < 1 && e.rng.Float64() >= prob {
			return false
		}
	}
	return true
}

// completable reports whether the seats left after placing g can still be filled exactly
func (e *Engine) completable(occ *models.Occurrence, g *models.SiblingGroup, rest int) bool {
	sizes := make([]int, 0, len(e.problem.Groups))
	for _, h := range e.problem.Groups {
		if h == g || h.Size() > rest {
			continue
		}
		if e.eligible(occ, h) {
			sizes = append(sizes, h.Size())
		}
	}
	return subsetSum(sizes, rest)
}

func (e *Engine) place(occ *models.Occurrence, g *models.SiblingGroup) {
	for _, id := range g.Members {
		e.book(occ, id)
	}
	e.chosen[g.ID] = struct{}{}
	if len(e.chosen) >= len(e.problem.Groups) {
		e.forgetRound()
	}
}

func (e *Engine) book(occ *models.Occurrence, id int) {
	occ.Servers = append(occ.Servers, id)
	p := e.problem.Registry.Person(id)
	p.Services = append(p.Services, models.Service{Date: occ.Date, SlotKey: occ.Slot.RotationKey()})
}

func (e *Engine) forgetRound() {
	for k := range e.chosen {
		delete(e.chosen, k)
	}
}

// ResolvePreAssignments maps the names bound to every occurrence to person ids
func ResolvePreAssignments(p *Problem) ([][]int, error) {
	pre := make([][]int, len(p.Calendar.Occurrences))
	for i, occ := range p.Calendar.Occurrences {
		names := occ.Slot.PreAssignedOn(occ.Date)
		if len(names) == 0 {
			continue
		}
		seen := make(map[int]struct{}, len(names))
		for _, name := range names {
			id, ok := p.Registry.Lookup(name)
			if !ok {
				return nil, apperrors.NewConfigErrorf("pre_assigned", "%s: unknown person %q", occ, name)
			}
			if _, dup := seen[id]; dup {
				return nil, apperrors.NewConfigErrorf("pre_assigned", "%s: %s is pre-assigned twice", occ, name)
			}
			seen[id] = struct{}{}
			pre[i] = append(pre[i], id)
		}
		if len(pre[i]) > occ.Slot.Servers {
			return nil, apperrors.NewConfigErrorf("pre_assigned", "%s: %d pre-assigned servers exceed the %d required", occ, len(pre[i]), occ.Slot.Servers)
		}
	}
	return pre, nil
}

// CheckStructure fails when some occurrence can never be staffed exactly, whatever the draw order
func CheckStructure(p *Problem, pre [][]int) error {
	busy := reservedByDay(p, pre)
	for i, occ := range p.Calendar.Occurrences {
		need := occ.Slot.Servers - len(pre[i])
		if need == 0 {
			continue
		}
		var sizes []int
		for _, g := range p.Groups {
			if g.Size() > need || !g.Available(occ) {
				continue
			}
			ok := true
			for _, id := range g.Members {
				_, taken := busy[occ.Date][id]
				if taken || p.Registry.Person(id).AttendanceFor(occ.Slot) <= 0 {
					ok = false
					break
				}
			}
			if ok {
				sizes = append(sizes, g.Size())
			}
		}
		if !subsetSum(sizes, need) {
			return apperrors.NewConfigErrorf("slots", "%s needs %d servers but no combination of available sibling groups adds up to it", occ, need)
		}
	}
	return nil
}

func reservedByDay(p *Problem, pre [][]int) map[time.Time]map[int]struct{} {
	busy := make(map[time.Time]map[int]struct{})
	for i, occ := range p.Calendar.Occurrences {
		for _, id := range pre[i] {
			if busy[occ.Date] == nil {
				busy[occ.Date] = make(map[int]struct{})
			}
			busy[occ.Date][id] = struct{}{}
		}
	}
	return busy
}

func subsetSum(sizes []int, target int) bool {
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
