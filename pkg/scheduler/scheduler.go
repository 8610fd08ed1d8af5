// Package scheduler assigns sibling groups to the occurrences of a calendar.
//
// A trial walks the calendar once, drawing groups from fair rotation queues. When a draw
// order makes the calendar unfillable the pass reports BadSituation and the trial restarts
// from a clean state. The Optimizer runs many trials and keeps the fairest complete plan.
package scheduler

import (
	"github.com/arnavshah/mass-scheduler-go/pkg/models"
	"github.com/arnavshah/mass-scheduler-go/pkg/registry"
)

// Problem bundles everything one trial mutates or reads
type Problem struct {
	Registry *registry.Registry
	Groups   []*models.SiblingGroup
	Calendar *models.Calendar
}

// Clone gives a worker its private copy. Groups and slots are immutable and shared.
func (p *Problem) Clone() *Problem {
	return &Problem{
		Registry: p.Registry.Clone(),
		Groups:   p.Groups,
		Calendar: p.Calendar.Clone(),
	}
}

// Seats is the total number of servers the calendar asks for
func (p *Problem) Seats() int {
	total := 0
	for _, occ := range p.Calendar.Occurrences {
		total += occ.Slot.Servers
	}
	return total
}

// Result is a complete plan together with its fitness
type Result struct {
	Registry *registry.Registry
	Calendar *models.Calendar
	Fitness  Fitness
	// Trial is the index of the winning trial, Trials the number that completed
	Trial    int
	Trials   int
	Restarts int
	// History lists every accepted best score in acceptance order
	History []float64
}

// Observer receives progress events. Implementations must be safe for concurrent use.
type Observer interface {
	Restart()
	TrialFinished(ok bool, score float64)
}

type nopObserver struct{}

func (nopObserver) Restart()                    {}
func (nopObserver) TrialFinished(bool, float64) {}
