package scheduler

import (
	"sort"

	"github.com/arnavshah/mass-scheduler-go/pkg/models"
	"github.com/arnavshah/mass-scheduler-go/pkg/registry"
)

// Weights combine the variance terms into one score
type Weights struct {
	Load float64
	Gap  float64
	Slot float64
}

// DefaultWeights ranks plans mostly by load, with gaps as a tie breaker
func DefaultWeights() Weights {
	return Weights{Load: 1.0, Gap: 0.1}
}

// Fitness is the breakdown of a plan's score. Lower is fairer.
type Fitness struct {
	LoadVariance float64
	GapVariance  float64
	SlotVariance float64
	Score        float64
}

// Report converts the fitness into its response form
func (f Fitness) Report() models.FitnessReport {
	return models.FitnessReport{
		LoadVariance: f.LoadVariance,
		GapVariance:  f.GapVariance,
		SlotVariance: f.SlotVariance,
		Score:        f.Score,
	}
}

// Score computes the population variance of service counts, of the day gaps between
// consecutive services, and of per-rotation counts, and weighs them together.
func Score(reg *registry.Registry, w Weights) Fitness {
	persons := reg.Persons()
	loads := make([]float64, 0, len(persons))
	var gaps []float64
	perKey := make(map[string][]float64)

	for i, p := range persons {
		loads = append(loads, float64(p.ServiceCount()))
		for j := 1; j < len(p.Services); j++ {
			days := p.Services[j].Date.Sub(p.Services[j-1].Date).Hours() / 24
			gaps = append(gaps, days)
		}
		for _, s := range p.Services {
			counts, ok := perKey[s.SlotKey]
			if !ok {
				counts = make([]float64, len(persons))
				perKey[s.SlotKey] = counts
			}
			counts[i]++
		}
	}

	f := Fitness{
		LoadVariance: pvariance(loads),
		GapVariance:  pvariance(gaps),
	}
	if len(perKey) > 0 {
		keys := make([]string, 0, len(perKey))
		for k := range perKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sum float64
		for _, k := range keys {
			sum += pvariance(perKey[k])
		}
		f.SlotVariance = sum / float64(len(keys))
	}
	f.Score = w.Load*f.LoadVariance + w.Gap*f.GapVariance + w.Slot*f.SlotVariance
	return f
}

func pvariance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return sq / float64(len(xs))
}
