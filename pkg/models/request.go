package models

// VacationRecord is an inclusive absence range in request form
type VacationRecord struct {
	Start string `json:"start" yaml:"start" validate:"required"`
	End   string `json:"end" yaml:"end" validate:"required"`
}

// PersonRecord is a pre-parsed person entry
type PersonRecord struct {
	Name         string             `json:"name" yaml:"name" validate:"required"`
	Siblings     []string           `json:"siblings,omitempty" yaml:"siblings"`
	Avoid        []string           `json:"avoid,omitempty" yaml:"avoid"`
	Vacations    []VacationRecord   `json:"vacations,omitempty" yaml:"vacations" validate:"dive"`
	Locations    []string           `json:"locations,omitempty" yaml:"locations"`
	Attendance   map[string]float64 `json:"attendance,omitempty" yaml:"attendance" validate:"dive,gte=0,lte=1"`
	HighPriority bool               `json:"high_priority,omitempty" yaml:"high_priority"`
}

// SlotRecord is a pre-parsed slot entry. Exactly one of Weekday, Date or HolidayOffset anchors it.
type SlotRecord struct {
	ID            string `json:"id" yaml:"id" validate:"required"`
	Weekday       string `json:"weekday,omitempty" yaml:"weekday"`
	Date          string `json:"date,omitempty" yaml:"date"`
	HolidayOffset *int   `json:"holiday_offset,omitempty" yaml:"holiday_offset"`
	// Custom slots are added on top of whatever else falls on their date
	Custom       bool   `json:"custom,omitempty" yaml:"custom"`
	Time         string `json:"time" yaml:"time" validate:"required"`
	Servers      int    `json:"servers" yaml:"servers" validate:"gte=1"`
	Location     string `json:"location,omitempty" yaml:"location"`
	Comment      string `json:"comment,omitempty" yaml:"comment"`
	HighPriority bool   `json:"high_priority,omitempty" yaml:"high_priority"`

	PreAssigned       []string            `json:"pre_assigned,omitempty" yaml:"pre_assigned"`
	PreAssignedByDate map[string][]string `json:"pre_assigned_by_date,omitempty" yaml:"pre_assigned_by_date"`
	TreatedAs         string              `json:"treated_as,omitempty" yaml:"treated_as"`
}

// PlanRequest is the data structure for the planning endpoint and the planner CLI
type PlanRequest struct {
	Persons  []PersonRecord `json:"persons" yaml:"persons" validate:"required,min=1,dive"`
	Slots    []SlotRecord   `json:"slots" yaml:"slots" validate:"required,min=1,dive"`
	Start    string         `json:"start" yaml:"start" validate:"required"`
	End      string         `json:"end" yaml:"end" validate:"required"`
	Strategy string         `json:"strategy,omitempty" yaml:"strategy" validate:"omitempty,oneof=heuristic solver"`
	Trials   int            `json:"trials,omitempty" yaml:"trials" validate:"gte=0"`
	Seed     int64          `json:"seed,omitempty" yaml:"seed"`
}

// MassAssignment is one rendered occurrence of a plan
type MassAssignment struct {
	Date     string   `json:"date"`
	Time     string   `json:"time"`
	SlotID   string   `json:"slot_id"`
	Comment  string   `json:"comment,omitempty"`
	Location string   `json:"location,omitempty"`
	Servers  []string `json:"servers"`
}

// DistributionEntry is how often a person serves in a plan
type DistributionEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// FitnessReport is the breakdown of a plan's fairness score
type FitnessReport struct {
	LoadVariance float64 `json:"load_variance"`
	GapVariance  float64 `json:"gap_variance"`
	SlotVariance float64 `json:"slot_variance"`
	Score        float64 `json:"score"`
}

// PlanResponse is the data structure for the planning result
type PlanResponse struct {
	RunID        string              `json:"run_id"`
	Strategy     string              `json:"strategy"`
	Start        string              `json:"start"`
	End          string              `json:"end"`
	Trials       int                 `json:"trials"`
	Fitness      FitnessReport       `json:"fitness"`
	Calendar     []MassAssignment    `json:"calendar"`
	Distribution []DistributionEntry `json:"distribution"`
}

// ValidationResponse summarizes a request that passed validation
type ValidationResponse struct {
	Persons     int `json:"person_count"`
	Groups      int `json:"group_count"`
	Slots       int `json:"slot_count"`
	Occurrences int `json:"occurrence_count"`
	Seats       int `json:"seat_count"`
}
