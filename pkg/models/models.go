package models

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the layout used for date keys and date fields in requests
const DateLayout = "2006-01-02"

// Date returns the civil date as midnight UTC
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the clock part of t and normalizes it to UTC
func Truncate(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// DateKey formats a date the way pre-assignments and stored plans key it
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate accepts ISO dates and the day-first dotted form used by parish calendars
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{DateLayout, "02.01.2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// TimeOfDay is a wall clock time expressed in minutes after midnight
type TimeOfDay int

// ParseTimeOfDay parses an "HH:MM" string
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// DateRange is an inclusive range of civil dates
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether d falls inside the range, both ends included
func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Service records one mass a person served during a trial
type Service struct {
	Date    time.Time `json:"date"`
	SlotKey string    `json:"slot_key"`
}

// Person represents a volunteer that can be scheduled for duty
type Person struct {
	ID           int                 `json:"id"`
	Name         string              `json:"name"`
	SiblingNames []string            `json:"siblings,omitempty"`
	Avoid        map[string]struct{} `json:"-"`
	Vacations    []DateRange         `json:"vacations,omitempty"`
	Locations    map[string]struct{} `json:"-"`
	Attendance   map[string]float64  `json:"attendance,omitempty"`
	HighPriority bool                `json:"high_priority,omitempty"`

	// Services is mutated by the assignment engine and reset every trial
	Services []Service `json:"services"`
}

// Blocks reports whether the person refuses the slot, either by id or by time of day
func (p *Person) Blocks(slot *Slot) bool {
	return blocks(p.Avoid, slot)
}

// OnVacation reports whether d falls inside any vacation range
func (p *Person) OnVacation(d time.Time) bool {
	return onVacation(p.Vacations, d)
}

// CanServeAt reports whether the person accepts the location. An empty location always matches.
func (p *Person) CanServeAt(location string) bool {
	if location == "" || len(p.Locations) == 0 {
		return true
	}
	_, ok := p.Locations[location]
	return ok
}

// AttendanceFor returns the probability that the person actually accepts a draw for the slot
func (p *Person) AttendanceFor(slot *Slot) float64 {
	if v, ok := p.Attendance[slot.ID]; ok {
		return v
	}
	if slot.TreatedAs != "" {
		if v, ok := p.Attendance[slot.TreatedAs]; ok {
			return v
		}
	}
	return 1.0
}

// ServedOn reports whether the person already serves a mass on d.
// Services are appended in chronological order, so the scan stops at the first earlier date.
func (p *Person) ServedOn(d time.Time) bool {
	for i := len(p.Services) - 1; i >= 0; i-- {
		sd := p.Services[i].Date
		if sd.Equal(d) {
			return true
		}
		if sd.Before(d) {
			return false
		}
	}
	return false
}

// ServiceCount is the number of masses served during the current trial
func (p *Person) ServiceCount() int {
	return len(p.Services)
}

// Clone returns a deep copy. Constraint attributes are immutable after construction and shared.
func (p *Person) Clone() *Person {
	cp := *p
	cp.Services = append([]Service(nil), p.Services...)
	return &cp
}

// SiblingGroup is the atomic allocation unit: its members are assigned together or not at all
type SiblingGroup struct {
	ID      int   `json:"id"`
	Members []int `json:"members"`

	Avoid     map[string]struct{} `json:"-"`
	Vacations []DateRange         `json:"-"`
	// Locations is the intersection of the restricted members' location sets.
	// Restricted is false when every member is unrestricted.
	Locations    map[string]struct{} `json:"-"`
	Restricted   bool                `json:"-"`
	HighPriority bool                `json:"high_priority,omitempty"`
}

// Size returns the member count
func (g *SiblingGroup) Size() int {
	return len(g.Members)
}

// Blocks reports whether any member refuses the slot
func (g *SiblingGroup) Blocks(slot *Slot) bool {
	return blocks(g.Avoid, slot)
}

// OnVacation reports whether any member is away on d
func (g *SiblingGroup) OnVacation(d time.Time) bool {
	return onVacation(g.Vacations, d)
}

// CanServeAt reports whether every member accepts the location
func (g *SiblingGroup) CanServeAt(location string) bool {
	if location == "" || !g.Restricted {
		return true
	}
	_, ok := g.Locations[location]
	return ok
}

// Available combines the deterministic availability rules for one occurrence
func (g *SiblingGroup) Available(occ *Occurrence) bool {
	return !g.Blocks(occ.Slot) && !g.OnVacation(occ.Date) && g.CanServeAt(occ.Slot.Location)
}

func blocks(avoid map[string]struct{}, slot *Slot) bool {
	if len(avoid) == 0 {
		return false
	}
	if _, ok := avoid[slot.ID]; ok {
		return true
	}
	if slot.TreatedAs != "" {
		if _, ok := avoid[slot.TreatedAs]; ok {
			return true
		}
	}
	_, ok := avoid[slot.Time.String()]
	return ok
}

func onVacation(ranges []DateRange, d time.Time) bool {
	for _, r := range ranges {
		if r.Contains(d) {
			return true
		}
	}
	return false
}

// SlotKind tells how a slot is anchored in the calendar
type SlotKind int

const (
	SlotWeekly SlotKind = iota
	SlotFixed
	SlotHoliday
	SlotCustom
)

func (k SlotKind) String() string {
	switch k {
	case SlotWeekly:
		return "weekly"
	case SlotFixed:
		return "fixed"
	case SlotHoliday:
		return "holiday"
	case SlotCustom:
		return "custom"
	}
	return "unknown"
}

// Slot is the template of a mass: when it happens and how many servers it needs
type Slot struct {
	ID            string       `json:"id"`
	Kind          SlotKind     `json:"kind"`
	Weekday       time.Weekday `json:"weekday"`
	Date          time.Time    `json:"date"`
	Annual        bool         `json:"annual,omitempty"`
	HolidayOffset int          `json:"holiday_offset"`
	Time          TimeOfDay    `json:"time"`
	Servers       int          `json:"servers"`
	Location      string       `json:"location,omitempty"`
	Comment       string       `json:"comment,omitempty"`
	HighPriority  bool         `json:"high_priority,omitempty"`

	PreAssigned       []string            `json:"pre_assigned,omitempty"`
	PreAssignedByDate map[string][]string `json:"pre_assigned_by_date,omitempty"`

	// TreatedAs points at another slot whose rotation and quota this slot shares
	TreatedAs string `json:"treated_as,omitempty"`
}

// RotationKey identifies the rotation queue and quota the slot draws from
func (s *Slot) RotationKey() string {
	if s.TreatedAs != "" {
		return s.TreatedAs
	}
	return s.ID
}

// MatchesDate reports whether a fixed or custom slot falls on d
func (s *Slot) MatchesDate(d time.Time) bool {
	if s.Annual {
		return s.Date.Month() == d.Month() && s.Date.Day() == d.Day()
	}
	return s.Date.Equal(d)
}

// PreAssignedOn returns the names bound to the slot on d, global ones first
func (s *Slot) PreAssignedOn(d time.Time) []string {
	names := append([]string(nil), s.PreAssigned...)
	return append(names, s.PreAssignedByDate[DateKey(d)]...)
}

// Occurrence is one concrete mass: a slot on a date with its assigned servers
type Occurrence struct {
	Index   int       `json:"index"`
	Date    time.Time `json:"date"`
	Slot    *Slot     `json:"slot"`
	Servers []int     `json:"servers"`
}

// Remaining is the number of seats still open
func (o *Occurrence) Remaining() int {
	return o.Slot.Servers - len(o.Servers)
}

func (o *Occurrence) String() string {
	return fmt.Sprintf("%s %s (%s)", DateKey(o.Date), o.Slot.Time, o.Slot.ID)
}

// Calendar is the time-ordered sequence of occurrences for a planning horizon
type Calendar struct {
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	Occurrences []*Occurrence `json:"occurrences"`
}

// Clear removes every assignment
func (c *Calendar) Clear() {
	for _, occ := range c.Occurrences {
		occ.Servers = occ.Servers[:0]
	}
}

// Clone copies the occurrences and their server lists. Slots are immutable and shared.
func (c *Calendar) Clone() *Calendar {
	cp := &Calendar{Start: c.Start, End: c.End, Occurrences: make([]*Occurrence, len(c.Occurrences))}
	for i, occ := range c.Occurrences {
		o := *occ
		o.Servers = append([]int(nil), occ.Servers...)
		cp.Occurrences[i] = &o
	}
	return cp
}

// Days groups the occurrences by date, keeping order
func (c *Calendar) Days() [][]*Occurrence {
	var days [][]*Occurrence
	for _, occ := range c.Occurrences {
		n := len(days)
		if n > 0 && days[n-1][0].Date.Equal(occ.Date) {
			days[n-1] = append(days[n-1], occ)
			continue
		}
		days = append(days, []*Occurrence{occ})
	}
	return days
}

// SortOccurrences orders by date, then time of day, then slot id, and renumbers the indexes
func SortOccurrences(occs []*Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		a, b := occs[i], occs[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Slot.Time != b.Slot.Time {
			return a.Slot.Time < b.Slot.Time
		}
		return a.Slot.ID < b.Slot.ID
	})
	for i, occ := range occs {
		occ.Index = i
	}
}
