// Package calendar resolves which masses take place on a date and expands a planning horizon
// into concrete occurrences.
package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/arnavshah/mass-scheduler-go/pkg/apperrors"
	"github.com/arnavshah/mass-scheduler-go/pkg/models"
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// EventCalendar maps dates to the slots taking place on them
type EventCalendar struct {
	slots   []*models.Slot
	byID    map[string]*models.Slot
	weekly  map[time.Weekday][]*models.Slot
	fixed   []*models.Slot
	holiday []*models.Slot
	custom  []*models.Slot
}

// New validates the slot records and indexes them by anchor
func New(records []models.SlotRecord) (*EventCalendar, error) {
	if len(records) == 0 {
		return nil, apperrors.NewConfigError("slots", "at least one slot is required")
	}

	c := &EventCalendar{
		byID:   make(map[string]*models.Slot, len(records)),
		weekly: make(map[time.Weekday][]*models.Slot),
	}
	seen := make(map[string]string)

	for i, rec := range records {
		slot, err := parseSlot(i, rec)
		if err != nil {
			return nil, err
		}
		if _, dup := c.byID[slot.ID]; dup {
			return nil, apperrors.NewConfigErrorf("slots", "duplicate slot id %q", slot.ID)
		}

		key := anchorKey(slot)
		if other, dup := seen[key]; dup {
			return nil, apperrors.NewConfigErrorf("slots", "slots %q and %q both claim %s", other, slot.ID, key)
		}
		seen[key] = slot.ID

		c.byID[slot.ID] = slot
		c.slots = append(c.slots, slot)
		switch slot.Kind {
		case models.SlotWeekly:
			c.weekly[slot.Weekday] = append(c.weekly[slot.Weekday], slot)
		case models.SlotFixed:
			c.fixed = append(c.fixed, slot)
		case models.SlotHoliday:
			c.holiday = append(c.holiday, slot)
		case models.SlotCustom:
			c.custom = append(c.custom, slot)
		}
	}

	for _, slot := range c.slots {
		if slot.TreatedAs == "" {
			continue
		}
		target, ok := c.byID[slot.TreatedAs]
		if !ok {
			return nil, apperrors.NewConfigErrorf("slots", "%s is treated as unknown slot %q", slot.ID, slot.TreatedAs)
		}
		if target == slot || target.TreatedAs != "" {
			return nil, apperrors.NewConfigErrorf("slots", "%s: treated_as must point at a slot without an alias", slot.ID)
		}
	}
	return c, nil
}

func anchorKey(s *models.Slot) string {
	switch s.Kind {
	case models.SlotWeekly:
		return fmt.Sprintf("weekly %s %s", s.Weekday, s.Time)
	case models.SlotHoliday:
		return fmt.Sprintf("easter%+d %s", s.HolidayOffset, s.Time)
	}
	date := models.DateKey(s.Date)
	if s.Annual {
		date = s.Date.Format("01-02")
	}
	return fmt.Sprintf("%s %s %s", s.Kind, date, s.Time)
}

func parseSlot(i int, rec models.SlotRecord) (*models.Slot, error) {
	if rec.ID == "" {
		return nil, apperrors.NewConfigErrorf("slots", "slot #%d has no id", i+1)
	}
	if rec.Servers < 1 {
		return nil, apperrors.NewConfigErrorf("slots", "%s needs at least one server", rec.ID)
	}
	tod, err := models.ParseTimeOfDay(rec.Time)
	if err != nil {
		return nil, apperrors.NewConfigErrorf("slots", "%s: %v", rec.ID, err)
	}

	s := &models.Slot{
		ID:           rec.ID,
		Time:         tod,
		Servers:      rec.Servers,
		Location:     rec.Location,
		Comment:      rec.Comment,
		HighPriority: rec.HighPriority,
		PreAssigned:  append([]string(nil), rec.PreAssigned...),
		TreatedAs:    rec.TreatedAs,
	}

	anchors := 0
	if rec.Weekday != "" {
		anchors++
	}
	if rec.Date != "" {
		anchors++
	}
	if rec.HolidayOffset != nil {
		anchors++
	}
	if anchors != 1 {
		return nil, apperrors.NewConfigErrorf("slots", "%s must set exactly one of weekday, date or holiday_offset", rec.ID)
	}

	switch {
	case rec.Weekday != "":
		if rec.Custom {
			return nil, apperrors.NewConfigErrorf("slots", "%s: custom slots need a date", rec.ID)
		}
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(rec.Weekday))]
		if !ok {
			return nil, apperrors.NewConfigErrorf("slots", "%s: unknown weekday %q", rec.ID, rec.Weekday)
		}
		s.Kind = models.SlotWeekly
		s.Weekday = wd
	case rec.HolidayOffset != nil:
		if rec.Custom {
			return nil, apperrors.NewConfigErrorf("slots", "%s: custom slots need a date", rec.ID)
		}
		s.Kind = models.SlotHoliday
		s.HolidayOffset = *rec.HolidayOffset
	default:
		s.Kind = models.SlotFixed
		if rec.Custom {
			s.Kind = models.SlotCustom
		}
		if s.Date, s.Annual, err = parseAnchorDate(rec.Date); err != nil {
			return nil, apperrors.NewConfigErrorf("slots", "%s: %v", rec.ID, err)
		}
	}

	if len(rec.PreAssignedByDate) > 0 {
		s.PreAssignedByDate = make(map[string][]string, len(rec.PreAssignedByDate))
		for raw, names := range rec.PreAssignedByDate {
			d, err := models.ParseDate(raw)
			if err != nil {
				return nil, apperrors.NewConfigErrorf("slots", "%s pre_assigned_by_date: %v", rec.ID, err)
			}
			key := models.DateKey(d)
			s.PreAssignedByDate[key] = append(s.PreAssignedByDate[key], names...)
		}
	}
	return s, nil
}

// parseAnchorDate accepts a full date or an annual "MM-DD"
func parseAnchorDate(raw string) (time.Time, bool, error) {
	if d, err := models.ParseDate(raw); err == nil {
		return d, false, nil
	}
	// leap year so 02-29 parses
	d, err := time.Parse("2006-01-02", "2000-"+raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid date %q", raw)
	}
	return d, true, nil
}

// Slots returns every slot in declaration order
func (c *EventCalendar) Slots() []*models.Slot {
	return c.slots
}

// Slot looks a slot up by id
func (c *EventCalendar) Slot(id string) (*models.Slot, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Resolve returns the slots taking place on d, ordered by time of day.
// A fixed date overrides a holiday rule, which overrides the weekly recurrence.
// Custom slots are added on top.
func (c *EventCalendar) Resolve(d time.Time) []*models.Slot {
	d = models.Truncate(d)

	var out []*models.Slot
	for _, s := range c.fixed {
		if s.MatchesDate(d) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		// large offsets reach across the new year
		for _, s := range c.holiday {
			for year := d.Year() - 1; year <= d.Year()+1; year++ {
				if Easter(year).AddDate(0, 0, s.HolidayOffset).Equal(d) {
					out = append(out, s)
					break
				}
			}
		}
	}
	if len(out) == 0 {
		out = append(out, c.weekly[d.Weekday()]...)
	}
	for _, s := range c.custom {
		if s.MatchesDate(d) {
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out
}
