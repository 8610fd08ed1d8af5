package calendar

import (
	"fmt"
	"time"

	"github.com/arnavshah/mass-scheduler-go/pkg/apperrors"
	"github.com/arnavshah/mass-scheduler-go/pkg/models"
)

// Materialize expands the event calendar over the inclusive horizon into dated occurrences
func Materialize(ec *EventCalendar, start, end time.Time) (*models.Calendar, error) {
	start, end = models.Truncate(start), models.Truncate(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%s..%s: %w", models.DateKey(start), models.DateKey(end), apperrors.ErrInvalidHorizon)
	}

	cal := &models.Calendar{Start: start, End: end}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		for _, slot := range ec.Resolve(d) {
			cal.Occurrences = append(cal.Occurrences, &models.Occurrence{Date: d, Slot: slot})
		}
	}
	models.SortOccurrences(cal.Occurrences)
	return cal, nil
}
