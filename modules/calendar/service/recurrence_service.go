package service

import (
	"context"
	"strings"
	"time"

	"chronos-server/core/constants"
	"chronos-server/core/logger"
	"chronos-server/modules/calendar/entity"
	"chronos-server/modules/calendar/repository"

	"github.com/teambition/rrule-go"
)

// RecurrenceExpander materializes recurring events into concrete occurrence
// rows inside a fixed horizon around the current time.
type RecurrenceExpander struct {
	eventRepo repository.EventRepository
	now       func() time.Time
}

func NewRecurrenceExpander(eventRepo repository.EventRepository) *RecurrenceExpander {
	return &RecurrenceExpander{
		eventRepo: eventRepo,
		now:       time.Now,
	}
}

// Expand computes the occurrence set of a recurring event within the
// expansion horizon, capped at a fixed instance count. The boolean reports
// whether the cap truncated the set.
func (e *RecurrenceExpander) Expand(event *entity.Event) ([]entity.EventInstance, bool, error) {
	ruleText := strings.TrimPrefix(*event.RecurrenceRule, "RRULE:")
	rule, err := rrule.StrToRRule(ruleText)
	if err != nil {
		return nil, false, err
	}
	rule.DTStart(event.StartTS.UTC())

	now := e.now().UTC()
	from := now.AddDate(-constants.ExpansionWindowYears, 0, 0)
	to := now.AddDate(constants.ExpansionWindowYears, 0, 0)

	occurrences := rule.Between(from, to, true)
	truncated := len(occurrences) > constants.MaxInstancesPerEvent
	if truncated {
		occurrences = occurrences[:constants.MaxInstancesPerEvent]
	}

	duration := event.Duration()
	instances := make([]entity.EventInstance, 0, len(occurrences))
	for _, start := range occurrences {
		start = start.UTC()
		instances = append(instances, entity.EventInstance{
			EventID:         event.ID,
			InstanceStartTS: start,
			InstanceEndTS:   start.Add(duration),
			OriginalStartTS: start,
			Status:          event.Status,
			IsException:     false,
		})
	}
	return instances, truncated, nil
}

// Rebuild replaces the stored occurrence set of a recurring event. A rule
// that fails to parse leaves the existing instances in place so a bad sync
// payload never wipes a previously valid series.
func (e *RecurrenceExpander) Rebuild(ctx context.Context, event *entity.Event) error {
	if !event.IsRecurring() {
		return nil
	}

	instances, truncated, err := e.Expand(event)
	if err != nil {
		logger.Warn("RecurrenceExpander:Rebuild:ParseError",
			"event_id", event.ID, "rule", *event.RecurrenceRule, "error", err)
		return nil
	}
	if truncated {
		logger.Warn("RecurrenceExpander:Rebuild:Truncated",
			"event_id", event.ID, "instances", len(instances))
	}

	if err := e.eventRepo.ReplaceInstances(ctx, event.ID, instances); err != nil {
		logger.Error("RecurrenceExpander:Rebuild:ReplaceInstances:Error",
			"event_id", event.ID, "error", err)
		return err
	}
	return nil
}
