// Package calendar renders alarms as an iCalendar feed, so they can be
// viewed next to other events in a calendar application.
package calendar

import (
	"fmt"
	"io"
	"time"

	"bsid.es/despertador"
	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

const ProductID = "-//bsid.es//despertador//EN"

// floatingLayout formats a local date-time without zone, which calendar
// clients read as wall-clock time wherever they are.
const floatingLayout = "20060102T150405"

// Export writes one VEVENT per enabled alarm, starting at the alarm's next
// trigger after now. Recurring alarms carry an RRULE and every event a
// display VALARM at its start. A feed needs at least one event, so having no
// enabled alarm is an ErrNotFound.
func Export(w io.Writer, alarms []despertador.Alarm, now time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")

	for i := range alarms {
		a := &alarms[i]
		if !a.Enabled {
			continue
		}
		event, err := alarmEvent(a, now)
		if err != nil {
			return fmt.Errorf("alarm %s: %w", a.ID, err)
		}
		cal.Children = append(cal.Children, event.Component)
	}
	if len(cal.Children) == 0 {
		return despertador.Errorf(despertador.ErrNotFound, "no enabled alarms to export")
	}

	return ical.NewEncoder(w).Encode(cal)
}

func alarmEvent(a *despertador.Alarm, now time.Time) (*ical.Event, error) {
	start, err := despertador.NextTrigger(a.Time, a.Recurrence, now)
	if err != nil {
		return nil, err
	}

	summary := a.Display.Label
	if summary == "" {
		summary = "Alarm " + a.Time.String()
	}

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, a.ID+"@despertador")
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.SetText(ical.PropSummary, summary)

	dtstart := ical.NewProp(ical.PropDateTimeStart)
	dtstart.Value = start.Format(floatingLayout)
	event.Props.Set(dtstart)

	if despertador.IsRecurring(a.Recurrence) {
		event.Props.SetRecurrenceRule(recurrenceRule(a.Recurrence))
	}

	alarm := ical.NewComponent(ical.CompAlarm)
	alarm.Props.SetText(ical.PropAction, "DISPLAY")
	alarm.Props.SetText(ical.PropDescription, summary)
	trigger := ical.NewProp(ical.PropTrigger)
	trigger.SetValueType(ical.ValueDuration)
	trigger.Value = "PT0S"
	alarm.Props.Set(trigger)
	event.Children = append(event.Children, alarm)

	return event, nil
}

var weekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

func recurrenceRule(r despertador.Recurrence) *rrule.ROption {
	if r.Days == despertador.AllDays {
		return &rrule.ROption{Freq: rrule.DAILY}
	}
	rule := &rrule.ROption{Freq: rrule.WEEKLY}
	for _, d := range r.Days.Days() {
		rule.Byweekday = append(rule.Byweekday, weekdays[d])
	}
	return rule
}
