package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

// CalendarEvent is one VEVENT in an exported feed.
type CalendarEvent struct {
	UID         string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Cancelled   bool
	Updated     time.Time
}

// ICSExporter renders events as an RFC 5545 calendar.
type ICSExporter struct {
	productID string
}

// NewICSExporter constructs an ICS exporter.
func NewICSExporter(productID string) *ICSExporter {
	if productID == "" {
		productID = "-//lesson-engine//EN"
	}
	return &ICSExporter{productID: productID}
}

// Render serialises events into an iCalendar document named calName.
func (e *ICSExporter) Render(calName string, events []CalendarEvent) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(e.productID)
	if calName != "" {
		cal.SetXWRCalName(calName)
	}

	for _, ev := range events {
		if ev.UID == "" {
			return nil, fmt.Errorf("calendar event requires a uid")
		}
		if !ev.End.After(ev.Start) {
			return nil, fmt.Errorf("calendar event %s ends before it starts", ev.UID)
		}
		stamp := ev.Updated
		if stamp.IsZero() {
			stamp = ev.Start
		}

		event := cal.AddEvent(ev.UID)
		event.SetDtStampTime(stamp.UTC())
		event.SetStartAt(ev.Start.UTC())
		event.SetEndAt(ev.End.UTC())
		event.SetSummary(ev.Summary)
		if ev.Description != "" {
			event.SetDescription(ev.Description)
		}
		if ev.Cancelled {
			event.SetProperty(ics.ComponentPropertyStatus, "CANCELLED")
		} else {
			event.SetProperty(ics.ComponentPropertyStatus, "CONFIRMED")
		}
	}

	return []byte(cal.Serialize()), nil
}
