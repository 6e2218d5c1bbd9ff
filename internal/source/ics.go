package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"marketcal/internal/calendar"
	"marketcal/internal/domain"
)

// maxOccurrences caps the expansion of a single recurring indicator.
const maxOccurrences = 500

// ICSSource reads economic indicator releases from an iCalendar feed.
// Recurring releases (RRULE) are expanded into the requested month.
//
// SUMMARY is the indicator name, LOCATION the country and PRIORITY the
// impact: 1-4 High, 5 Medium, anything else Low.
type ICSSource struct {
	api  apiClient
	feed string
}

// NewICSSource creates a source for the feed at feedURL.
func NewICSSource(feedURL string, opts Options) *ICSSource {
	return &ICSSource{api: newAPIClient(feedURL, opts), feed: feedURL}
}

func (s *ICSSource) Name() string {
	if u, err := url.Parse(s.feed); err == nil && u.Host != "" {
		return "ics:" + u.Host
	}
	return "ics"
}

// FetchEvents downloads the feed and returns the occurrences in the month.
func (s *ICSSource) FetchEvents(ctx context.Context, year, month int) ([]domain.Event, error) {
	body, err := s.api.get(ctx, "", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching ics feed: %w", err)
	}
	return ParseICS(body, year, month, s.Name())
}

// ParseICS extracts the economic events of one month from an iCalendar
// payload. VEVENTs without a usable DTSTART are skipped.
func ParseICS(body []byte, year, month int, source string) ([]domain.Event, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing ics: %w", err)
	}

	key := calendar.MonthKey{Year: year, Month: month}

	evs := []domain.Event{}
	for _, ve := range cal.Events() {
		start, err := ve.GetStartAt()
		if err != nil {
			continue
		}

		occurrences := []time.Time{start}
		if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
			occurrences, err = expandRRule(p.Value, start, ve.GetProperties(ical.ComponentPropertyExdate), key)
			if err != nil {
				continue
			}
		}

		base := icsEvent(ve, source)
		for _, t := range occurrences {
			date := calendar.DateKey(t.Year(), int(t.Month()), t.Day())
			if !key.Contains(date) {
				continue
			}
			ev := base
			ev.ID = fmt.Sprintf("%s-%s", base.ID, date)
			ev.Date = date
			if hasTime(ve) {
				ev.Time = t.Format("15:04:05")
			}
			evs = append(evs, ev)
		}
	}
	return evs, nil
}

// icsEvent builds the occurrence-independent part of an event.
func icsEvent(ve *ical.VEvent, source string) domain.Event {
	ev := domain.Event{
		Category: domain.CategoryEconomic,
		Impact:   domain.ImpactLow,
		Source:   source,
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Name = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Country = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyPriority); p != nil {
		ev.Impact = impactFromPriority(p.Value)
	}

	// Feeds without a UID still need IDs that are stable across fetches.
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil && p.Value != "" {
		ev.ID = p.Value
	} else {
		ev.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+"|"+ev.Name)).String()
	}
	return ev
}

// expandRRule returns the occurrences of a recurring event that fall in the
// month, measured in the event's own time zone.
func expandRRule(raw string, start time.Time, exdates []*ical.IANAProperty, key calendar.MonthKey) ([]time.Time, error) {
	r, err := rrule.StrToRRule(raw)
	if err != nil {
		return nil, err
	}
	r.DTStart(start)
	loc := start.Location()

	var set rrule.Set
	set.RRule(r)
	for _, p := range exdates {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part)); err == nil {
				set.ExDate(t.In(loc))
			}
		}
	}

	rangeStart := time.Date(key.Year, time.Month(key.Month), 1, 0, 0, 0, 0, loc)
	rangeEnd := rangeStart.AddDate(0, 1, 0).Add(-time.Nanosecond)

	occ := set.Between(rangeStart, rangeEnd, true)
	if len(occ) > maxOccurrences {
		occ = occ[:maxOccurrences]
	}
	return occ, nil
}

// hasTime reports whether DTSTART carries a time of day.
func hasTime(ve *ical.VEvent) bool {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	return p != nil && strings.Contains(p.Value, "T")
}

func impactFromPriority(v string) domain.Impact {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	switch {
	case err != nil || n == 0:
		return domain.ImpactLow
	case n <= 4:
		return domain.ImpactHigh
	case n == 5:
		return domain.ImpactMedium
	default:
		return domain.ImpactLow
	}
}

func parseICSTime(v string) (time.Time, error) {
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.Parse("20060102T150405", v)
	default:
		return time.Parse("20060102", v)
	}
}
