package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/csa/model"
)

type CalendarCSV struct {
	ServiceID string `csv:"service_id"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
	Monday    int8   `csv:"monday"`
	Tuesday   int8   `csv:"tuesday"`
	Wednesday int8   `csv:"wednesday"`
	Thursday  int8   `csv:"thursday"`
	Friday    int8   `csv:"friday"`
	Saturday  int8   `csv:"saturday"`
	Sunday    int8   `csv:"sunday"`
}

func ParseCalendar(data io.Reader) ([]model.Calendar, error) {
	calendarCsv := []*CalendarCSV{}
	if err := gocsv.Unmarshal(data, &calendarCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling csv: %w", err)
	}

	knownServices := map[string]bool{}
	calendars := make([]model.Calendar, 0, len(calendarCsv))

	for _, c := range calendarCsv {
		if c.ServiceID == "" {
			return nil, fmt.Errorf("empty service_id")
		}
		if knownServices[c.ServiceID] {
			return nil, fmt.Errorf("repeated service_id '%s'", c.ServiceID)
		}
		knownServices[c.ServiceID] = true

		var weekday int8
		for _, day := range []struct {
			value   int8
			weekday time.Weekday
		}{
			{c.Monday, time.Monday},
			{c.Tuesday, time.Tuesday},
			{c.Wednesday, time.Wednesday},
			{c.Thursday, time.Thursday},
			{c.Friday, time.Friday},
			{c.Saturday, time.Saturday},
			{c.Sunday, time.Sunday},
		} {
			switch day.value {
			case 1:
				weekday |= 1 << day.weekday
			case 0:
			default:
				return nil, fmt.Errorf("invalid %s value '%d'", day.weekday, day.value)
			}
		}

		_, err := time.ParseInLocation("20060102", c.StartDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parsing start_date: %w", err)
		}

		_, err = time.ParseInLocation("20060102", c.EndDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parsing end_date: %w", err)
		}

		calendars = append(calendars, model.Calendar{
			ServiceID: c.ServiceID,
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			Weekday:   weekday,
		})
	}

	return calendars, nil
}

// Service IDs active on the given YYYYMMDD date.
func ActiveServices(
	calendars []model.Calendar,
	calendarDates []model.CalendarDate,
	date string,
) (map[string]bool, error) {
	parsedDate, err := time.Parse("20060102", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %s", date)
	}

	services := map[string]bool{}
	for _, calendar := range calendars {
		if calendar.Weekday&(1<<parsedDate.Weekday()) == 0 {
			continue
		}
		if calendar.StartDate > date || calendar.EndDate < date {
			continue
		}
		services[calendar.ServiceID] = true
	}

	for _, cd := range calendarDates {
		if cd.Date != date {
			continue
		}
		switch cd.ExceptionType {
		case model.ExceptionTypeAdded:
			services[cd.ServiceID] = true
		case model.ExceptionTypeRemoved:
			delete(services, cd.ServiceID)
		}
	}

	return services, nil
}
