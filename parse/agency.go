package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
)

type AgencyCSV struct {
	ID       string `csv:"agency_id"`
	Name     string `csv:"agency_name"`
	URL      string `csv:"agency_url"`
	Timezone string `csv:"agency_timezone"`
}

// Returns the timezone shared by all agencies.
func ParseAgency(data io.Reader) (string, error) {
	agencyCsv := []*AgencyCSV{}
	if err := gocsv.Unmarshal(data, &agencyCsv); err != nil {
		return "", fmt.Errorf("unmarshaling agency csv: %w", err)
	}

	if len(agencyCsv) == 0 {
		return "", fmt.Errorf("no agency record found")
	}

	// "If multiple agencies are specified in the dataset, each
	// must have the same agency_timezone."
	agencyTz := map[string]bool{}
	for _, a := range agencyCsv {
		agencyTz[a.Timezone] = true
	}
	if len(agencyTz) != 1 {
		return "", fmt.Errorf("multiple agency_timezone")
	}

	tz := agencyCsv[0].Timezone
	if tz == "" {
		return "", fmt.Errorf("missing agency_timezone")
	}
	_, err := time.LoadLocation(tz)
	if err != nil {
		return "", fmt.Errorf("agency_timezone '%s' is invalid: %w", tz, err)
	}

	agency := map[string]bool{}
	for _, a := range agencyCsv {
		if agency[a.ID] {
			return "", fmt.Errorf("duplicated agency_id: '%s'", a.ID)
		}
		agency[a.ID] = true

		if a.Name == "" {
			return "", fmt.Errorf("missing agency_name")
		}
	}

	return tz, nil
}
