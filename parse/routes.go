package parse

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/csa/model"
)

type RouteCSV struct {
	ID        string `csv:"route_id"`
	ShortName string `csv:"route_short_name"`
	LongName  string `csv:"route_long_name"`
	Type      string `csv:"route_type"`
}

func legalRouteType(t model.RouteType) bool {
	if t >= 0 && t <= 7 {
		return true
	}
	return t == model.RouteTypeTrolleybus || t == model.RouteTypeMonorail
}

func ParseRoutes(data io.Reader) (map[string]model.Route, error) {
	routeCsv := []*RouteCSV{}
	if err := gocsv.Unmarshal(data, &routeCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling routes: %v", err)
	}

	routes := map[string]model.Route{}

	for _, r := range routeCsv {
		if r.ID == "" {
			return nil, fmt.Errorf("route has no route_id")
		}
		if _, found := routes[r.ID]; found {
			return nil, fmt.Errorf("repeated route_id: '%s'", r.ID)
		}

		// ShortName or LongName is required
		if r.ShortName == "" && r.LongName == "" {
			return nil, fmt.Errorf("route_id '%s' has no short_name or long_name", r.ID)
		}

		if r.Type == "" {
			return nil, fmt.Errorf("route_id '%s' has no route_type", r.ID)
		}
		routeType, err := strconv.Atoi(r.Type)
		if err != nil {
			return nil, fmt.Errorf("route_id '%s' has invalid route_type: %w", r.ID, err)
		}
		if !legalRouteType(model.RouteType(routeType)) {
			return nil, fmt.Errorf("route_id '%s' has invalid route_type: %d", r.ID, routeType)
		}

		name := r.ShortName
		if name == "" {
			name = r.LongName
		}

		routes[r.ID] = model.Route{
			ID:        r.ID,
			ShortName: name,
			Type:      model.RouteType(routeType),
		}
	}

	return routes, nil
}
