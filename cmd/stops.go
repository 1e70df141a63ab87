package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"tidbyt.dev/csa/model"
)

var stopsCmd = &cobra.Command{
	Use:   "stops [lat lng] [limit]",
	Short: "Lists network stops, optionally near a geographical location",
	Args:  cobra.RangeArgs(0, 3),
	RunE:  stops,
}

func init() {
	rootCmd.AddCommand(stopsCmd)
}

func stops(cmd *cobra.Command, args []string) error {
	var lat, lng float64
	var limit int
	var err error

	gotLocation := false
	if len(args) == 1 {
		return fmt.Errorf("missing lng")
	}
	if len(args) >= 2 {
		gotLocation = true
		lat, err = strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid lat: %w", err)
		}
		lng, err = strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid lng: %w", err)
		}
	}
	if len(args) == 3 {
		limit, err = strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		if limit < 0 {
			return fmt.Errorf("limit must be >= 0")
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Network.Source == "" {
		return fmt.Errorf("network source is required")
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	network, err := a.loadNetwork(context.Background())
	if err != nil {
		return err
	}

	stops := append([]model.Stop{}, network.Stops...)
	if len(stops) == 0 {
		// connections.csv networks have no stop records
		seen := map[string]bool{}
		for _, c := range network.Connections {
			for _, id := range []string{c.DepartureStop, c.ArrivalStop} {
				if !seen[id] {
					seen[id] = true
					stops = append(stops, model.Stop{ID: id})
				}
			}
		}
	}

	distance := map[string]float64{}
	if gotLocation {
		for _, s := range stops {
			distance[s.ID] = model.HaversineDistance(lat, lng, s.Lat, s.Lon)
		}
		sort.Slice(stops, func(i, j int) bool {
			return distance[stops[i].ID] < distance[stops[j].ID]
		})
	} else {
		// sort by name
		sort.Slice(stops, func(i, j int) bool {
			if stops[i].Name != stops[j].Name {
				return stops[i].Name < stops[j].Name
			}
			return stops[i].ID < stops[j].ID
		})
	}
	if limit > 0 && limit < len(stops) {
		stops = stops[:limit]
	}

	for _, stop := range stops {
		if gotLocation {
			fmt.Printf("%s: %s (%.0fm)\n", stop.ID, stop.Name, distance[stop.ID])
		} else {
			fmt.Printf("%s: %s\n", stop.ID, stop.Name)
		}
	}

	return nil
}
