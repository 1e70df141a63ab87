package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/csa/storage"
)

var journeysCmd = &cobra.Command{
	Use:   "journeys [run_id]",
	Short: "Lists stored journeys, or runs if no run is given",
	Args:  cobra.RangeArgs(0, 1),
	RunE:  journeys,
}

var (
	originFilter      string
	destinationFilter string
	fastestOnly       bool
	showLegs          bool
	deleteRun         bool
)

func init() {
	journeysCmd.Flags().StringVarP(&originFilter, "origin", "o", "", "Restrict to an origin stop")
	journeysCmd.Flags().StringVarP(&destinationFilter, "destination", "d", "", "Restrict to a destination stop")
	journeysCmd.Flags().BoolVarP(&fastestOnly, "fastest", "f", false, "Only journeys on the fastest path")
	journeysCmd.Flags().BoolVarP(&showLegs, "legs", "", false, "Print journey legs")
	journeysCmd.Flags().BoolVarP(&deleteRun, "delete", "", false, "Delete the run instead of listing it")
	rootCmd.AddCommand(journeysCmd)
}

func journeys(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Storage.Backend == "memory" {
		return fmt.Errorf("memory storage holds no journeys between invocations")
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if len(args) == 0 {
		runs, err := a.manager.Runs("")
		if err != nil {
			return err
		}
		for _, run := range runs {
			fmt.Printf(
				"%s %s targets=%s journeys=%d margin=%g walk=%g\n",
				run.ID,
				run.CreatedAt.Format(time.RFC3339),
				strings.Join(run.Targets, ","),
				run.Journeys,
				run.TransferMargin,
				run.WalkSpeed,
			)
		}
		return nil
	}

	if deleteRun {
		return a.manager.DeleteRun(args[0])
	}

	journeys, err := a.manager.Journeys(args[0], storage.JourneyFilter{
		Origin:          originFilter,
		Destination:     destinationFilter,
		FastestPathOnly: fastestOnly,
	})
	if err != nil {
		return err
	}

	for _, j := range journeys {
		fastest := ""
		if j.FastestPath {
			fastest = " *"
		}
		fmt.Printf(
			"%s -> %s %g-%g boardings=%d%s\n",
			j.Origin, j.Destination,
			j.DepartureTime, j.ArrivalTime,
			j.Boardings, fastest,
		)
		if !showLegs {
			continue
		}
		for _, leg := range j.Legs {
			fmt.Printf(
				"    %s -> %s %g-%g %s\n",
				leg.DepartureStop, leg.ArrivalStop,
				leg.DepartureTime, leg.ArrivalTime,
				leg.TripID,
			)
		}
	}

	return nil
}
