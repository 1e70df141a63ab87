package main

import (
	"context"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"tidbyt.dev/csa"
	"tidbyt.dev/csa/config"
)

var profileCmd = &cobra.Command{
	Use:   "profile <origin> <target>",
	Short: "Summarizes travel times from origin to target",
	Args:  cobra.ExactArgs(2),
	RunE:  profile,
}

var showLabels bool

func init() {
	profileCmd.Flags().Float64VarP(&transferMargin, "transfer-margin", "m", 0, "Minimum seconds between arriving and boarding")
	profileCmd.Flags().Float64VarP(&walkSpeed, "walk-speed", "w", config.DefaultWalkSpeed, "Walking speed in meters per second")
	profileCmd.Flags().Float64VarP(&windowStart, "window-start", "", 0, "Start of departure window (seconds on the connections time axis)")
	profileCmd.Flags().Float64VarP(&windowEnd, "window-end", "", 0, "End of departure window (seconds on the connections time axis)")
	profileCmd.Flags().BoolVarP(&showLabels, "labels", "l", false, "Print the Pareto-optimal departures")
	rootCmd.AddCommand(profileCmd)
}

func profile(cmd *cobra.Command, args []string) error {
	origin, target := args[0], args[1]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRoutingFlags(cmd, cfg)
	cfg.Routing.Targets = []string{target}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	network, err := a.loadNetwork(ctx)
	if err != nil {
		return err
	}

	summary, labels, err := a.manager.Profile(ctx, network, csa.ProfileRequest{
		Origin:         origin,
		Target:         target,
		TransferMargin: cfg.Routing.TransferMargin,
		WalkSpeed:      cfg.Routing.WalkSpeed,
		WindowStart:    cfg.Routing.WindowStart,
		WindowEnd:      cfg.Routing.WindowEnd,
	})
	if err != nil {
		return err
	}

	if showLabels {
		for _, l := range labels {
			fmt.Printf("%s %g -> %g\n", walkMarker(l.FirstLegIsWalk), l.DepartureTime, l.ArrivalTimeTarget)
		}
	}

	fmt.Printf("trips: %d\n", summary.ParetoOptimalTrips)
	fmt.Printf("trip duration: min %s max %s mean %s median %s\n",
		seconds(summary.MinTripDuration),
		seconds(summary.MaxTripDuration),
		seconds(summary.MeanTripDuration),
		seconds(summary.MedianTripDuration),
	)
	fmt.Printf("temporal distance: min %s max %s mean %s median %s\n",
		seconds(summary.MinTemporalDistance),
		seconds(summary.MaxTemporalDistance),
		seconds(summary.MeanTemporalDistance),
		seconds(summary.MedianTemporalDistance),
	)
	if summary.HasFiniteTemporalDistance {
		fmt.Printf("largest finite temporal distance: %s\n", seconds(summary.LargestFiniteTemporalDistance))
	}

	return nil
}

func walkMarker(walk bool) string {
	if walk {
		return "W"
	}
	return " "
}

func seconds(s float64) string {
	if math.IsNaN(s) {
		return "-"
	}
	if math.IsInf(s, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.0fs", s)
}
