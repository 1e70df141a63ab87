package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"tidbyt.dev/csa"
	"tidbyt.dev/csa/config"
)

var routeCmd = &cobra.Command{
	Use:   "route [target...]",
	Short: "Computes journeys from every stop to the targets",
	Long: `Computes the Pareto-optimal journeys from every stop in the network
to each target, and stores them as a run. Targets given as arguments
replace those in the config file.`,
	RunE: route,
}

var (
	runID          string
	transferMargin float64
	walkSpeed      float64
	windowStart    float64
	windowEnd      float64
	workers        int
)

func init() {
	routeCmd.Flags().StringVarP(&runID, "run", "r", "", "Run ID (generated if empty)")
	routeCmd.Flags().Float64VarP(&transferMargin, "transfer-margin", "m", 0, "Minimum seconds between arriving and boarding")
	routeCmd.Flags().Float64VarP(&walkSpeed, "walk-speed", "w", config.DefaultWalkSpeed, "Walking speed in meters per second")
	routeCmd.Flags().Float64VarP(&windowStart, "window-start", "", 0, "Start of departure window (seconds on the connections time axis)")
	routeCmd.Flags().Float64VarP(&windowEnd, "window-end", "", 0, "End of departure window (seconds on the connections time axis)")
	routeCmd.Flags().IntVarP(&workers, "workers", "j", config.DefaultWorkers, "Targets routed concurrently")
	rootCmd.AddCommand(routeCmd)
}

// Routing flags override the config when set.
func applyRoutingFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("transfer-margin") {
		cfg.Routing.TransferMargin = transferMargin
	}
	if flags.Changed("walk-speed") {
		cfg.Routing.WalkSpeed = walkSpeed
	}
	if flags.Changed("window-start") {
		cfg.Routing.WindowStart = windowStart
	}
	if flags.Changed("window-end") {
		cfg.Routing.WindowEnd = windowEnd
	}
	if flags.Changed("workers") {
		cfg.Routing.Workers = workers
	}
}

func route(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRoutingFlags(cmd, cfg)
	if len(args) > 0 {
		cfg.Routing.Targets = args
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	network, err := a.loadNetwork(ctx)
	if err != nil {
		return err
	}

	run, err := a.manager.Route(ctx, network, csa.RouteRequest{
		RunID:          runID,
		Targets:        cfg.Routing.Targets,
		TransferMargin: cfg.Routing.TransferMargin,
		WalkSpeed:      cfg.Routing.WalkSpeed,
		WindowStart:    cfg.Routing.WindowStart,
		WindowEnd:      cfg.Routing.WindowEnd,
		Workers:        cfg.Routing.Workers,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run %s: %d journeys to %d targets\n", run.ID, run.Journeys, len(run.Targets))
	return nil
}
