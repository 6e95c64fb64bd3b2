package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tourplan/internal/geo"
	"tourplan/internal/integrations"
	"tourplan/internal/integrations/csvfile"
	"tourplan/internal/opt"
)

type solveFlags struct {
	csvPath    string
	selectIDs  string
	iterations int
	seed       int64
	strategy   string
	polish     bool
	speedKph   float64
	jsonOut    bool
}

type solveOutput struct {
	IDs         []string    `json:"ids"`
	Tour        []int       `json:"tour"`
	Cost        float64     `json:"cost"`
	InitialCost float64     `json:"initialCost"`
	Seed        int64       `json:"seed"`
	Strategy    string      `json:"strategy"`
	Polished    bool        `json:"polished"`
	Skipped     int         `json:"skipped"`
	Metrics     opt.Metrics `json:"metrics"`
}

func newSolveCmd() *cobra.Command {
	var f solveFlags
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Optimise a closed tour over locations read from a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.csvPath == "" {
				return errors.New("--csv is required")
			}
			return runSolve(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.csvPath, "csv", "", "CSV file with id, lat, lng columns")
	fl.StringVar(&f.selectIDs, "select", "", "comma separated ids to include (default all)")
	fl.IntVar(&f.iterations, "iterations", opt.DefaultIterations, "tabu search iterations")
	fl.Int64Var(&f.seed, "seed", 1, "random seed")
	fl.StringVar(&f.strategy, "strategy", opt.StrategyRandom, "initial tour strategy (random, identity, nearest)")
	fl.BoolVar(&f.polish, "polish", false, "apply a 2-opt pass to the result")
	fl.Float64Var(&f.speedKph, "speed-kph", 0, "report travel seconds at this speed instead of meters")
	fl.BoolVar(&f.jsonOut, "json", false, "print JSON instead of a table")
	return cmd
}

func runSolve(cmd *cobra.Command, f solveFlags) error {
	ctx := cmd.Context()
	var src integrations.LocationSource = csvfile.Adapter{Path: f.csvPath}
	batch, err := src.FetchLocations(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", src.Name(), err)
	}
	var ids []string
	if f.selectIDs != "" {
		for _, id := range strings.Split(f.selectIDs, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	points, err := batch.Select(ids)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return csvfile.ErrNoLocations
	}

	m, err := geo.Haversine{SpeedKph: f.speedKph}.Matrix(ctx, points)
	if err != nil {
		return err
	}
	started := time.Now()
	sol, err := opt.Solve(ctx, m, opt.SolveOptions{
		Options:  opt.Options{Iterations: f.iterations, Seed: f.seed},
		Strategy: f.strategy,
		Polish:   f.polish,
	})
	if err != nil {
		return err
	}

	out := solveOutput{
		Tour:        []int(sol.Tour),
		Cost:        sol.Cost,
		InitialCost: sol.Metrics.InitialCost,
		Seed:        f.seed,
		Strategy:    f.strategy,
		Polished:    sol.Polished,
		Skipped:     len(batch.Skipped),
		Metrics:     sol.Metrics,
	}
	out.IDs = make([]string, len(sol.Tour))
	for i, loc := range sol.Tour {
		out.IDs[i] = points[loc].ID
	}
	if f.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return printSolve(cmd.OutOrStdout(), out, points, time.Since(started))
}

func printSolve(w io.Writer, out solveOutput, points []geo.Point, took time.Duration) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tLAT\tLNG")
	for i, loc := range out.Tour {
		p := points[loc]
		fmt.Fprintf(tw, "%d\t%s\t%.6f\t%.6f\n", i, p.ID, p.Lat, p.Lng)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\ncost %.3f (initial %.3f), %d iterations, %d improvements, %s\n",
		out.Cost, out.InitialCost, out.Metrics.Iterations, out.Metrics.Improvements, took.Round(time.Millisecond))
	if out.Skipped > 0 {
		fmt.Fprintf(w, "%d rows skipped\n", out.Skipped)
	}
	return nil
}
