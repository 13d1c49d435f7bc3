package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/fatih/color"

	"github.com/angeloszaimis/adaptive-balancer/internal/simulation"
)

var (
	heading = color.New(color.Bold).SprintFunc()
	good    = color.New(color.FgGreen).SprintFunc()
	warning = color.New(color.FgYellow).SprintFunc()
	bad     = color.New(color.FgRed).SprintFunc()
)

func rate(share float64) string {
	text := fmt.Sprintf("%6.2f%%", share*100)
	switch {
	case share >= 0.99:
		return good(text)
	case share >= 0.9:
		return warning(text)
	default:
		return bad(text)
	}
}

// writeReport prints a finished simulation as plain tables.
func writeReport(w io.Writer, report *simulation.Report) {
	fmt.Fprintf(w, "%s %s (strategy %s)\n", heading("Scenario"), report.Scenario, report.Strategy)
	fmt.Fprintf(w, "requests %d  succeeded %d (%s)  failed %d  attempts %d  took %s\n\n",
		report.Requests, report.Succeeded, rate(report.SuccessRate()), report.Failed, report.Attempts,
		report.Elapsed.Round(time.Millisecond))

	fmt.Fprintln(w, heading(fmt.Sprintf("%-22s %8s %9s %9s %9s %12s", "REPLICA", "FIRST", "ATTEMPTS", "ACCEPTED", "REJECTED", "MEAN")))
	for _, r := range report.Replicas {
		rejected := fmt.Sprintf("%9d", r.Rejected)
		if r.Rejected > 0 {
			rejected = bad(rejected)
		}
		fmt.Fprintf(w, "%-22s %7.2f%% %9d %9d %s %12s\n",
			r.Replica, r.FirstChoiceShare(report.Requests)*100, r.Attempts, r.Accepted, rejected,
			r.MeanLatency().Round(time.Microsecond))
	}

	if len(report.Windows) > 0 {
		fmt.Fprintf(w, "\n%s\n", heading("First choices per window"))
		for _, window := range report.Windows {
			fmt.Fprintf(w, "%8s", window.Start)
			for _, r := range report.Replicas {
				fmt.Fprintf(w, "  %s %5.1f%%", r.Replica, window.Share(r.Replica)*100)
			}
			fmt.Fprintln(w)
		}
	}

	if len(report.Weights) > 0 {
		fmt.Fprintf(w, "\n%s\n", heading("Stored weights"))
		for _, r := range slices.Sorted(maps.Keys(report.Weights)) {
			fmt.Fprintf(w, "%-22s %.4f\n", r, report.Weights[r].Value)
		}
	}
}
