package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"feedplay/internal/analytics"
	"feedplay/internal/simulate"
)

func newSimulateCommand(ctx *commandContext) *cobra.Command {
	var sample bool
	var jsonOutput bool
	var noPersist bool
	var latencyMs int

	cmd := &cobra.Command{
		Use:   "simulate [script.toml]",
		Short: "Replay a feed script against a playback session",
		Long: "Replay scripted scrolls, swipes, taps and player callbacks against a\n" +
			"playback session on a virtual clock and report the slot holder after\n" +
			"every step. Use --sample to run the built-in two-post script.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := loadScript(args, sample)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			cmd.SetContext(runCtx)

			result, err := ctx.runScript(cmd, script, runOptions{
				persist:   cfg.Analytics.Persist && !noPersist,
				latencyMs: latencyMs,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, result.report)
			}
			printReport(cmd, result)
			if result.report.MaxPlaying > 1 {
				return fmt.Errorf("single playback violated: %d players played at once", result.report.MaxPlaying)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&sample, "sample", false, "Run the built-in sample script")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the full report as JSON")
	cmd.Flags().BoolVar(&noPersist, "no-persist", false, "Skip writing events and the prefetch ledger to the store")
	cmd.Flags().IntVar(&latencyMs, "latency", -1, "Override the simulated fetch latency in milliseconds")
	return cmd
}

func printReport(cmd *cobra.Command, result *runResult) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	report := result.report

	title := "Simulation"
	if report.Name != "" {
		title += ": " + report.Name
	}
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Session %s, %d steps, %s virtual time\n\n", report.SessionID, len(report.Steps), report.Elapsed)

	rows := make([][]string, 0, len(report.Steps))
	for _, step := range report.Steps {
		rows = append(rows, []string{
			strconv.Itoa(step.Index),
			humanLabel(string(step.Step.Action)),
			dash(describeStep(step.Step)),
			step.Elapsed.String(),
			fmt.Sprintf("%s (%d,%d)", dash(step.Session.ActiveVideo), step.Session.Position.Post, step.Session.Position.Video),
			dash(step.Session.Holder),
			dash(strings.Join(step.Playing, ",")),
		})
	}
	fmt.Fprintln(out, renderTable(stepColumns, rows))

	counts := report.EventCounts()
	types := make([]string, 0, len(counts))
	for typ := range counts {
		types = append(types, string(typ))
	}
	sort.Strings(types)
	eventRows := make([][]string, 0, len(types))
	for _, typ := range types {
		eventRows = append(eventRows, []string{humanLabel(typ), strconv.Itoa(counts[analytics.EventType(typ)])})
	}
	if len(eventRows) > 0 {
		fmt.Fprintln(out, renderTable(eventCountColumns, eventRows))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderStatusLine("Single playback", playbackKind(report), fmt.Sprintf("max %d playing", report.MaxPlaying), colorize))
	fmt.Fprintln(out, renderStatusLine("Prefetch", prefetchKind(report), fmt.Sprintf("%d cached, %d failed, %d queued",
		report.Prefetch.Cached, report.Prefetch.Failed, report.Prefetch.Queued), colorize))
	warnings := 0
	for _, step := range report.Steps {
		warnings += len(step.Warnings)
	}
	warnKind := statusOK
	if warnings > 0 {
		warnKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Warnings", warnKind, strconv.Itoa(warnings), colorize))
	persisted := "persisted: " + yesNo(result.persisted)
	if result.persisted && result.batch.Dropped > 0 {
		persisted += fmt.Sprintf(", %d events dropped", result.batch.Dropped)
	}
	fmt.Fprintln(out, renderStatusLine("Store", statusInfo, persisted, colorize))
}

func playbackKind(report *simulate.Report) statusKind {
	if report.MaxPlaying > 1 {
		return statusError
	}
	return statusOK
}

func prefetchKind(report *simulate.Report) statusKind {
	if report.Prefetch.Failed > 0 {
		return statusWarn
	}
	return statusOK
}
