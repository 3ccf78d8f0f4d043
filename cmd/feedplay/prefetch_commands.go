package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"feedplay/internal/prefetch"
	"feedplay/internal/store"
)

func newPrefetchCommand(ctx *commandContext) *cobra.Command {
	prefetchCmd := &cobra.Command{
		Use:   "prefetch",
		Short: "Inspect the prefetch ledger",
	}
	prefetchCmd.AddCommand(newPrefetchHistoryCommand(ctx))
	return prefetchCmd
}

func newPrefetchHistoryCommand(ctx *commandContext) *cobra.Command {
	var filter store.FetchFilter
	var outcome string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished prefetch tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch o := prefetch.Outcome(strings.ToLower(strings.TrimSpace(outcome))); o {
			case "", prefetch.OutcomeCached, prefetch.OutcomeFailed, prefetch.OutcomeDiscarded:
				filter.Outcome = o
			default:
				return fmt.Errorf("unknown outcome %q (want cached, failed or discarded)", outcome)
			}
			return ctx.withStore(false, func(st *store.Store) error {
				entries, err := st.ListFetches(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No prefetch records")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				failed := 0
				for _, e := range entries {
					if e.Outcome == prefetch.OutcomeFailed {
						failed++
					}
					rows = append(rows, []string{
						strconv.FormatInt(e.ID, 10),
						shortID(e.SessionID),
						e.URL,
						humanLabel(string(e.Outcome)),
						e.Duration().String(),
						dash(e.Error),
					})
				}
				fmt.Fprintln(out, renderTable(fetchColumns, rows))
				kind := statusOK
				if failed > 0 {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Failures", kind, fmt.Sprintf("%d of %d", failed, len(entries)), shouldColorize(out)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filter.SessionID, "session", "", "Only fetches from this session")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Only fetches with this outcome (cached, failed, discarded)")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 50, "Show at most this many recent fetches (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")
	return cmd
}
