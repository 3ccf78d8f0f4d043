package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"feedplay/internal/analytics"
	"feedplay/internal/store"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect persisted analytics events",
	}
	eventsCmd.AddCommand(newEventsListCommand(ctx))
	eventsCmd.AddCommand(newEventsSummaryCommand(ctx))
	eventsCmd.AddCommand(newEventsSessionsCommand(ctx))
	eventsCmd.AddCommand(newEventsClearCommand(ctx))
	return eventsCmd
}

func newEventsListCommand(ctx *commandContext) *cobra.Command {
	var filter store.EventFilter
	var eventType string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded events, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Type = analytics.EventType(strings.TrimSpace(eventType))
			return ctx.withStore(false, func(st *store.Store) error {
				events, err := st.ListEvents(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, events)
				}
				out := cmd.OutOrStdout()
				if len(events) == 0 {
					fmt.Fprintln(out, "No events recorded")
					return nil
				}
				rows := make([][]string, 0, len(events))
				for _, e := range events {
					rows = append(rows, []string{
						e.Timestamp.Local().Format("15:04:05.000"),
						shortID(e.SessionID),
						humanLabel(string(e.Type)),
						dash(e.VideoID),
						dash(e.PostID),
						dash(formatMetadata(e.Metadata)),
					})
				}
				fmt.Fprintln(out, renderTable(eventColumns, rows))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filter.SessionID, "session", "", "Only events from this session")
	cmd.Flags().StringVar(&filter.VideoID, "video", "", "Only events for this video")
	cmd.Flags().StringVar(&eventType, "type", "", "Only events of this type (e.g. playback_start)")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 50, "Show at most this many recent events (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")
	return cmd
}

func newEventsSummaryCommand(ctx *commandContext) *cobra.Command {
	var sessionID string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Count events per type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(false, func(st *store.Store) error {
				counts, err := st.EventSummary(cmd.Context(), sessionID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, counts)
				}
				out := cmd.OutOrStdout()
				if len(counts) == 0 {
					fmt.Fprintln(out, "No events recorded")
					return nil
				}
				rows := make([][]string, 0, len(counts))
				for _, c := range counts {
					rows = append(rows, []string{
						humanLabel(string(c.Type)),
						strconv.Itoa(c.Count),
						strconv.Itoa(c.Videos),
						c.First.Local().Format(time.DateTime),
						c.Last.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(out, renderTable(eventSummaryColumns, rows))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Limit the summary to one session")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")
	return cmd
}

func newEventsSessionsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(false, func(st *store.Store) error {
				sessions, err := st.ListSessions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, sessions)
				}
				out := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions recorded")
					return nil
				}
				rows := make([][]string, 0, len(sessions))
				for _, s := range sessions {
					rows = append(rows, []string{
						s.SessionID,
						strconv.Itoa(s.Events),
						s.Started.Local().Format(time.DateTime),
						s.Ended.Sub(s.Started).Round(time.Millisecond).String(),
					})
				}
				fmt.Fprintln(out, renderTable(sessionColumns, rows))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Show at most this many sessions (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")
	return cmd
}

func newEventsClearCommand(ctx *commandContext) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all persisted events and prefetch ledger rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to clear the store without --yes")
			}
			return ctx.withStore(true, func(st *store.Store) error {
				events, fetches, err := st.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d events and %d prefetch records from %s\n", events, fetches, st.Path())
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&confirm, "yes", "y", false, "Confirm deletion")
	return cmd
}

func formatMetadata(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, meta[k]))
	}
	return strings.Join(parts, " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return dash(id)
}
