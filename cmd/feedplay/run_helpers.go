package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"feedplay/internal/analytics"
	"feedplay/internal/logging"
	"feedplay/internal/simulate"
	"feedplay/internal/store"
)

type runOptions struct {
	pace    time.Duration
	observe func(simulate.StepResult)
	// fileLogsOnly keeps stderr clean for full-screen output.
	fileLogsOnly bool
	persist      bool
	latencyMs    int
}

type runResult struct {
	report    *simulate.Report
	persisted bool
	batch     analytics.BatchStats
}

func loadScript(args []string, sample bool) (*simulate.Script, error) {
	switch {
	case sample && len(args) > 0:
		return nil, errors.New("pass either a script path or --sample, not both")
	case sample:
		return simulate.ParseScript(simulate.SampleScript(), "")
	case len(args) == 0:
		return nil, errors.New("a script path is required (or use --sample)")
	}
	script, err := simulate.LoadScript(strings.TrimSpace(args[0]))
	if err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}
	return script, nil
}

func (c *commandContext) runLogger(fileOnly bool) (*slog.Logger, error) {
	if !fileOnly {
		return c.logger()
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      "json",
		OutputPaths: []string{filepath.Join(cfg.Paths.LogDir, "feedplay.log")},
	})
}

// runScript replays script against a fresh session. With persistence on,
// analytics events reach the store through a BatchSink and every finished
// prefetch task lands in the fetch ledger under the run's session ID.
func (c *commandContext) runScript(cmd *cobra.Command, script *simulate.Script, opts runOptions) (*runResult, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.runLogger(opts.fileLogsOnly)
	if err != nil {
		return nil, err
	}
	if opts.latencyMs >= 0 {
		script.Fetch.LatencyMs = opts.latencyMs
	}

	sessionID := uuid.NewString()
	simOpts := simulate.Options{
		Config:    cfg,
		Logger:    logger,
		SessionID: sessionID,
		Pace:      opts.pace,
		Observe:   opts.observe,
	}
	var sinks analytics.MultiSink
	if cfg.Analytics.Enabled && cfg.Analytics.LogToConsole {
		sinks = append(sinks, analytics.NewLogSink(logger))
	}

	result := &runResult{}
	run := func(st *store.Store) error {
		if st != nil {
			if cfg.Analytics.Enabled {
				batch := analytics.NewBatchSink(st, analytics.BatchOptions{
					Size:     cfg.Analytics.BatchSize,
					Interval: cfg.FlushInterval(),
					Buffer:   cfg.Analytics.BufferSize,
				}, logger)
				batch.Start(cmd.Context())
				defer func() {
					batch.Close()
					result.batch = batch.Stats()
				}()
				sinks = append(sinks, batch)
			}
			simOpts.Recorder = st.Recorder(sessionID)
			result.persisted = true
		}
		if len(sinks) > 0 {
			simOpts.Sink = sinks
		}
		report, err := simulate.Run(cmd.Context(), script, simOpts)
		result.report = report
		return err
	}

	if opts.persist {
		err = c.withStore(true, run)
	} else {
		err = run(nil)
	}
	return result, err
}

func describeStep(step simulate.Step) string {
	var parts []string
	switch step.Action {
	case simulate.ActionVisibility:
		if step.Scope == "carousel" {
			parts = append(parts, fmt.Sprintf("carousel post %d video %d", step.Post, step.Index))
		} else {
			parts = append(parts, fmt.Sprintf("post %d", step.Index))
		}
		parts = append(parts, fmt.Sprintf("%.0f%%", step.Coverage))
	case simulate.ActionAdvance:
		parts = append(parts, fmt.Sprintf("+%dms", step.Ms))
	case simulate.ActionProgress:
		parts = append(parts, step.Video, fmt.Sprintf("%dms", step.PositionMs))
	case simulate.ActionError, simulate.ActionFailPlay:
		parts = append(parts, step.Video)
		if step.Reason != "" {
			parts = append(parts, step.Reason)
		}
	default:
		switch {
		case step.Video != "":
			parts = append(parts, step.Video)
		case len(step.Videos) > 0:
			parts = append(parts, strings.Join(step.Videos, ","))
		case step.Action == simulate.ActionMount:
			parts = append(parts, "all")
		}
	}
	if step.Note != "" {
		parts = append(parts, "("+step.Note+")")
	}
	return strings.Join(parts, " ")
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
