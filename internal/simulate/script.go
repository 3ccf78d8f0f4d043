package simulate

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"feedplay/internal/feed"
	"feedplay/internal/visibility"
)

//go:embed sample_script.toml
var sampleScript []byte

// Action names one kind of script step.
type Action string

const (
	ActionMount            Action = "mount"
	ActionUnmount          Action = "unmount"
	ActionVisibility       Action = "visibility"
	ActionAdvance          Action = "advance"
	ActionTick             Action = "tick"
	ActionTap              Action = "tap"
	ActionLoaded           Action = "loaded"
	ActionProgress         Action = "progress"
	ActionEnded            Action = "ended"
	ActionError            Action = "error"
	ActionRetry            Action = "retry"
	ActionFailPlay         Action = "fail_play"
	ActionPauseAll         Action = "pause_all"
	ActionResetPrefetch    Action = "reset_prefetch"
	ActionPrefetchPrevious Action = "prefetch_previous"
	ActionWaitPrefetch     Action = "wait_prefetch"
)

// Step is one scripted interaction. Fields apply per action.
type Step struct {
	Action Action `toml:"action"`
	// Video targets tile actions. mount and unmount also accept Videos;
	// mount with neither mounts every video in the feed.
	Video  string   `toml:"video"`
	Videos []string `toml:"videos"`

	Scope    string  `toml:"scope"`
	Post     int     `toml:"post"`
	Index    int     `toml:"index"`
	Coverage float64 `toml:"coverage"`
	// Visible defaults to Coverage > 0.
	Visible *bool `toml:"visible"`

	Ms         int    `toml:"ms"`
	PositionMs int64  `toml:"position_ms"`
	Reason     string `toml:"reason"`
	Note       string `toml:"note"`
}

// FetchSettings shapes the simulated network.
type FetchSettings struct {
	LatencyMs int `toml:"latency_ms"`
	// Fail lists URLs whose fetches always fail.
	Fail []string `toml:"fail"`
}

// Script is a decoded simulation.
type Script struct {
	Name string `toml:"name"`
	// Feed is a JSON or TOML snapshot path, relative to the script.
	Feed  string         `toml:"feed"`
	Posts []feed.PostRef `toml:"posts"`
	Fetch FetchSettings  `toml:"fetch"`
	Steps []Step         `toml:"steps"`

	snapshot feed.Snapshot
}

// Snapshot returns the resolved feed.
func (s *Script) Snapshot() feed.Snapshot { return s.snapshot }

// SampleScript returns the embedded demo script.
func SampleScript() []byte {
	out := make([]byte, len(sampleScript))
	copy(out, sampleScript)
	return out
}

// LoadScript reads a script file. A relative feed path resolves against the
// script's directory.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data, filepath.Dir(path))
}

// ParseScript decodes and validates a script.
func ParseScript(data []byte, baseDir string) (*Script, error) {
	var script Script
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&script); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}

	switch {
	case script.Feed != "" && len(script.Posts) > 0:
		return nil, errors.New("script sets both feed and posts")
	case script.Feed == "" && len(script.Posts) == 0:
		return nil, errors.New("script has no feed")
	case script.Feed != "":
		path := script.Feed
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		snap, err := feed.Load(path)
		if err != nil {
			return nil, err
		}
		script.snapshot = snap
	default:
		script.snapshot = feed.Snapshot{Posts: script.Posts}
		if err := script.snapshot.Validate(); err != nil {
			return nil, err
		}
	}

	if script.Fetch.LatencyMs < 0 {
		return nil, errors.New("fetch.latency_ms must be >= 0")
	}
	for i := range script.Steps {
		if err := script.Steps[i].validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return &script, nil
}

func (s *Step) validate() error {
	s.Action = Action(strings.ToLower(strings.TrimSpace(string(s.Action))))
	switch s.Action {
	case ActionMount, ActionUnmount:
		if s.Action == ActionUnmount && s.Video == "" && len(s.Videos) == 0 {
			return errors.New("unmount needs video or videos")
		}
	case ActionVisibility:
		if _, err := visibility.ParseScope(s.Scope); err != nil {
			return err
		}
		if s.Coverage < 0 || s.Coverage > 100 {
			return fmt.Errorf("coverage %.1f outside 0..100", s.Coverage)
		}
	case ActionAdvance:
		if s.Ms <= 0 {
			return errors.New("advance needs ms > 0")
		}
	case ActionTap, ActionLoaded, ActionProgress, ActionEnded, ActionError, ActionRetry, ActionFailPlay:
		if s.Video == "" {
			return fmt.Errorf("%s needs video", s.Action)
		}
	case ActionTick, ActionPauseAll, ActionResetPrefetch, ActionPrefetchPrevious, ActionWaitPrefetch:
	case "":
		return errors.New("action is required")
	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}
	return nil
}

func (s Step) targets(snap feed.Snapshot) []string {
	if s.Video != "" {
		return []string{s.Video}
	}
	if len(s.Videos) > 0 {
		return s.Videos
	}
	var ids []string
	for _, post := range snap.Posts {
		for _, v := range post.Videos {
			ids = append(ids, v.ID)
		}
	}
	return ids
}

func (s Step) visible() bool {
	if s.Visible != nil {
		return *s.Visible
	}
	return s.Coverage > 0
}
