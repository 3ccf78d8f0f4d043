package session

import (
	"feedplay/internal/prefetch"
	"feedplay/internal/visibility"
)

// TileInfo is a read-only view of one mounted tile.
type TileInfo struct {
	VideoID    string `json:"video_id"`
	PostID     string `json:"post_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Active     bool   `json:"active"`
	Holder     bool   `json:"holder"`
	PositionMs int64  `json:"position_ms"`
}

// Snapshot is a consistent view of the session for status displays.
type Snapshot struct {
	ID          string              `json:"id"`
	Position    visibility.Position `json:"position"`
	ActiveVideo string              `json:"active_video"`
	Holder      string              `json:"holder"`
	Tiles       []TileInfo          `json:"tiles"`
	Prefetch    prefetch.Stats      `json:"prefetch"`
}

// Snapshot captures the current state under the session lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.rec.Active()
	active, _ := s.snap.Video(pos.Post, pos.Video)
	holder := s.arb.Holder()
	out := Snapshot{
		ID:          s.id,
		Position:    pos,
		ActiveVideo: active.ID,
		Holder:      holder,
		Prefetch:    s.sched.Stats(),
	}
	for _, tile := range s.sortedTilesLocked() {
		st := tile.State()
		out.Tiles = append(out.Tiles, TileInfo{
			VideoID:    tile.VideoID(),
			PostID:     tile.PostID(),
			Status:     st.Status.String(),
			Reason:     st.Reason,
			Active:     st.Active,
			Holder:     holder == tile.VideoID(),
			PositionMs: st.PositionMs,
		})
	}
	return out
}

// PlayingCount returns how many tiles report the playing status.
func (snap Snapshot) PlayingCount() int {
	n := 0
	for _, t := range snap.Tiles {
		if t.Status == "playing" {
			n++
		}
	}
	return n
}
