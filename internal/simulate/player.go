package simulate

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Stage owns the simulated players of one run and audits how many are
// playing at once.
type Stage struct {
	mu         sync.Mutex
	players    map[string]*Player
	playing    map[string]struct{}
	maxPlaying int
	failPlay   map[string]error
}

// NewStage creates an empty stage.
func NewStage() *Stage {
	return &Stage{
		players:  make(map[string]*Player),
		playing:  make(map[string]struct{}),
		failPlay: make(map[string]error),
	}
}

// Player returns the handle for videoID, creating it on first use.
func (s *Stage) Player(videoID string) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[videoID]; ok {
		return p
	}
	p := &Player{id: videoID, stage: s}
	s.players[videoID] = p
	return p
}

// FailNextPlay makes the next Play on videoID fail with reason.
func (s *Stage) FailNextPlay(videoID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPlay[videoID] = errors.New(reason)
}

// Playing returns the sorted IDs of players currently playing.
func (s *Stage) Playing() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.playing))
	for id := range s.playing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MaxPlaying returns the most players ever playing simultaneously.
func (s *Stage) MaxPlaying() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxPlaying
}

func (s *Stage) setPlaying(id string, playing bool) {
	if playing {
		s.playing[id] = struct{}{}
		if n := len(s.playing); n > s.maxPlaying {
			s.maxPlaying = n
		}
		return
	}
	delete(s.playing, id)
}

// Player is a simulated video element. It never calls back into the
// session or arbiter.
type Player struct {
	id    string
	stage *Stage

	plays      int
	pauses     int
	positionMs int64
}

// Play starts playback unless a failure was queued for this video.
func (p *Player) Play(context.Context) error {
	p.stage.mu.Lock()
	defer p.stage.mu.Unlock()
	p.plays++
	if err, ok := p.stage.failPlay[p.id]; ok {
		delete(p.stage.failPlay, p.id)
		return err
	}
	p.stage.setPlaying(p.id, true)
	return nil
}

// Pause stops playback. Pausing an idle player is a no-op.
func (p *Player) Pause(context.Context) error {
	p.stage.mu.Lock()
	defer p.stage.mu.Unlock()
	p.pauses++
	p.stage.setPlaying(p.id, false)
	return nil
}

// Seek moves the playhead.
func (p *Player) Seek(positionMs int64) {
	p.stage.mu.Lock()
	defer p.stage.mu.Unlock()
	p.positionMs = positionMs
}

// Counts returns the number of Play and Pause calls.
func (p *Player) Counts() (plays, pauses int) {
	p.stage.mu.Lock()
	defer p.stage.mu.Unlock()
	return p.plays, p.pauses
}

// unmount marks the player stopped; the element is gone.
func (p *Player) unmount() {
	p.stage.mu.Lock()
	defer p.stage.mu.Unlock()
	p.stage.setPlaying(p.id, false)
}
