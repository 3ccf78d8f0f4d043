package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"feedplay/internal/feed"
)

// TwoPostFeed returns P0 with videos v0..v2 and P1 with v3..v4. Every video
// has a URL "<id>.mp4" and a thumbnail "<id>.jpg".
func TwoPostFeed() feed.Snapshot {
	return NewFeed(3, 2)
}

// NewFeed builds a snapshot whose post i holds counts[i] videos, numbered
// consecutively across posts.
func NewFeed(counts ...int) feed.Snapshot {
	var snap feed.Snapshot
	next := 0
	for i, n := range counts {
		post := feed.PostRef{
			ID:     fmt.Sprintf("p%d", i),
			Author: feed.Author{ID: fmt.Sprintf("a%d", i), Name: fmt.Sprintf("Author %d", i)},
		}
		for j := 0; j < n; j++ {
			id := fmt.Sprintf("v%d", next)
			post.Videos = append(post.Videos, feed.VideoRef{
				ID:           id,
				URL:          id + ".mp4",
				ThumbnailURL: id + ".jpg",
				DurationMs:   15000,
			})
			next++
		}
		snap.Posts = append(snap.Posts, post)
	}
	return snap
}

// WriteFeed writes snap as JSON under dir and returns the path.
func WriteFeed(t testing.TB, dir string, snap feed.Snapshot) string {
	t.Helper()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		t.Fatalf("encode feed: %v", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, "feed.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
