package feed

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// VideoRef describes one playable video.
type VideoRef struct {
	ID           string   `json:"id" toml:"id"`
	URL          string   `json:"url" toml:"url"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty" toml:"thumbnail_url,omitempty"`
	DurationMs   int64    `json:"duration_ms,omitempty" toml:"duration_ms,omitempty"`
	AspectRatio  *float64 `json:"aspect_ratio,omitempty" toml:"aspect_ratio,omitempty"`
	Title        string   `json:"title,omitempty" toml:"title,omitempty"`
}

// Author identifies the creator of a post.
type Author struct {
	ID     string `json:"id" toml:"id"`
	Name   string `json:"name" toml:"name"`
	Avatar string `json:"avatar,omitempty" toml:"avatar,omitempty"`
}

// PostRef is one vertical feed entry with its carousel of videos.
type PostRef struct {
	ID        string     `json:"id" toml:"id"`
	Videos    []VideoRef `json:"videos" toml:"videos"`
	Author    Author     `json:"author" toml:"author"`
	Caption   string     `json:"caption,omitempty" toml:"caption,omitempty"`
	Likes     int        `json:"likes,omitempty" toml:"likes,omitempty"`
	Comments  int        `json:"comments,omitempty" toml:"comments,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitzero" toml:"created_at,omitempty"`
}

// Snapshot is the ordered post sequence held by a session.
type Snapshot struct {
	Posts []PostRef `json:"posts" toml:"posts"`
}

// ErrInvalidSnapshot tags every validation failure.
var ErrInvalidSnapshot = errors.New("invalid feed snapshot")

// Validate rejects posts without videos, blank identifiers, and video IDs
// that appear more than once. Video IDs key the arbiter registry, so they
// must be unique across the whole snapshot.
func (s Snapshot) Validate() error {
	seenPosts := make(map[string]struct{}, len(s.Posts))
	seenVideos := make(map[string]struct{})
	for i, post := range s.Posts {
		if strings.TrimSpace(post.ID) == "" {
			return fmt.Errorf("%w: post %d has no id", ErrInvalidSnapshot, i)
		}
		if _, dup := seenPosts[post.ID]; dup {
			return fmt.Errorf("%w: duplicate post id %q", ErrInvalidSnapshot, post.ID)
		}
		seenPosts[post.ID] = struct{}{}
		if len(post.Videos) == 0 {
			return fmt.Errorf("%w: post %q has no videos", ErrInvalidSnapshot, post.ID)
		}
		for j, video := range post.Videos {
			if strings.TrimSpace(video.ID) == "" {
				return fmt.Errorf("%w: post %q video %d has no id", ErrInvalidSnapshot, post.ID, j)
			}
			if _, dup := seenVideos[video.ID]; dup {
				return fmt.Errorf("%w: duplicate video id %q", ErrInvalidSnapshot, video.ID)
			}
			seenVideos[video.ID] = struct{}{}
		}
	}
	return nil
}

// Len returns the number of posts.
func (s Snapshot) Len() int {
	return len(s.Posts)
}

// Post returns the post at index, or false when out of range.
func (s Snapshot) Post(index int) (PostRef, bool) {
	if index < 0 || index >= len(s.Posts) {
		return PostRef{}, false
	}
	return s.Posts[index], true
}

// Video returns the video at (postIndex, videoIndex), or false when either
// index is out of range.
func (s Snapshot) Video(postIndex, videoIndex int) (VideoRef, bool) {
	post, ok := s.Post(postIndex)
	if !ok || videoIndex < 0 || videoIndex >= len(post.Videos) {
		return VideoRef{}, false
	}
	return post.Videos[videoIndex], true
}

// Locate returns the position of a video ID within the snapshot.
func (s Snapshot) Locate(videoID string) (postIndex, videoIndex int, ok bool) {
	for i, post := range s.Posts {
		for j, video := range post.Videos {
			if video.ID == videoID {
				return i, j, true
			}
		}
	}
	return -1, -1, false
}

// VideoCount returns the total number of videos across all posts.
func (s Snapshot) VideoCount() int {
	total := 0
	for _, post := range s.Posts {
		total += len(post.Videos)
	}
	return total
}
