package models

import "time"

// Reel is the current-value row for one media item on a tracked profile,
// keyed by (profile, shortcode). Historical values live in ReelMetric.
type Reel struct {
	ID            int64      `json:"id"`
	ProfileID     string     `json:"profile_id"`
	Shortcode     string     `json:"shortcode"`
	Caption       string     `json:"caption,omitempty"`
	ViewCount     int64      `json:"view_count"`
	LikeCount     int64      `json:"like_count"`
	CommentCount  int64      `json:"comment_count"`
	ViewsDelta    int64      `json:"views_delta"`
	LikesDelta    int64      `json:"likes_delta"`
	CommentsDelta int64      `json:"comments_delta"`
	IsVideo       bool       `json:"is_video"`
	VideoURL      string     `json:"video_url,omitempty"`
	MirroredURL   string     `json:"mirrored_url,omitempty"`
	DurationSecs  float64    `json:"duration_secs,omitempty"`
	// AvgWatchTime has no trusted upstream source and stays null until one
	// is wired in.
	AvgWatchTime *float64   `json:"avg_watch_time,omitempty"`
	TakenAt      *time.Time `json:"taken_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsReel reports whether the media item is treated as a reel for
// video-related reads: either the platform flags it as video or a video URL
// has been observed at any point.
func (r *Reel) IsReel() bool {
	return r.IsVideo || r.VideoURL != ""
}

// ReelMetric is an immutable per-run metrics snapshot for one reel.
// Append-only.
type ReelMetric struct {
	ID           int64     `json:"id"`
	ReelID       int64     `json:"reel_id"`
	ProfileID    string    `json:"profile_id"`
	ViewCount    int64     `json:"view_count"`
	LikeCount    int64     `json:"like_count"`
	CommentCount int64     `json:"comment_count"`
	CapturedAt   time.Time `json:"captured_at"`
}

// ReelRepository defines persistence operations for reels and their metrics.
type ReelRepository interface {
	// GetReel returns the reel row for (profileID, shortcode) or nil.
	GetReel(profileID, shortcode string) (*Reel, error)

	// ListShortcodes returns every persisted shortcode for the profile.
	ListShortcodes(profileID string) ([]string, error)

	// ListLatestReels returns up to limit reels for the profile ordered by
	// taken_at descending.
	ListLatestReels(profileID string, limit int) ([]*Reel, error)

	// UpsertReel inserts or updates on (profile, shortcode) and assigns ID.
	UpsertReel(r *Reel) error

	// InsertReelMetric appends an immutable metric row.
	InsertReelMetric(m *ReelMetric) error

	// ListReelMetricsSince returns metric rows captured at or after from,
	// oldest first.
	ListReelMetricsSince(profileID string, from time.Time) ([]*ReelMetric, error)
}
