package models

import "time"

// DateLayout is the calendar-date encoding used for DailyMetric rows.
const DateLayout = "2006-01-02"

// DailyMetric is one materialized row per (profile, calendar date) with
// open/close/delta values per metric plus aggregated reel growth for the day.
//
// Today's row may be updated repeatedly within the day; rows for past dates
// are frozen once the date rolls over.
type DailyMetric struct {
	ID        int64  `json:"id"`
	ProfileID string `json:"profile_id"`
	Date      string `json:"date"`

	FollowersOpen  int64 `json:"followers_open"`
	FollowersClose int64 `json:"followers_close"`
	FollowersDelta int64 `json:"followers_delta"`

	FollowingOpen  int64 `json:"following_open"`
	FollowingClose int64 `json:"following_close"`
	FollowingDelta int64 `json:"following_delta"`

	MediaOpen  int64 `json:"media_open"`
	MediaClose int64 `json:"media_close"`
	MediaDelta int64 `json:"media_delta"`

	ReelsOpen  int64 `json:"reels_open"`
	ReelsClose int64 `json:"reels_close"`
	ReelsDelta int64 `json:"reels_delta"`

	ViewsDelta    int64 `json:"views_delta"`
	LikesDelta    int64 `json:"likes_delta"`
	CommentsDelta int64 `json:"comments_delta"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DailyMetricUpdate carries the fields the pipeline may rewrite on today's
// row. Open values are deliberately absent: they are set once at insert and
// never overwritten.
type DailyMetricUpdate struct {
	FollowersClose int64
	FollowingClose int64
	MediaClose     int64
	ReelsClose     int64
	ViewsDelta     int64
	LikesDelta     int64
	CommentsDelta  int64
}

// DailyMetricRepository defines persistence operations for daily metrics.
type DailyMetricRepository interface {
	// GetDailyMetric returns the row for (profileID, date) or nil.
	GetDailyMetric(profileID, date string) (*DailyMetric, error)

	// GetLatestDailyMetric returns the most recent row for the profile
	// regardless of date, or nil.
	GetLatestDailyMetric(profileID string) (*DailyMetric, error)

	// ListDailyMetricsSince returns rows updated at or after from,
	// oldest date first.
	ListDailyMetricsSince(profileID string, from time.Time) ([]*DailyMetric, error)

	// InsertDailyMetric inserts the row for a new (profile, date) pair.
	InsertDailyMetric(m *DailyMetric) error

	// UpdateDailyMetricForToday rewrites close/delta fields on the row for
	// (profileID, date). Implementations must refuse dates other than the
	// current calendar date.
	UpdateDailyMetricForToday(profileID, date string, u DailyMetricUpdate) error
}
