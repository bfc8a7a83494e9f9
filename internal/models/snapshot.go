package models

import (
	"encoding/json"
	"time"
)

// Snapshot is an immutable point-in-time capture of a profile's public
// counts. Snapshot rows are append-only: never mutated, never deleted.
type Snapshot struct {
	ID         int64           `json:"id"`
	ProfileID  string          `json:"profile_id"`
	Followers  int64           `json:"followers"`
	Following  int64           `json:"following"`
	MediaCount int64           `json:"media_count"`
	ReelCount  int64           `json:"reel_count"`
	Biography  string          `json:"biography,omitempty"`
	AvatarURL  string          `json:"avatar_url,omitempty"`
	Raw        json.RawMessage `json:"-"`
	CapturedAt time.Time       `json:"captured_at"`
}

// Delta joins two snapshots of the same profile with their arithmetic
// differences. Append-only.
type Delta struct {
	ID              int64     `json:"id"`
	ProfileID       string    `json:"profile_id"`
	BaseSnapshot    int64     `json:"base_snapshot_id"`
	CompareSnapshot int64     `json:"compare_snapshot_id"`
	FollowersDiff   int64     `json:"followers_diff"`
	FollowingDiff   int64     `json:"following_diff"`
	MediaDiff       int64     `json:"media_diff"`
	ReelsDiff       int64     `json:"reels_diff"`
	CreatedAt       time.Time `json:"created_at"`
}

// Diff computes the delta of s relative to base (s - base).
func (s *Snapshot) Diff(base *Snapshot) Delta {
	return Delta{
		ProfileID:       s.ProfileID,
		BaseSnapshot:    base.ID,
		CompareSnapshot: s.ID,
		FollowersDiff:   s.Followers - base.Followers,
		FollowingDiff:   s.Following - base.Following,
		MediaDiff:       s.MediaCount - base.MediaCount,
		ReelsDiff:       s.ReelCount - base.ReelCount,
	}
}

// SnapshotRepository defines persistence operations for snapshots and deltas.
type SnapshotRepository interface {
	// InsertSnapshot appends a snapshot row and assigns its id.
	InsertSnapshot(s *Snapshot) error

	// InsertDelta appends a delta row and assigns its id.
	InsertDelta(d *Delta) error

	// GetRecentSnapshots returns up to limit snapshots for the profile,
	// most recent first.
	GetRecentSnapshots(profileID string, limit int) ([]*Snapshot, error)

	// GetSnapshotsSince returns snapshots captured at or after from,
	// oldest first.
	GetSnapshotsSince(profileID string, from time.Time) ([]*Snapshot, error)

	// GetLatestDeltaSince returns the most recent delta created at or after
	// from, or nil when none exists.
	GetLatestDeltaSince(profileID string, from time.Time) (*Delta, error)
}
