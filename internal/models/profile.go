package models

import "time"

// Platform identifies the source platform of a tracked account.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
)

// SessionEpsilon is the clock-skew tolerance applied to session-scoped
// reads. The first snapshot of a session can be written microseconds before
// the session-open timestamp lands on the profile row.
const SessionEpsilon = time.Second

// Profile is the identity of one tracked account on one platform.
//
// UpdatedAt marks the start of the current tracking session: it is bumped
// whenever a session is opened or reassigned, and session-scoped reads only
// return rows captured at or after UpdatedAt - SessionEpsilon.
type Profile struct {
	ID             string    `json:"id"`
	Platform       Platform  `json:"platform"`
	Username       string    `json:"username"`
	ExternalID     string    `json:"external_id,omitempty"`
	DisplayName    string    `json:"display_name,omitempty"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	Biography      string    `json:"biography,omitempty"`
	ExternalLink   string    `json:"external_link,omitempty"`
	UserID         *string   `json:"user_id,omitempty"`
	TrackingID     string    `json:"tracking_id"`
	LastSnapshotID *int64    `json:"last_snapshot_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SessionStart returns the inclusive lower bound for session-scoped reads.
func (p *Profile) SessionStart() time.Time {
	return p.UpdatedAt.Add(-SessionEpsilon)
}

// ProfileRepository defines persistence operations for profiles.
type ProfileRepository interface {
	// Create inserts a new profile row, assigning ID and timestamps.
	Create(p *Profile) error

	// Update rewrites the mutable columns of an existing profile row.
	// When bumpSession is true, updated_at is set to the current wall clock
	// and becomes the new session boundary.
	Update(p *Profile, bumpSession bool) error

	// GetByTrackingID retrieves a profile by its tracking-id.
	// Returns nil when no row exists.
	GetByTrackingID(trackingID string) (*Profile, error)

	// GetByUsername retrieves a profile by (platform, username, userID).
	// A nil userID matches rows with no owning user.
	GetByUsername(platform Platform, username string, userID *string) (*Profile, error)

	// ListByUsername returns every profile row tracking (platform, username)
	// regardless of owning user.
	ListByUsername(platform Platform, username string) ([]*Profile, error)

	// ListAll returns all tracked profiles.
	ListAll() ([]*Profile, error)

	// SetLastSnapshot records the id of the most recent snapshot.
	SetLastSnapshot(profileID string, snapshotID int64) error

	// Delete removes a profile; ownership cascades to all derived rows.
	Delete(profileID string) error
}
