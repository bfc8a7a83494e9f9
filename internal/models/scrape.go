package models

import (
	"encoding/json"
	"time"
)

// ProfileData is the typed result of scraping one profile's public page:
// counts, identity fields, and the latest embedded media items (the embedded
// list is truncated upstream, usually to 12 entries).
type ProfileData struct {
	Username     string
	ExternalID   string
	DisplayName  string
	Biography    string
	AvatarURL    string
	ExternalLink string
	Followers    int64
	Following    int64
	MediaCount   int64
	ReelCount    int64
	Media        []MediaData
	Raw          json.RawMessage
}

// MediaData is the typed result of scraping one media item's detail endpoint.
type MediaData struct {
	Shortcode    string
	Caption      string
	ViewCount    int64
	LikeCount    int64
	CommentCount int64
	ReplyCount   int64
	IsVideo      bool
	VideoURL     string
	DurationSecs float64
	TakenAt      *time.Time
}

// ReplyData is one scraped reply to a tweet.
type ReplyData struct {
	TweetID      string
	ReplyTweetID string
	Author       string
	Text         string
	LikeCount    int64
	RepliedAt    *time.Time
}
