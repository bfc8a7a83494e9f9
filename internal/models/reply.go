package models

import "time"

// Reply is one reply to a tracked tweet, keyed by (tweet, reply-tweet-id).
// Replies are read-append: no deltas are derived from them.
type Reply struct {
	ID           int64     `json:"id"`
	ProfileID    string    `json:"profile_id"`
	TweetID      string    `json:"tweet_id"`
	ReplyTweetID string    `json:"reply_tweet_id"`
	Author       string    `json:"author,omitempty"`
	Text         string    `json:"text,omitempty"`
	LikeCount    int64     `json:"like_count"`
	RepliedAt    *time.Time `json:"replied_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReplyRepository defines persistence operations for tweet replies.
type ReplyRepository interface {
	// UpsertReply inserts or refreshes a reply on (tweet, reply-tweet-id).
	UpsertReply(r *Reply) error

	// ListReplies returns stored replies for a tweet, newest first.
	ListReplies(tweetID string, limit int) ([]*Reply, error)
}
