package database

import (
	"database/sql"

	"github.com/gramtrack/gramtrack/internal/models"
)

type PostgresReplyRepository struct {
	db *sql.DB
}

func NewPostgresReplyRepository(db *sql.DB) *PostgresReplyRepository {
	return &PostgresReplyRepository{db: db}
}

func (r *PostgresReplyRepository) UpsertReply(reply *models.Reply) error {
	query := `
		INSERT INTO replies
		(profile_id, tweet_id, reply_tweet_id, author, text, like_count, replied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tweet_id, reply_tweet_id)
		DO UPDATE SET
			author = EXCLUDED.author,
			text = EXCLUDED.text,
			like_count = EXCLUDED.like_count,
			replied_at = EXCLUDED.replied_at
		RETURNING id, created_at
	`

	return r.db.QueryRow(query,
		reply.ProfileID,
		reply.TweetID,
		reply.ReplyTweetID,
		reply.Author,
		reply.Text,
		reply.LikeCount,
		reply.RepliedAt,
	).Scan(&reply.ID, &reply.CreatedAt)
}

func (r *PostgresReplyRepository) ListReplies(tweetID string, limit int) ([]*models.Reply, error) {
	query := `
		SELECT id, profile_id, tweet_id, reply_tweet_id, author, text,
		       like_count, replied_at, created_at
		FROM replies
		WHERE tweet_id = $1
		ORDER BY replied_at DESC NULLS LAST, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(query, tweetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var replies []*models.Reply
	for rows.Next() {
		var reply models.Reply
		var repliedAt sql.NullTime

		err := rows.Scan(
			&reply.ID,
			&reply.ProfileID,
			&reply.TweetID,
			&reply.ReplyTweetID,
			&reply.Author,
			&reply.Text,
			&reply.LikeCount,
			&repliedAt,
			&reply.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if repliedAt.Valid {
			t := repliedAt.Time
			reply.RepliedAt = &t
		}
		replies = append(replies, &reply)
	}
	return replies, rows.Err()
}
