package database

import (
	"database/sql"
	"time"

	"github.com/gramtrack/gramtrack/internal/models"
)

type PostgresReelRepository struct {
	db *sql.DB
}

func NewPostgresReelRepository(db *sql.DB) *PostgresReelRepository {
	return &PostgresReelRepository{db: db}
}

const reelColumns = `
	id, profile_id, shortcode, caption,
	view_count, like_count, comment_count,
	views_delta, likes_delta, comments_delta,
	is_video, video_url, mirrored_url, duration_secs, avg_watch_time,
	taken_at, created_at, updated_at
`

func (r *PostgresReelRepository) GetReel(profileID, shortcode string) (*models.Reel, error) {
	query := `
		SELECT` + reelColumns + `
		FROM reels
		WHERE profile_id = $1 AND shortcode = $2
	`

	reel, err := r.scanRow(r.db.QueryRow(query, profileID, shortcode))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reel, nil
}

func (r *PostgresReelRepository) ListShortcodes(profileID string) ([]string, error) {
	rows, err := r.db.Query(`SELECT shortcode FROM reels WHERE profile_id = $1`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shortcodes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		shortcodes = append(shortcodes, code)
	}
	return shortcodes, rows.Err()
}

func (r *PostgresReelRepository) ListLatestReels(profileID string, limit int) ([]*models.Reel, error) {
	query := `
		SELECT` + reelColumns + `
		FROM reels
		WHERE profile_id = $1
		ORDER BY taken_at DESC NULLS LAST, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(query, profileID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reels []*models.Reel
	for rows.Next() {
		reel, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		reels = append(reels, reel)
	}
	return reels, rows.Err()
}

func (r *PostgresReelRepository) UpsertReel(reel *models.Reel) error {
	query := `
		INSERT INTO reels
		(profile_id, shortcode, caption,
		 view_count, like_count, comment_count,
		 views_delta, likes_delta, comments_delta,
		 is_video, video_url, mirrored_url, duration_secs, avg_watch_time, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (profile_id, shortcode)
		DO UPDATE SET
			caption = EXCLUDED.caption,
			view_count = EXCLUDED.view_count,
			like_count = EXCLUDED.like_count,
			comment_count = EXCLUDED.comment_count,
			views_delta = EXCLUDED.views_delta,
			likes_delta = EXCLUDED.likes_delta,
			comments_delta = EXCLUDED.comments_delta,
			is_video = EXCLUDED.is_video,
			video_url = EXCLUDED.video_url,
			mirrored_url = EXCLUDED.mirrored_url,
			duration_secs = EXCLUDED.duration_secs,
			avg_watch_time = EXCLUDED.avg_watch_time,
			taken_at = EXCLUDED.taken_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRow(query,
		reel.ProfileID, reel.Shortcode, reel.Caption,
		reel.ViewCount, reel.LikeCount, reel.CommentCount,
		reel.ViewsDelta, reel.LikesDelta, reel.CommentsDelta,
		reel.IsVideo, reel.VideoURL, reel.MirroredURL,
		reel.DurationSecs, reel.AvgWatchTime, reel.TakenAt,
	).Scan(&reel.ID, &reel.CreatedAt, &reel.UpdatedAt)
}

func (r *PostgresReelRepository) InsertReelMetric(m *models.ReelMetric) error {
	query := `
		INSERT INTO reel_metrics
		(reel_id, profile_id, view_count, like_count, comment_count, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	return r.db.QueryRow(query,
		m.ReelID, m.ProfileID,
		m.ViewCount, m.LikeCount, m.CommentCount,
		m.CapturedAt,
	).Scan(&m.ID)
}

func (r *PostgresReelRepository) ListReelMetricsSince(profileID string, from time.Time) ([]*models.ReelMetric, error) {
	query := `
		SELECT id, reel_id, profile_id, view_count, like_count, comment_count, captured_at
		FROM reel_metrics
		WHERE profile_id = $1 AND captured_at >= $2
		ORDER BY captured_at, id
	`
	rows, err := r.db.Query(query, profileID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*models.ReelMetric
	for rows.Next() {
		var m models.ReelMetric
		err := rows.Scan(
			&m.ID, &m.ReelID, &m.ProfileID,
			&m.ViewCount, &m.LikeCount, &m.CommentCount,
			&m.CapturedAt,
		)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *PostgresReelRepository) scanRow(row rowScanner) (*models.Reel, error) {
	var reel models.Reel
	var videoURL, mirroredURL, caption sql.NullString
	var avgWatchTime sql.NullFloat64
	var takenAt sql.NullTime

	err := row.Scan(
		&reel.ID, &reel.ProfileID, &reel.Shortcode, &caption,
		&reel.ViewCount, &reel.LikeCount, &reel.CommentCount,
		&reel.ViewsDelta, &reel.LikesDelta, &reel.CommentsDelta,
		&reel.IsVideo, &videoURL, &mirroredURL,
		&reel.DurationSecs, &avgWatchTime,
		&takenAt, &reel.CreatedAt, &reel.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	reel.Caption = caption.String
	reel.VideoURL = videoURL.String
	reel.MirroredURL = mirroredURL.String
	if avgWatchTime.Valid {
		reel.AvgWatchTime = &avgWatchTime.Float64
	}
	if takenAt.Valid {
		t := takenAt.Time
		reel.TakenAt = &t
	}
	return &reel, nil
}
