package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gramtrack/gramtrack/internal/models"
	"github.com/gramtrack/gramtrack/internal/scrape"
)

// PostgresDailyMetricRepository enforces the today-only update rule against
// the configured local time zone, not the database server's.
type PostgresDailyMetricRepository struct {
	db       *sql.DB
	location *time.Location

	now func() time.Time
}

func NewPostgresDailyMetricRepository(db *sql.DB, location *time.Location) *PostgresDailyMetricRepository {
	return &PostgresDailyMetricRepository{db: db, location: location, now: time.Now}
}

func (r *PostgresDailyMetricRepository) today() string {
	return r.now().In(r.location).Format(models.DateLayout)
}

const dailyMetricColumns = `
	id, profile_id, date::text,
	followers_open, followers_close, followers_delta,
	following_open, following_close, following_delta,
	media_open, media_close, media_delta,
	reels_open, reels_close, reels_delta,
	views_delta, likes_delta, comments_delta,
	updated_at
`

func (r *PostgresDailyMetricRepository) GetDailyMetric(profileID, date string) (*models.DailyMetric, error) {
	query := `
		SELECT` + dailyMetricColumns + `
		FROM daily_metrics
		WHERE profile_id = $1 AND date = $2::date
	`
	return r.scanOne(r.db.QueryRow(query, profileID, date))
}

func (r *PostgresDailyMetricRepository) GetLatestDailyMetric(profileID string) (*models.DailyMetric, error) {
	query := `
		SELECT` + dailyMetricColumns + `
		FROM daily_metrics
		WHERE profile_id = $1
		ORDER BY date DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRow(query, profileID))
}

func (r *PostgresDailyMetricRepository) ListDailyMetricsSince(profileID string, from time.Time) ([]*models.DailyMetric, error) {
	query := `
		SELECT` + dailyMetricColumns + `
		FROM daily_metrics
		WHERE profile_id = $1 AND updated_at >= $2
		ORDER BY date
	`
	rows, err := r.db.Query(query, profileID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*models.DailyMetric
	for rows.Next() {
		m, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func (r *PostgresDailyMetricRepository) InsertDailyMetric(m *models.DailyMetric) error {
	query := `
		INSERT INTO daily_metrics
		(profile_id, date,
		 followers_open, followers_close, followers_delta,
		 following_open, following_close, following_delta,
		 media_open, media_close, media_delta,
		 reels_open, reels_close, reels_delta,
		 views_delta, likes_delta, comments_delta)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, updated_at
	`

	err := r.db.QueryRow(query,
		m.ProfileID, m.Date,
		m.FollowersOpen, m.FollowersClose, m.FollowersDelta,
		m.FollowingOpen, m.FollowingClose, m.FollowingDelta,
		m.MediaOpen, m.MediaClose, m.MediaDelta,
		m.ReelsOpen, m.ReelsClose, m.ReelsDelta,
		m.ViewsDelta, m.LikesDelta, m.CommentsDelta,
	).Scan(&m.ID, &m.UpdatedAt)

	if err != nil && isUniqueViolation(err) {
		return scrape.Errorf(scrape.KindConflict, "daily metric exists for %s on %s", m.ProfileID, m.Date)
	}
	return err
}

// UpdateDailyMetricForToday rewrites close and delta columns on today's row.
// Open values are untouched; deltas are recomputed in SQL against them.
// Any date other than the current local date is refused.
func (r *PostgresDailyMetricRepository) UpdateDailyMetricForToday(profileID, date string, u models.DailyMetricUpdate) error {
	if date != r.today() {
		return fmt.Errorf("refusing to update daily metric for %s: not today", date)
	}

	query := `
		UPDATE daily_metrics SET
			followers_close = $3, followers_delta = $3 - followers_open,
			following_close = $4, following_delta = $4 - following_open,
			media_close = $5, media_delta = $5 - media_open,
			reels_close = $6, reels_delta = $6 - reels_open,
			views_delta = $7,
			likes_delta = $8,
			comments_delta = $9,
			updated_at = NOW()
		WHERE profile_id = $1 AND date = $2::date
	`

	res, err := r.db.Exec(query,
		profileID, date,
		u.FollowersClose, u.FollowingClose, u.MediaClose, u.ReelsClose,
		u.ViewsDelta, u.LikesDelta, u.CommentsDelta,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no daily metric row for %s on %s", profileID, date)
	}
	return nil
}

func (r *PostgresDailyMetricRepository) scanOne(row *sql.Row) (*models.DailyMetric, error) {
	var m models.DailyMetric
	err := row.Scan(
		&m.ID, &m.ProfileID, &m.Date,
		&m.FollowersOpen, &m.FollowersClose, &m.FollowersDelta,
		&m.FollowingOpen, &m.FollowingClose, &m.FollowingDelta,
		&m.MediaOpen, &m.MediaClose, &m.MediaDelta,
		&m.ReelsOpen, &m.ReelsClose, &m.ReelsDelta,
		&m.ViewsDelta, &m.LikesDelta, &m.CommentsDelta,
		&m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PostgresDailyMetricRepository) scanRow(rows *sql.Rows) (*models.DailyMetric, error) {
	var m models.DailyMetric
	err := rows.Scan(
		&m.ID, &m.ProfileID, &m.Date,
		&m.FollowersOpen, &m.FollowersClose, &m.FollowersDelta,
		&m.FollowingOpen, &m.FollowingClose, &m.FollowingDelta,
		&m.MediaOpen, &m.MediaClose, &m.MediaDelta,
		&m.ReelsOpen, &m.ReelsClose, &m.ReelsDelta,
		&m.ViewsDelta, &m.LikesDelta, &m.CommentsDelta,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
