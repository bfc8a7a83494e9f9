package database

import (
	"database/sql"
	"time"

	"github.com/gramtrack/gramtrack/internal/models"
)

type PostgresSnapshotRepository struct {
	db *sql.DB
}

func NewPostgresSnapshotRepository(db *sql.DB) *PostgresSnapshotRepository {
	return &PostgresSnapshotRepository{db: db}
}

func (r *PostgresSnapshotRepository) InsertSnapshot(s *models.Snapshot) error {
	query := `
		INSERT INTO snapshots
		(profile_id, followers, following, media_count, reel_count,
		 biography, avatar_url, raw, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	raw := []byte(s.Raw)
	if len(raw) == 0 {
		raw = []byte("null")
	}

	return r.db.QueryRow(query,
		s.ProfileID,
		s.Followers,
		s.Following,
		s.MediaCount,
		s.ReelCount,
		s.Biography,
		s.AvatarURL,
		raw,
		s.CapturedAt,
	).Scan(&s.ID)
}

func (r *PostgresSnapshotRepository) InsertDelta(d *models.Delta) error {
	query := `
		INSERT INTO deltas
		(profile_id, base_snapshot_id, compare_snapshot_id,
		 followers_diff, following_diff, media_diff, reels_diff)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	return r.db.QueryRow(query,
		d.ProfileID,
		d.BaseSnapshot,
		d.CompareSnapshot,
		d.FollowersDiff,
		d.FollowingDiff,
		d.MediaDiff,
		d.ReelsDiff,
	).Scan(&d.ID, &d.CreatedAt)
}

const snapshotColumns = `
	id, profile_id, followers, following, media_count, reel_count,
	biography, avatar_url, raw, captured_at
`

func (r *PostgresSnapshotRepository) GetRecentSnapshots(profileID string, limit int) ([]*models.Snapshot, error) {
	query := `
		SELECT` + snapshotColumns + `
		FROM snapshots
		WHERE profile_id = $1
		ORDER BY captured_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(query, profileID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanSnapshots(rows)
}

func (r *PostgresSnapshotRepository) GetSnapshotsSince(profileID string, from time.Time) ([]*models.Snapshot, error) {
	query := `
		SELECT` + snapshotColumns + `
		FROM snapshots
		WHERE profile_id = $1 AND captured_at >= $2
		ORDER BY captured_at, id
	`
	rows, err := r.db.Query(query, profileID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanSnapshots(rows)
}

func (r *PostgresSnapshotRepository) GetLatestDeltaSince(profileID string, from time.Time) (*models.Delta, error) {
	query := `
		SELECT id, profile_id, base_snapshot_id, compare_snapshot_id,
		       followers_diff, following_diff, media_diff, reels_diff, created_at
		FROM deltas
		WHERE profile_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var d models.Delta
	err := r.db.QueryRow(query, profileID, from).Scan(
		&d.ID,
		&d.ProfileID,
		&d.BaseSnapshot,
		&d.CompareSnapshot,
		&d.FollowersDiff,
		&d.FollowingDiff,
		&d.MediaDiff,
		&d.ReelsDiff,
		&d.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PostgresSnapshotRepository) scanSnapshots(rows *sql.Rows) ([]*models.Snapshot, error) {
	var snapshots []*models.Snapshot

	for rows.Next() {
		var s models.Snapshot
		var raw []byte

		err := rows.Scan(
			&s.ID,
			&s.ProfileID,
			&s.Followers,
			&s.Following,
			&s.MediaCount,
			&s.ReelCount,
			&s.Biography,
			&s.AvatarURL,
			&raw,
			&s.CapturedAt,
		)
		if err != nil {
			return nil, err
		}

		s.Raw = raw
		snapshots = append(snapshots, &s)
	}

	return snapshots, rows.Err()
}
