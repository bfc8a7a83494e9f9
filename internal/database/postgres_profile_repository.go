package database

import (
	"database/sql"

	"github.com/lib/pq"

	"github.com/gramtrack/gramtrack/internal/models"
	"github.com/gramtrack/gramtrack/internal/scrape"
)

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique-constraint
// collision.
func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

type PostgresProfileRepository struct {
	db *sql.DB
}

func NewPostgresProfileRepository(db *sql.DB) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

const profileColumns = `
	id, platform, username, external_id, display_name, avatar_url,
	biography, external_link, user_id, tracking_id, last_snapshot_id,
	created_at, updated_at
`

func (r *PostgresProfileRepository) Create(p *models.Profile) error {
	query := `
		INSERT INTO profiles
		(platform, username, external_id, display_name, avatar_url,
		 biography, external_link, user_id, tracking_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(query,
		p.Platform,
		p.Username,
		p.ExternalID,
		p.DisplayName,
		p.AvatarURL,
		p.Biography,
		p.ExternalLink,
		nullString(p.UserID),
		p.TrackingID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	if err != nil && isUniqueViolation(err) {
		return scrape.Errorf(scrape.KindConflict, "profile already exists: %v", err)
	}
	return err
}

func (r *PostgresProfileRepository) Update(p *models.Profile, bumpSession bool) error {
	query := `
		UPDATE profiles SET
			username = $2,
			external_id = $3,
			display_name = $4,
			avatar_url = $5,
			biography = $6,
			external_link = $7,
			tracking_id = $8,
			updated_at = CASE WHEN $9 THEN NOW() ELSE updated_at END
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(query,
		p.ID,
		p.Username,
		p.ExternalID,
		p.DisplayName,
		p.AvatarURL,
		p.Biography,
		p.ExternalLink,
		p.TrackingID,
		bumpSession,
	).Scan(&p.UpdatedAt)

	if err != nil && isUniqueViolation(err) {
		return scrape.Errorf(scrape.KindConflict, "tracking id already assigned: %v", err)
	}
	return err
}

func (r *PostgresProfileRepository) GetByTrackingID(trackingID string) (*models.Profile, error) {
	query := `SELECT` + profileColumns + `FROM profiles WHERE tracking_id = $1`
	return r.scanOne(r.db.QueryRow(query, trackingID))
}

func (r *PostgresProfileRepository) GetByUsername(platform models.Platform, username string, userID *string) (*models.Profile, error) {
	query := `
		SELECT` + profileColumns + `
		FROM profiles
		WHERE platform = $1 AND username = $2
		  AND user_id IS NOT DISTINCT FROM $3
	`
	return r.scanOne(r.db.QueryRow(query, platform, username, nullString(userID)))
}

func (r *PostgresProfileRepository) ListByUsername(platform models.Platform, username string) ([]*models.Profile, error) {
	query := `
		SELECT` + profileColumns + `
		FROM profiles
		WHERE platform = $1 AND username = $2
		ORDER BY created_at
	`
	rows, err := r.db.Query(query, platform, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanProfiles(rows)
}

func (r *PostgresProfileRepository) ListAll() ([]*models.Profile, error) {
	query := `SELECT` + profileColumns + `FROM profiles ORDER BY platform, username, created_at`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanProfiles(rows)
}

func (r *PostgresProfileRepository) SetLastSnapshot(profileID string, snapshotID int64) error {
	_, err := r.db.Exec(`UPDATE profiles SET last_snapshot_id = $2 WHERE id = $1`, profileID, snapshotID)
	return err
}

func (r *PostgresProfileRepository) Delete(profileID string) error {
	_, err := r.db.Exec(`DELETE FROM profiles WHERE id = $1`, profileID)
	return err
}

func (r *PostgresProfileRepository) scanOne(row *sql.Row) (*models.Profile, error) {
	var p models.Profile
	var userID sql.NullString
	var lastSnapshot sql.NullInt64

	err := row.Scan(
		&p.ID,
		&p.Platform,
		&p.Username,
		&p.ExternalID,
		&p.DisplayName,
		&p.AvatarURL,
		&p.Biography,
		&p.ExternalLink,
		&userID,
		&p.TrackingID,
		&lastSnapshot,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		p.UserID = &userID.String
	}
	if lastSnapshot.Valid {
		p.LastSnapshotID = &lastSnapshot.Int64
	}
	return &p, nil
}

func (r *PostgresProfileRepository) scanProfiles(rows *sql.Rows) ([]*models.Profile, error) {
	var profiles []*models.Profile

	for rows.Next() {
		var p models.Profile
		var userID sql.NullString
		var lastSnapshot sql.NullInt64

		err := rows.Scan(
			&p.ID,
			&p.Platform,
			&p.Username,
			&p.ExternalID,
			&p.DisplayName,
			&p.AvatarURL,
			&p.Biography,
			&p.ExternalLink,
			&userID,
			&p.TrackingID,
			&lastSnapshot,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		if userID.Valid {
			p.UserID = &userID.String
		}
		if lastSnapshot.Valid {
			p.LastSnapshotID = &lastSnapshot.Int64
		}
		profiles = append(profiles, &p)
	}

	return profiles, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
