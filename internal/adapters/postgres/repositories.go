package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sitewarden/internal/domain"
	"sitewarden/internal/ports"
)

var (
	_ ports.WebsiteRepository = (*DB)(nil)
	_ ports.ScanRepository    = (*DB)(nil)
	_ ports.JobRepository     = (*DB)(nil)
)

const scanColumns = `id, website_id, user_id, url, status, created_at, completed_at,
	duration_seconds, overall_score, threat_level, probe_results, error_message`

// WebsiteRepository

func (db *DB) GetWebsite(ctx context.Context, websiteID, userID string) (domain.Website, error) {
	var w domain.Website
	err := db.Pool.QueryRow(ctx, `
		SELECT id, user_id, url, api_key, created_at
		FROM websites
		WHERE id = $1 AND user_id = $2
	`, websiteID, userID).Scan(&w.ID, &w.UserID, &w.URL, &w.APIKey, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return w, ports.ErrNotFound
	}
	w.CreatedAt = w.CreatedAt.UTC()
	return w, err
}

func (db *DB) CreateWebsite(ctx context.Context, w domain.Website) (domain.Website, error) {
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO websites (id, user_id, url, api_key, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, w.ID, w.UserID, w.URL, w.APIKey, w.CreatedAt).Scan(&w.CreatedAt)
	w.CreatedAt = w.CreatedAt.UTC()
	return w, err
}

// ScanRepository

func (db *DB) CreateScanRecord(ctx context.Context, init domain.ScanRecord) (domain.ScanRecord, error) {
	results, err := marshalResults(init.ProbeResults)
	if err != nil {
		return domain.ScanRecord{}, err
	}
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO scan_records (id, website_id, user_id, url, status, created_at, completed_at,
			duration_seconds, overall_score, threat_level, probe_results, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+scanColumns,
		init.ID, init.WebsiteID, init.UserID, init.URL, string(init.Status), init.CreatedAt, init.CompletedAt,
		init.DurationSeconds, init.OverallScore, levelArg(init.ThreatLevel), results, init.ErrorMessage)
	return scanRecord(row)
}

// UpdateScanRecord applies the patch only while the record sits in one of
// the new status's predecessors, so concurrent writers cannot move a
// record backwards.
func (db *DB) UpdateScanRecord(ctx context.Context, id string, patch domain.ScanPatch) error {
	results, err := marshalResults(patch.ProbeResults)
	if err != nil {
		return err
	}
	tag, err := db.Pool.Exec(ctx, `
		UPDATE scan_records SET
			status = $2,
			completed_at = COALESCE($3, completed_at),
			duration_seconds = COALESCE($4, duration_seconds),
			overall_score = COALESCE($5, overall_score),
			threat_level = COALESCE($6, threat_level),
			probe_results = COALESCE($7::jsonb, probe_results),
			error_message = COALESCE($8, error_message)
		WHERE id = $1 AND status = ANY($9)
	`, id, string(patch.Status), patch.CompletedAt, patch.DurationSeconds, patch.OverallScore,
		levelArg(patch.ThreatLevel), results, patch.ErrorMessage, statusArgs(patch.Status.Predecessors()))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = db.Pool.QueryRow(ctx, `SELECT status FROM scan_records WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ports.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s to %s", ports.ErrInvalidTransition, current, patch.Status)
}

func (db *DB) GetScanRecord(ctx context.Context, id string) (domain.ScanRecord, error) {
	rec, err := scanRecord(db.Pool.QueryRow(ctx, `SELECT `+scanColumns+` FROM scan_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, ports.ErrNotFound
	}
	return rec, err
}

func (db *DB) ListScanRecords(ctx context.Context, websiteID string, limit int) ([]domain.ScanRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+scanColumns+`
		FROM scan_records
		WHERE website_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, websiteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ScanRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (db *DB) LatestCompleted(ctx context.Context, websiteID string) (domain.ScanRecord, bool, error) {
	rec, err := scanRecord(db.Pool.QueryRow(ctx, `
		SELECT `+scanColumns+`
		FROM scan_records
		WHERE website_id = $1 AND status = 'completed'
		ORDER BY completed_at DESC
		LIMIT 1
	`, websiteID))
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

func scanRecord(row pgx.Row) (domain.ScanRecord, error) {
	var (
		rec     domain.ScanRecord
		status  string
		level   *string
		results []byte
	)
	err := row.Scan(&rec.ID, &rec.WebsiteID, &rec.UserID, &rec.URL, &status, &rec.CreatedAt, &rec.CompletedAt,
		&rec.DurationSeconds, &rec.OverallScore, &level, &results, &rec.ErrorMessage)
	if err != nil {
		return domain.ScanRecord{}, err
	}
	rec.Status = domain.ScanStatus(status)
	rec.CreatedAt = rec.CreatedAt.UTC()
	if rec.CompletedAt != nil {
		at := rec.CompletedAt.UTC()
		rec.CompletedAt = &at
	}
	if level != nil {
		tl := domain.ThreatLevel(*level)
		rec.ThreatLevel = &tl
	}
	if len(results) > 0 {
		rec.ProbeResults = new(domain.ProbeResults)
		if err := json.Unmarshal(results, rec.ProbeResults); err != nil {
			return domain.ScanRecord{}, fmt.Errorf("decode probe results of %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

func marshalResults(r *domain.ProbeResults) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode probe results: %w", err)
	}
	return b, nil
}

func levelArg(l *domain.ThreatLevel) *string {
	if l == nil {
		return nil
	}
	s := string(*l)
	return &s
}

func statusArgs(in []domain.ScanStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
