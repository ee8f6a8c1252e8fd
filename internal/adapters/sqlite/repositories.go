package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

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

type websiteRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	URL       string         `db:"url"`
	APIKey    sql.NullString `db:"api_key"`
	CreatedAt string         `db:"created_at"`
}

type scanRow struct {
	ID              string          `db:"id"`
	WebsiteID       string          `db:"website_id"`
	UserID          string          `db:"user_id"`
	URL             string          `db:"url"`
	Status          string          `db:"status"`
	CreatedAt       string          `db:"created_at"`
	CompletedAt     sql.NullString  `db:"completed_at"`
	DurationSeconds sql.NullFloat64 `db:"duration_seconds"`
	OverallScore    sql.NullInt64   `db:"overall_score"`
	ThreatLevel     sql.NullString  `db:"threat_level"`
	ProbeResults    sql.NullString  `db:"probe_results"`
	ErrorMessage    sql.NullString  `db:"error_message"`
}

func (d *DB) GetWebsite(ctx context.Context, websiteID, userID string) (domain.Website, error) {
	var row websiteRow
	err := d.db.GetContext(ctx, &row,
		`SELECT id, user_id, url, api_key, created_at FROM websites WHERE id = ? AND user_id = ?`,
		websiteID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Website{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.Website{}, err
	}
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return domain.Website{}, err
	}
	w := domain.Website{ID: row.ID, UserID: row.UserID, URL: row.URL, CreatedAt: created}
	if row.APIKey.Valid {
		w.APIKey = &row.APIKey.String
	}
	return w, nil
}

func (d *DB) CreateWebsite(ctx context.Context, w domain.Website) (domain.Website, error) {
	row := websiteRow{ID: w.ID, UserID: w.UserID, URL: w.URL, CreatedAt: formatTime(w.CreatedAt)}
	if w.APIKey != nil {
		row.APIKey = sql.NullString{String: *w.APIKey, Valid: true}
	}
	_, err := d.db.NamedExecContext(ctx, `
		INSERT INTO websites (id, user_id, url, api_key, created_at)
		VALUES (:id, :user_id, :url, :api_key, :created_at)`, row)
	return w, err
}

func (d *DB) CreateScanRecord(ctx context.Context, init domain.ScanRecord) (domain.ScanRecord, error) {
	row, err := toScanRow(init)
	if err != nil {
		return domain.ScanRecord{}, err
	}
	_, err = d.db.NamedExecContext(ctx, `
		INSERT INTO scan_records (id, website_id, user_id, url, status, created_at, completed_at,
			duration_seconds, overall_score, threat_level, probe_results, error_message)
		VALUES (:id, :website_id, :user_id, :url, :status, :created_at, :completed_at,
			:duration_seconds, :overall_score, :threat_level, :probe_results, :error_message)`, row)
	if err != nil {
		return domain.ScanRecord{}, err
	}
	return row.record()
}

// UpdateScanRecord applies the patch only while the record sits in one of
// the new status's predecessors.
func (d *DB) UpdateScanRecord(ctx context.Context, id string, patch domain.ScanPatch) error {
	set, err := toScanRow(patch.Apply(domain.ScanRecord{}))
	if err != nil {
		return err
	}
	var preds []string
	for _, s := range patch.Status.Predecessors() {
		preds = append(preds, string(s))
	}
	if len(preds) == 0 {
		return d.transitionError(ctx, id, patch.Status)
	}

	query, args, err := sqlx.In(`
		UPDATE scan_records SET
			status = ?,
			completed_at = COALESCE(?, completed_at),
			duration_seconds = COALESCE(?, duration_seconds),
			overall_score = COALESCE(?, overall_score),
			threat_level = COALESCE(?, threat_level),
			probe_results = COALESCE(?, probe_results),
			error_message = COALESCE(?, error_message)
		WHERE id = ? AND status IN (?)`,
		set.Status, set.CompletedAt, set.DurationSeconds, set.OverallScore, set.ThreatLevel,
		set.ProbeResults, set.ErrorMessage, id, preds)
	if err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx, d.db.Rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	return d.transitionError(ctx, id, patch.Status)
}

func (d *DB) transitionError(ctx context.Context, id string, next domain.ScanStatus) error {
	var current string
	err := d.db.GetContext(ctx, &current, `SELECT status FROM scan_records WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s to %s", ports.ErrInvalidTransition, current, next)
}

func (d *DB) GetScanRecord(ctx context.Context, id string) (domain.ScanRecord, error) {
	var row scanRow
	err := d.db.GetContext(ctx, &row, `SELECT `+scanColumns+` FROM scan_records WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScanRecord{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.ScanRecord{}, err
	}
	return row.record()
}

func (d *DB) ListScanRecords(ctx context.Context, websiteID string, limit int) ([]domain.ScanRecord, error) {
	var rows []scanRow
	err := d.db.SelectContext(ctx, &rows, `
		SELECT `+scanColumns+`
		FROM scan_records
		WHERE website_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, websiteID, limit)
	if err != nil {
		return nil, err
	}
	return records(rows)
}

func (d *DB) LatestCompleted(ctx context.Context, websiteID string) (domain.ScanRecord, bool, error) {
	var row scanRow
	err := d.db.GetContext(ctx, &row, `
		SELECT `+scanColumns+`
		FROM scan_records
		WHERE website_id = ? AND status = 'completed'
		ORDER BY completed_at DESC
		LIMIT 1`, websiteID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScanRecord{}, false, nil
	}
	if err != nil {
		return domain.ScanRecord{}, false, err
	}
	rec, err := row.record()
	return rec, err == nil, err
}

// ClaimNext moves the oldest pending record to running in one statement.
func (d *DB) ClaimNext(ctx context.Context) (domain.ScanRecord, bool, error) {
	var row scanRow
	err := d.db.GetContext(ctx, &row, `
		UPDATE scan_records SET status = 'running'
		WHERE id = (
			SELECT id FROM scan_records
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT 1
		)
		RETURNING `+scanColumns)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScanRecord{}, false, nil
	}
	if err != nil {
		return domain.ScanRecord{}, false, err
	}
	rec, err := row.record()
	return rec, err == nil, err
}

func toScanRow(r domain.ScanRecord) (scanRow, error) {
	row := scanRow{
		ID:        r.ID,
		WebsiteID: r.WebsiteID,
		UserID:    r.UserID,
		URL:       r.URL,
		Status:    string(r.Status),
		CreatedAt: formatTime(r.CreatedAt),
	}
	if r.CompletedAt != nil {
		row.CompletedAt = sql.NullString{String: formatTime(*r.CompletedAt), Valid: true}
	}
	if r.DurationSeconds != nil {
		row.DurationSeconds = sql.NullFloat64{Float64: *r.DurationSeconds, Valid: true}
	}
	if r.OverallScore != nil {
		row.OverallScore = sql.NullInt64{Int64: int64(*r.OverallScore), Valid: true}
	}
	if r.ThreatLevel != nil {
		row.ThreatLevel = sql.NullString{String: string(*r.ThreatLevel), Valid: true}
	}
	if r.ProbeResults != nil {
		b, err := json.Marshal(r.ProbeResults)
		if err != nil {
			return scanRow{}, fmt.Errorf("encode probe results: %w", err)
		}
		row.ProbeResults = sql.NullString{String: string(b), Valid: true}
	}
	if r.ErrorMessage != nil {
		row.ErrorMessage = sql.NullString{String: *r.ErrorMessage, Valid: true}
	}
	return row, nil
}

func (row scanRow) record() (domain.ScanRecord, error) {
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return domain.ScanRecord{}, err
	}
	rec := domain.ScanRecord{
		ID:        row.ID,
		WebsiteID: row.WebsiteID,
		UserID:    row.UserID,
		URL:       row.URL,
		Status:    domain.ScanStatus(row.Status),
		CreatedAt: created,
	}
	if row.CompletedAt.Valid {
		at, err := parseTime(row.CompletedAt.String)
		if err != nil {
			return domain.ScanRecord{}, err
		}
		rec.CompletedAt = &at
	}
	if row.DurationSeconds.Valid {
		rec.DurationSeconds = &row.DurationSeconds.Float64
	}
	if row.OverallScore.Valid {
		score := int(row.OverallScore.Int64)
		rec.OverallScore = &score
	}
	if row.ThreatLevel.Valid {
		level := domain.ThreatLevel(row.ThreatLevel.String)
		rec.ThreatLevel = &level
	}
	if row.ProbeResults.Valid {
		rec.ProbeResults = new(domain.ProbeResults)
		if err := json.Unmarshal([]byte(row.ProbeResults.String), rec.ProbeResults); err != nil {
			return domain.ScanRecord{}, fmt.Errorf("decode probe results of %s: %w", row.ID, err)
		}
	}
	if row.ErrorMessage.Valid {
		rec.ErrorMessage = &row.ErrorMessage.String
	}
	return rec, nil
}

func records(rows []scanRow) ([]domain.ScanRecord, error) {
	out := make([]domain.ScanRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
