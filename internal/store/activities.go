package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"time"

	"choujiang/internal/lottery"
	"choujiang/internal/models"
)

const activityColumns = `id, name, description, status, start_time, end_time, settings, webhook_id, webhook_token, created_by, created_at, updated_at`

func scanActivity(row rowScanner) (*models.Activity, error) {
	var a models.Activity
	var rawSettings []byte
	var createdBy sql.NullInt64
	var start, end sql.NullTime
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Status, &start, &end,
		&rawSettings, &a.WebhookID, &a.WebhookToken, &createdBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, lottery.ErrActivityNotFound
		}
		return nil, err
	}
	if start.Valid {
		t := start.Time
		a.StartTime = &t
	}
	if end.Valid {
		t := end.Time
		a.EndTime = &t
	}
	if createdBy.Valid {
		v := createdBy.Int64
		a.CreatedBy = &v
	}
	settings, err := models.ParseSettings(rawSettings)
	if err != nil {
		return nil, err
	}
	a.Settings = settings
	return &a, nil
}

func getActivity(ctx context.Context, q execer, id int64) (*models.Activity, error) {
	row := q.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=?`, id)
	return scanActivity(row)
}

func (s *Store) GetActivity(ctx context.Context, id int64) (*models.Activity, error) {
	return getActivity(ctx, s.DB, id)
}

func (t *Tx) GetActivity(ctx context.Context, id int64) (*models.Activity, error) {
	return getActivity(ctx, t.tx, id)
}

func (s *Store) GetActivityByWebhookID(ctx context.Context, webhookID string) (*models.Activity, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE webhook_id=?`, webhookID)
	return scanActivity(row)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

// CreateActivity persists a new draft activity. Settings are normalized and
// validated here once; webhook credentials are generated on the spot.
func (s *Store) CreateActivity(ctx context.Context, a *models.Activity) error {
	if err := a.Settings.Normalize(); err != nil {
		return err
	}
	if _, err := lottery.FormatByName(a.Settings.CodeFormat); err != nil {
		return err
	}
	if a.Status == "" {
		a.Status = models.ActivityDraft
	}
	a.WebhookID = randomHex(16)
	a.WebhookToken = randomHex(32)
	rawSettings, err := json.Marshal(a.Settings)
	if err != nil {
		return err
	}
	now := time.Now()
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO activities (name, description, status, start_time, end_time, settings, webhook_id, webhook_token, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.Description, a.Status, a.StartTime, a.EndTime, rawSettings,
		a.WebhookID, a.WebhookToken, a.CreatedBy, now, now)
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	a.CreatedAt = now
	a.UpdatedAt = now
	return err
}

// UpdateActivity overwrites the mutable fields: name, description, status,
// time window and settings.
func (s *Store) UpdateActivity(ctx context.Context, a *models.Activity) error {
	if err := a.Settings.Normalize(); err != nil {
		return err
	}
	rawSettings, err := json.Marshal(a.Settings)
	if err != nil {
		return err
	}
	var one int
	err = s.DB.QueryRowContext(ctx, `SELECT 1 FROM activities WHERE id=?`, a.ID).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return lottery.ErrActivityNotFound
		}
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`UPDATE activities SET name=?, description=?, status=?, start_time=?, end_time=?, settings=?, updated_at=NOW() WHERE id=?`,
		a.Name, a.Description, a.Status, a.StartTime, a.EndTime, rawSettings, a.ID)
	return err
}

func (s *Store) ListActivities(ctx context.Context, limit, offset int) ([]models.Activity, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM activities ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// DeleteActivity removes an activity with its prizes, codes and records.
func (s *Store) DeleteActivity(ctx context.Context, id int64) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range []string{
		`DELETE FROM lottery_records WHERE activity_id=?`,
		`DELETE FROM lottery_codes WHERE activity_id=?`,
		`DELETE FROM prizes WHERE activity_id=?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE id=?`, id)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n == 0 {
		_ = tx.Rollback()
		return lottery.ErrActivityNotFound
	}
	return tx.Commit()
}
