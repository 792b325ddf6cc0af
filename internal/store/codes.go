package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"choujiang/internal/lottery"
	"choujiang/internal/models"
)

const codeColumns = `id, activity_id, code, status, participant_info, used_at, created_at, updated_at`

func scanCode(row rowScanner) (*models.LotteryCode, error) {
	var c models.LotteryCode
	var info []byte
	var usedAt sql.NullTime
	err := row.Scan(&c.ID, &c.ActivityID, &c.Code, &c.Status, &info, &usedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, lottery.ErrCodeNotFound
		}
		return nil, err
	}
	if len(info) > 0 {
		c.ParticipantInfo = json.RawMessage(info)
	}
	if usedAt.Valid {
		t := usedAt.Time
		c.UsedAt = &t
	}
	return &c, nil
}

// GetCodeForUpdate row-locks the code for the duration of the redemption
// transaction, so concurrent draws on the same code serialize here.
func (t *Tx) GetCodeForUpdate(ctx context.Context, activityID int64, code string) (*models.LotteryCode, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM lottery_codes WHERE activity_id=? AND code=? FOR UPDATE`,
		activityID, code)
	return scanCode(row)
}

func (t *Tx) MarkCodeUsed(ctx context.Context, codeID int64, usedAt time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE lottery_codes SET status='used', used_at=?, updated_at=NOW() WHERE id=? AND status='unused'`,
		usedAt, codeID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return lottery.ErrCodeAlreadyUsed
	}
	return nil
}

func (t *Tx) MarkCodeUnused(ctx context.Context, codeID int64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE lottery_codes SET status='unused', used_at=NULL, updated_at=NOW() WHERE id=?`, codeID)
	return err
}

// MarkCodeInvalid voids a code. Already-invalid codes are reported as such.
func (s *Store) MarkCodeInvalid(ctx context.Context, codeID int64) error {
	var status models.CodeStatus
	err := s.DB.QueryRowContext(ctx, `SELECT status FROM lottery_codes WHERE id=?`, codeID).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return lottery.ErrCodeNotFound
		}
		return err
	}
	if status == models.CodeInvalid {
		return lottery.ErrCodeAlreadyInvalid
	}
	_, err = s.DB.ExecContext(ctx,
		`UPDATE lottery_codes SET status='invalid', updated_at=NOW() WHERE id=?`, codeID)
	return err
}

// ResetCode is the administrative override back to unused.
func (s *Store) ResetCode(ctx context.Context, codeID int64) error {
	var one int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM lottery_codes WHERE id=?`, codeID).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return lottery.ErrCodeNotFound
		}
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`UPDATE lottery_codes SET status='unused', used_at=NULL, updated_at=NOW() WHERE id=?`, codeID)
	return err
}

// InsertCodes creates a batch of unused codes in one transaction. The unique
// key on (activity_id, code) rejects collisions.
func (s *Store) InsertCodes(ctx context.Context, activityID int64, codes []string, infos []json.RawMessage) ([]models.LotteryCode, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]models.LotteryCode, 0, len(codes))
	for i, code := range codes {
		var info []byte
		if i < len(infos) && len(infos[i]) > 0 {
			info = infos[i]
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO lottery_codes (activity_id, code, status, participant_info, created_at, updated_at)
			 VALUES (?, ?, 'unused', ?, ?, ?)`,
			activityID, code, info, now, now)
		if err != nil {
			_ = tx.Rollback()
			if isDuplicateKey(err) {
				return nil, lottery.ErrCodeExists
			}
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		out = append(out, models.LotteryCode{
			ID:         id,
			ActivityID: activityID,
			Code:       code,
			Status:     models.CodeUnused,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCodeStrings returns every code of the activity, for collision checks
// during batch generation.
func (s *Store) ListCodeStrings(ctx context.Context, activityID int64) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT code FROM lottery_codes WHERE activity_id=?`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

func (s *Store) ListCodes(ctx context.Context, activityID int64, status models.CodeStatus, limit, offset int) ([]models.LotteryCode, error) {
	query := `SELECT ` + codeColumns + ` FROM lottery_codes WHERE activity_id=?`
	args := []any{activityID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.LotteryCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) CountCodes(ctx context.Context, activityID int64) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lottery_codes WHERE activity_id=?`, activityID).Scan(&n)
	return n, err
}

// CodeStats aggregates the code pool by status.
func (s *Store) CodeStats(ctx context.Context, activityID int64) (*models.CodeStats, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM lottery_codes WHERE activity_id=? GROUP BY status`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stats models.CodeStats
	for rows.Next() {
		var status models.CodeStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch status {
		case models.CodeUsed:
			stats.UsedCodes = n
		case models.CodeUnused:
			stats.UnusedCodes = n
		case models.CodeInvalid:
			stats.InvalidCodes = n
		}
		stats.TotalCodes += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if stats.TotalCodes > 0 {
		stats.UsageRate = float64(stats.UsedCodes) / float64(stats.TotalCodes)
	}
	return &stats, nil
}
