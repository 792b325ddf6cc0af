package store

import (
	"context"
	"database/sql"
	"time"

	"choujiang/internal/lottery"
	"choujiang/internal/models"
)

const recordColumns = `id, activity_id, lottery_code_id, prize_id, is_winner, operator_id, ip_address, user_agent, created_at`

func scanRecord(row rowScanner) (*models.LotteryRecord, error) {
	var r models.LotteryRecord
	var prizeID, operatorID sql.NullInt64
	var ip, ua sql.NullString
	err := row.Scan(&r.ID, &r.ActivityID, &r.LotteryCodeID, &prizeID, &r.IsWinner,
		&operatorID, &ip, &ua, &r.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, lottery.ErrRecordNotFound
		}
		return nil, err
	}
	if prizeID.Valid {
		v := prizeID.Int64
		r.PrizeID = &v
	}
	if operatorID.Valid {
		v := operatorID.Int64
		r.OperatorID = &v
	}
	r.IPAddress = ip.String
	r.UserAgent = ua.String
	return &r, nil
}

// GetRecordByCodeID returns nil when no record references the code yet.
func (t *Tx) GetRecordByCodeID(ctx context.Context, codeID int64) (*models.LotteryRecord, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM lottery_records WHERE lottery_code_id=?`, codeID)
	rec, err := scanRecord(row)
	if err == lottery.ErrRecordNotFound {
		return nil, nil
	}
	return rec, err
}

// InsertRecord appends the redemption fact. The unique key on
// lottery_code_id turns a lost race into ErrCodeAlreadyRedeemed at commit
// time instead of a second record.
func (t *Tx) InsertRecord(ctx context.Context, rec *models.LotteryRecord) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO lottery_records (activity_id, lottery_code_id, prize_id, is_winner, operator_id, ip_address, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ActivityID, rec.LotteryCodeID, rec.PrizeID, rec.IsWinner,
		rec.OperatorID, rec.IPAddress, rec.UserAgent, rec.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return lottery.ErrCodeAlreadyRedeemed
		}
		return err
	}
	rec.ID, err = res.LastInsertId()
	return err
}

func (t *Tx) GetRecord(ctx context.Context, recordID int64) (*models.LotteryRecord, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM lottery_records WHERE id=? FOR UPDATE`, recordID)
	return scanRecord(row)
}

func (t *Tx) DeleteRecord(ctx context.Context, recordID int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM lottery_records WHERE id=?`, recordID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return lottery.ErrRecordNotFound
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, recordID int64) (*models.LotteryRecord, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM lottery_records WHERE id=?`, recordID)
	return scanRecord(row)
}

// ListRecords joins codes and prizes for display.
func (s *Store) ListRecords(ctx context.Context, activityID int64, winnersOnly bool, limit, offset int) ([]models.LotteryRecord, error) {
	query := `SELECT r.id, r.activity_id, r.lottery_code_id, r.prize_id, r.is_winner, r.operator_id,
		r.ip_address, r.user_agent, r.created_at, c.code, COALESCE(p.name, '')
		FROM lottery_records r
		JOIN lottery_codes c ON c.id = r.lottery_code_id
		LEFT JOIN prizes p ON p.id = r.prize_id
		WHERE r.activity_id=?`
	args := []any{activityID}
	if winnersOnly {
		query += ` AND r.is_winner=1`
	}
	query += ` ORDER BY r.created_at DESC, r.id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.LotteryRecord
	for rows.Next() {
		var r models.LotteryRecord
		var prizeID, operatorID sql.NullInt64
		var ip, ua sql.NullString
		if err := rows.Scan(&r.ID, &r.ActivityID, &r.LotteryCodeID, &prizeID, &r.IsWinner,
			&operatorID, &ip, &ua, &r.CreatedAt, &r.UsedCode, &r.PrizeName); err != nil {
			return nil, err
		}
		if prizeID.Valid {
			v := prizeID.Int64
			r.PrizeID = &v
		}
		if operatorID.Valid {
			v := operatorID.Int64
			r.OperatorID = &v
		}
		r.IPAddress = ip.String
		r.UserAgent = ua.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// WinningStats aggregates winners over an optional date range.
func (s *Store) WinningStats(ctx context.Context, activityID int64, from, to *time.Time) (*models.WinningStats, error) {
	where := `WHERE r.activity_id=? AND r.is_winner=1`
	args := []any{activityID}
	if from != nil {
		where += ` AND r.created_at >= ?`
		args = append(args, *from)
	}
	if to != nil {
		where += ` AND r.created_at <= ?`
		args = append(args, *to)
	}

	stats := &models.WinningStats{
		PerPrizeCounts: []models.PrizeCount{},
		PerDayCounts:   []models.DayCount{},
	}
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lottery_records r `+where, args...).Scan(&stats.TotalWinners)
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT r.prize_id, COALESCE(p.name, ''), COUNT(*)
		 FROM lottery_records r LEFT JOIN prizes p ON p.id = r.prize_id `+
			where+` GROUP BY r.prize_id, p.name ORDER BY COUNT(*) DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var pc models.PrizeCount
		var prizeID sql.NullInt64
		if err := rows.Scan(&prizeID, &pc.PrizeName, &pc.Count); err != nil {
			return nil, err
		}
		pc.PrizeID = prizeID.Int64
		stats.PerPrizeCounts = append(stats.PerPrizeCounts, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	dayRows, err := s.DB.QueryContext(ctx,
		`SELECT DATE(r.created_at), COUNT(*) FROM lottery_records r `+
			where+` GROUP BY DATE(r.created_at) ORDER BY DATE(r.created_at) ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer dayRows.Close()
	for dayRows.Next() {
		var dc models.DayCount
		var day time.Time
		if err := dayRows.Scan(&day, &dc.Count); err != nil {
			return nil, err
		}
		dc.Day = day.Format("2006-01-02")
		stats.PerDayCounts = append(stats.PerDayCounts, dc)
	}
	return stats, dayRows.Err()
}
