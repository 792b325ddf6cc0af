package store

import (
	"context"
	"database/sql"
	"time"

	"choujiang/internal/lottery"
	"choujiang/internal/models"
)

const prizeColumns = `id, activity_id, name, description, total_quantity, remaining_quantity, probability, sort_order, created_at, updated_at`

func scanPrize(row rowScanner) (*models.Prize, error) {
	var p models.Prize
	err := row.Scan(&p.ID, &p.ActivityID, &p.Name, &p.Description, &p.TotalQuantity,
		&p.RemainingQuantity, &p.Probability, &p.SortOrder, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, lottery.ErrPrizeNotFound
		}
		return nil, err
	}
	return &p, nil
}

func listPrizes(ctx context.Context, q execer, query string, args ...any) ([]models.Prize, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Prize
	for rows.Next() {
		p, err := scanPrize(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ListActivePrizes returns in-stock prizes in sort order, the engine's input.
func (t *Tx) ListActivePrizes(ctx context.Context, activityID int64) ([]models.Prize, error) {
	return listPrizes(ctx, t.tx,
		`SELECT `+prizeColumns+` FROM prizes WHERE activity_id=? AND remaining_quantity > 0 ORDER BY sort_order ASC, id ASC`,
		activityID)
}

func (s *Store) ListPrizes(ctx context.Context, activityID int64) ([]models.Prize, error) {
	return listPrizes(ctx, s.DB,
		`SELECT `+prizeColumns+` FROM prizes WHERE activity_id=? ORDER BY sort_order ASC, id ASC`,
		activityID)
}

func (t *Tx) GetPrize(ctx context.Context, prizeID int64) (*models.Prize, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+prizeColumns+` FROM prizes WHERE id=? FOR UPDATE`, prizeID)
	return scanPrize(row)
}

func (s *Store) GetPrize(ctx context.Context, prizeID int64) (*models.Prize, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+prizeColumns+` FROM prizes WHERE id=?`, prizeID)
	return scanPrize(row)
}

// deductPrize is the guarded decrement: the WHERE clause keeps
// remaining_quantity from ever going negative under concurrent draws.
func deductPrize(ctx context.Context, q execer, prizeID int64, n int) error {
	res, err := q.ExecContext(ctx,
		`UPDATE prizes SET remaining_quantity = remaining_quantity - ?, updated_at=NOW() WHERE id=? AND remaining_quantity >= ?`,
		n, prizeID, n)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return lottery.ErrOutOfStock
	}
	return nil
}

// restorePrize is the symmetric guarded increment, capped at total_quantity.
func restorePrize(ctx context.Context, q execer, prizeID int64, n int) error {
	res, err := q.ExecContext(ctx,
		`UPDATE prizes SET remaining_quantity = remaining_quantity + ?, updated_at=NOW() WHERE id=? AND remaining_quantity + ? <= total_quantity`,
		n, prizeID, n)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var one int
		if err := q.QueryRowContext(ctx, `SELECT 1 FROM prizes WHERE id=?`, prizeID).Scan(&one); err != nil {
			if err == sql.ErrNoRows {
				return lottery.ErrPrizeNotFound
			}
			return err
		}
		return lottery.ErrOverRestore
	}
	return nil
}

func (t *Tx) DeductPrize(ctx context.Context, prizeID int64, n int) error {
	return deductPrize(ctx, t.tx, prizeID, n)
}

func (t *Tx) RestorePrize(ctx context.Context, prizeID int64, n int) error {
	return restorePrize(ctx, t.tx, prizeID, n)
}

// AdjustStock is the administrative stock edit. It goes through the same
// guarded increment/decrement as redemptions, never a blind overwrite.
func (s *Store) AdjustStock(ctx context.Context, prizeID int64, delta int) error {
	if delta == 0 {
		return nil
	}
	if delta > 0 {
		return restorePrize(ctx, s.DB, prizeID, delta)
	}
	return deductPrize(ctx, s.DB, prizeID, -delta)
}

// SumProbabilities totals the explicit probabilities of an activity's prizes,
// out-of-stock ones included, optionally excluding one prize being updated.
func (s *Store) SumProbabilities(ctx context.Context, activityID int64, excludePrizeID int64) (float64, error) {
	var sum float64
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(probability), 0) FROM prizes WHERE activity_id=? AND id<>?`,
		activityID, excludePrizeID).Scan(&sum)
	return sum, err
}

// ValidateProbabilitySum recomputes the stored sum for an activity.
func (s *Store) ValidateProbabilitySum(ctx context.Context, activityID int64) (bool, float64, error) {
	sum, err := s.SumProbabilities(ctx, activityID, 0)
	if err != nil {
		return false, 0, err
	}
	return sum <= 1+1e-9, sum, nil
}

// CreatePrize rejects any prize that would push the activity's explicit
// probability sum over 1, reporting the attempted sum.
func (s *Store) CreatePrize(ctx context.Context, p *models.Prize) error {
	if p.Probability < 0 || p.Probability > 1 {
		return lottery.ErrProbabilityOverflow
	}
	sum, err := s.SumProbabilities(ctx, p.ActivityID, 0)
	if err != nil {
		return err
	}
	if sum+p.Probability > 1+1e-9 {
		return &lottery.ProbabilitySumError{Sum: sum + p.Probability}
	}
	if p.RemainingQuantity == 0 {
		p.RemainingQuantity = p.TotalQuantity
	}
	now := time.Now()
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO prizes (activity_id, name, description, total_quantity, remaining_quantity, probability, sort_order, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ActivityID, p.Name, p.Description, p.TotalQuantity, p.RemainingQuantity,
		p.Probability, p.SortOrder, now, now)
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	p.CreatedAt = now
	p.UpdatedAt = now
	return err
}

// UpdatePrize mutates name, description, probability and sort order. Stock
// changes go through AdjustStock instead.
func (s *Store) UpdatePrize(ctx context.Context, p *models.Prize) error {
	if p.Probability < 0 || p.Probability > 1 {
		return lottery.ErrProbabilityOverflow
	}
	sum, err := s.SumProbabilities(ctx, p.ActivityID, p.ID)
	if err != nil {
		return err
	}
	if sum+p.Probability > 1+1e-9 {
		return &lottery.ProbabilitySumError{Sum: sum + p.Probability}
	}
	var one int
	err = s.DB.QueryRowContext(ctx, `SELECT 1 FROM prizes WHERE id=? AND activity_id=?`, p.ID, p.ActivityID).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return lottery.ErrPrizeNotFound
		}
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`UPDATE prizes SET name=?, description=?, probability=?, sort_order=?, updated_at=NOW() WHERE id=? AND activity_id=?`,
		p.Name, p.Description, p.Probability, p.SortOrder, p.ID, p.ActivityID)
	return err
}

func (s *Store) DeletePrize(ctx context.Context, prizeID int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM prizes WHERE id=?`, prizeID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return lottery.ErrPrizeNotFound
	}
	return nil
}
